package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/muurk/jpegmirror/internal/server"
	"github.com/muurk/jpegmirror/internal/workerpool"
)

// Collectors is the Prometheus implementation of server.Metrics and workerpool.Metrics.
type Collectors struct {
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	activeConnections   prometheus.Gauge
	responsesTotal      *prometheus.CounterVec
	responseDuration    *prometheus.HistogramVec
	timeoutsTotal       *prometheus.CounterVec
	bytesTransferred    *prometheus.CounterVec

	queueDepth         prometheus.Gauge
	busyWorkers        prometheus.Gauge
	processingDuration *prometheus.HistogramVec
}

var (
	_ server.Metrics     = (*Collectors)(nil)
	_ workerpool.Metrics = (*Collectors)(nil)
)

// NewCollectors creates and registers all collectors on reg.
// It panics if any of them is already registered there.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		connectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of connections accepted",
		}),
		connectionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_closed_total",
			Help:      "Total number of connections closed",
		}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Current number of connections being handled",
		}),
		responsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "responses_total",
			Help:      "Total number of responses written, by HTTP status",
		}, []string{"status"}),
		responseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "response_duration_seconds",
			Help:      "Time from accept until the response was written",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"status"}),
		timeoutsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "timeouts_total",
			Help:      "Connections closed by the timeout, by the state they were in",
		}, []string{"state"}),
		bytesTransferred: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bytes_transferred_total",
			Help:      "Request body bytes read (in) and response bytes written (out)",
		}, []string{"direction"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "workers",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker",
		}),
		busyWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "workers",
			Name:      "busy",
			Help:      "Workers currently running the handler",
		}),
		processingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "workers",
			Name:      "processing_duration_seconds",
			Help:      "Handler execution time by outcome",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
		}, []string{"outcome"}),
	}
}

func (c *Collectors) RecordConnectionAccepted() {
	c.connectionsAccepted.Inc()
}

func (c *Collectors) RecordConnectionClosed() {
	c.connectionsClosed.Inc()
}

func (c *Collectors) SetActiveConnections(count int32) {
	c.activeConnections.Set(float64(count))
}

func (c *Collectors) RecordResponse(status int, duration time.Duration) {
	code := strconv.Itoa(status)
	c.responsesTotal.WithLabelValues(code).Inc()
	c.responseDuration.WithLabelValues(code).Observe(duration.Seconds())
}

func (c *Collectors) RecordTimeout(state string) {
	c.timeoutsTotal.WithLabelValues(state).Inc()
}

func (c *Collectors) RecordBytesTransferred(direction string, bytes int64) {
	if bytes <= 0 {
		return
	}
	c.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (c *Collectors) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

func (c *Collectors) SetBusyWorkers(busy int) {
	c.busyWorkers.Set(float64(busy))
}

func (c *Collectors) RecordProcessing(outcome string, duration time.Duration) {
	c.processingDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
