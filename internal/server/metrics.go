package server

import "time"

// Metrics observes connection handling. Implementations must be safe for
// concurrent use; the Prometheus implementation lives in internal/metrics.
type Metrics interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	SetActiveConnections(count int32)
	RecordResponse(status int, duration time.Duration)
	RecordTimeout(state string)
	RecordBytesTransferred(direction string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) RecordConnectionAccepted()            {}
func (noopMetrics) RecordConnectionClosed()              {}
func (noopMetrics) SetActiveConnections(int32)           {}
func (noopMetrics) RecordResponse(int, time.Duration)    {}
func (noopMetrics) RecordTimeout(string)                 {}
func (noopMetrics) RecordBytesTransferred(string, int64) {}
