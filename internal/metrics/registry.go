// Package metrics provides Prometheus metrics for jpegmirror.
//
// Metrics are optional. When disabled, the server and worker pool fall back to
// their no-op implementations and nothing is registered.
//
// Usage:
//
//	reg := metrics.NewRegistry()
//	collectors := metrics.NewCollectors(reg)
//
//	srv, _ := server.New(cfg, h,
//	    server.WithMetrics(collectors),
//	    server.WithPoolMetrics(collectors),
//	)
//
//	metricsServer := metrics.NewServer(metrics.ServerConfig{Port: 9090}, reg, logger)
//	go metricsServer.Start(ctx)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace prefixes every metric name
const Namespace = "jpegmirror"

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
