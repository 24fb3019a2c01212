package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_ServerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)

	c.RecordConnectionAccepted()
	c.RecordConnectionAccepted()
	c.RecordConnectionClosed()
	c.SetActiveConnections(1)
	c.RecordResponse(200, 20*time.Millisecond)
	c.RecordResponse(413, time.Millisecond)
	c.RecordResponse(200, 30*time.Millisecond)
	c.RecordTimeout("dispatched")
	c.RecordBytesTransferred("in", 100)
	c.RecordBytesTransferred("out", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.connectionsAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectionsClosed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeConnections))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.responsesTotal.WithLabelValues("200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.responsesTotal.WithLabelValues("413")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.timeoutsTotal.WithLabelValues("dispatched")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.bytesTransferred.WithLabelValues("in")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.responseDuration))
	// zero-byte transfers create no series
	assert.Equal(t, 1, testutil.CollectAndCount(c.bytesTransferred))
}

func TestCollectors_PoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)

	c.SetQueueDepth(3)
	c.SetBusyWorkers(2)
	c.RecordProcessing("success", 5*time.Millisecond)
	c.RecordProcessing("internal", time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.queueDepth))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.busyWorkers))
	assert.Equal(t, 2, testutil.CollectAndCount(c.processingDuration))
}

func TestNewCollectors_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectors(reg)
	assert.Panics(t, func() { NewCollectors(reg) })
}

func TestNewRegistry_IncludesRuntimeCollectors(t *testing.T) {
	families, err := NewRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
}

func TestServer_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)
	c.RecordConnectionAccepted()

	srv := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, reg, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("metrics server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not start")
	}

	base := "http://" + srv.Addr().String()

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "jpegmirror_connections_accepted_total 1")

	resp, err = http.Get(base + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("metrics server did not stop")
	}
	assert.NoError(t, srv.Stop(context.Background()), "Stop should be idempotent")
}

func TestServer_ListenFailure(t *testing.T) {
	srv := NewServer(ServerConfig{Host: "127.0.0.1", Port: -1}, prometheus.NewRegistry(), nil)
	err := srv.Start(context.Background())
	assert.Error(t, err)
	assert.Nil(t, srv.Addr())
}
