package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/jpegmirror/internal/logging"
	"github.com/muurk/jpegmirror/internal/workerpool"
)

const (
	// maxLinger bounds how long a closing connection waits for the peer to
	// finish sending after the response has been written
	maxLinger = 500 * time.Millisecond

	// maxLingerBytes bounds how much unread input is discarded while lingering
	maxLingerBytes = 256 << 10
)

// MessageBusy is the body of the 503 sent when the worker pool rejects a job
const MessageBusy = "server is busy"

type taskState int

const (
	stateReading taskState = iota
	stateDispatched
	stateWriting
	stateClosed
)

func (s taskState) String() string {
	switch s {
	case stateReading:
		return "reading"
	case stateDispatched:
		return "dispatched"
	case stateWriting:
		return "writing"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("taskState(%d)", int(s))
	}
}

// completion carries a worker result back to the task goroutine
type completion struct {
	output  []byte
	kind    workerpool.ErrorKind
	message string
	failed  bool
}

// connectionTask drives one accepted connection through
// reading -> dispatched -> writing -> closed.
//
// Only the goroutine running run mutates task fields. The timer callback
// closes the socket and the closed channel; worker callbacks send on done.
type connectionTask struct {
	conn       net.Conn
	remoteAddr string
	cfg        *Config
	pool       *workerpool.Pool
	logger     *zap.Logger
	metrics    Metrics

	state      taskState
	acceptedAt time.Time
	deadline   time.Time
	enqueuedAt time.Time
	responded  bool

	timer     *time.Timer
	timedOut  atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}

	// one slot: a completion arriving after the task has gone never blocks the worker
	done chan completion
}

var errNoPeerAddress = errors.New("peer address unavailable")

func newConnectionTask(conn net.Conn, cfg *Config, pool *workerpool.Pool, logger *zap.Logger, metrics Metrics) (*connectionTask, error) {
	addr := conn.RemoteAddr()
	if addr == nil {
		return nil, errNoPeerAddress
	}
	remoteAddr := addr.String()

	return &connectionTask{
		conn:       conn,
		remoteAddr: remoteAddr,
		cfg:        cfg,
		pool:       pool,
		logger:     logger.With(zap.String("remote_addr", remoteAddr)),
		metrics:    metrics,
		state:      stateReading,
		acceptedAt: time.Now(),
		closed:     make(chan struct{}),
		done:       make(chan completion, 1),
	}, nil
}

// run executes the whole exchange and always ends in exactly one close.
func (t *connectionTask) run() {
	defer t.close()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Panic in connection task",
				zap.Any("panic", r),
				zap.String("state", t.state.String()),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	logging.LogConnection(t.logger, t.remoteAddr, "connection_accepted")

	t.deadline = time.Now().Add(t.cfg.Timeout)
	t.timer = time.AfterFunc(t.cfg.Timeout, t.expire)

	resp := t.read()
	if resp == nil && t.state == stateDispatched {
		resp = t.await()
	}
	if resp != nil {
		t.write(resp)
	}
}

// expire runs on the timer goroutine. It never touches task state.
func (t *connectionTask) expire() {
	t.timedOut.Store(true)
	_ = t.conn.Close()
	t.closeOnce.Do(func() { close(t.closed) })
}

// read parses the request and dispatches it. It returns a response to write
// immediately, or nil either because the request was dispatched or because
// the connection is to be closed without one.
func (t *connectionTask) read() *response {
	rec := &headRecorder{r: t.conn}

	req, err := readRequest(newHeaderLimiter(rec, t.cfg.MaxHeaderSize), t.conn, t.cfg.MaxRequestSize)
	switch {
	case err == nil:
	case isHeaderTooLarge(err):
		t.logger.Info("Request header too large", zap.Int64("limit", t.cfg.MaxHeaderSize))
		return errorResponse(http.StatusRequestHeaderFieldsTooLarge, err.Error())
	case isTooLarge(err):
		t.logger.Info("Request body too large",
			zap.Int64("content_length", req.contentLength),
			zap.Int64("limit", t.cfg.MaxRequestSize),
		)
		return errorResponse(http.StatusRequestEntityTooLarge, err.Error())
	default:
		if t.reportTimeout() {
			return nil
		}
		if errors.Is(err, io.EOF) && len(rec.head) == 0 {
			logging.LogConnection(t.logger, t.remoteAddr, "closed_before_request")
			return nil
		}
		t.logger.Warn("Failed to read request", zap.Error(err))
		logging.LogRawBytes(t.logger, "Unparseable request head", rec.head)
		return nil
	}

	logRequestDetails(t.logger, t.remoteAddr, req)
	t.metrics.RecordBytesTransferred("in", int64(len(req.body)))

	t.enqueuedAt = time.Now()
	t.state = stateDispatched

	err = t.pool.Dispatch(req.body, workerpool.Callbacks{
		Success: func(output []byte) {
			t.done <- completion{output: output}
		},
		Error: func(kind workerpool.ErrorKind, message string) {
			t.done <- completion{kind: kind, message: message, failed: true}
		},
	})
	if err != nil {
		t.logger.Warn("Worker pool rejected request", zap.Error(err))
		return errorResponse(http.StatusServiceUnavailable, MessageBusy)
	}
	return nil
}

// await blocks until the worker reports back or the timer closes the connection.
func (t *connectionTask) await() *response {
	select {
	case c := <-t.done:
		latency := time.Since(t.enqueuedAt)
		if c.failed {
			status := http.StatusBadRequest
			if c.kind == workerpool.Internal {
				status = http.StatusInternalServerError
			}
			t.logger.Info("Processing failed",
				zap.Stringer("kind", c.kind),
				zap.Duration("latency", latency),
			)
			return errorResponse(status, c.message)
		}

		t.logger.Info("Processed successfully",
			zap.Int("bytes", len(c.output)),
			zap.Duration("latency", latency),
		)
		return &response{
			status:      http.StatusOK,
			contentType: t.cfg.MimeType,
			body:        c.output,
		}

	case <-t.closed:
		t.reportTimeout()
		return nil
	}
}

// write sends the response once. Failures are logged and never retried.
func (t *connectionTask) write(resp *response) {
	t.state = stateWriting

	n, err := writeResponse(t.conn, resp)
	t.metrics.RecordBytesTransferred("out", int64(n))
	if err != nil {
		if !t.reportTimeout() {
			t.logger.Warn("Failed to write response", zap.Error(err))
		}
		return
	}

	t.responded = true
	t.metrics.RecordResponse(resp.status, time.Since(t.acceptedAt))
	logging.LogHTTPResponse(t.logger, t.remoteAddr, resp.status, len(resp.body))
}

// reportTimeout logs and counts a timeout if the timer has fired.
func (t *connectionTask) reportTimeout() bool {
	if !t.timedOut.Load() {
		return false
	}
	t.logger.Info("Connection timed out",
		zap.String("state", t.state.String()),
		zap.Duration("timeout", t.cfg.Timeout),
	)
	t.metrics.RecordTimeout(t.state.String())
	return true
}

// close is the single exit of every path through run.
func (t *connectionTask) close() {
	t.state = stateClosed
	if t.timer != nil {
		t.timer.Stop()
	}

	if t.responded && !t.timedOut.Load() {
		t.linger()
	}
	_ = t.conn.Close()

	logging.LogConnection(t.logger, t.remoteAddr, "connection_closed")
}

// linger half-closes the connection and discards whatever the peer still
// sends, so the response is not destroyed by a reset when unread input remains.
func (t *connectionTask) linger() {
	cw, ok := t.conn.(interface{ CloseWrite() error })
	if !ok {
		return
	}
	if err := cw.CloseWrite(); err != nil {
		return
	}

	wait := min(maxLinger, time.Until(t.deadline))
	if wait <= 0 {
		return
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(wait))
	_, _ = io.Copy(io.Discard, io.LimitReader(t.conn, maxLingerBytes))
}
