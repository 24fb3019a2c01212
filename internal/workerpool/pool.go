package workerpool

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/jpegmirror/internal/handler"
)

// DefaultFallbackSize is used when the number of CPUs cannot be determined
const DefaultFallbackSize = 8

// InternalErrorMessage is the only text a client ever sees for server-side failures
const InternalErrorMessage = "internal server error"

var (
	// ErrQueueFull is returned by Dispatch when a bounded queue has no room left
	ErrQueueFull = errors.New("worker pool queue is full")

	// ErrStopped is returned by Dispatch once Stop has been called
	ErrStopped = errors.New("worker pool is stopped")
)

// ErrorKind classifies a processing failure for the caller
type ErrorKind int

const (
	// BadRequest means the input was rejected by the handler (client-caused)
	BadRequest ErrorKind = iota
	// Internal means the handler failed for any other reason (server-caused)
	Internal
)

// String returns a short name for logs
func (k ErrorKind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case Internal:
		return "internal"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Callbacks receive the outcome of one dispatched job.
// Exactly one of them is called, exactly once, on the worker goroutine.
type Callbacks struct {
	Success func(output []byte)
	Error   func(kind ErrorKind, message string)
}

// Config sizes the pool
type Config struct {
	// Size is the number of worker goroutines. 0 = number of CPUs.
	Size int `mapstructure:"size" yaml:"size" validate:"min=0,max=4096"`

	// QueueSize bounds the number of jobs waiting for a worker.
	// 0 = unbounded.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" validate:"min=0"`
}

// Metrics observes pool activity
type Metrics interface {
	SetQueueDepth(depth int)
	SetBusyWorkers(busy int)
	RecordProcessing(outcome string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) SetQueueDepth(int)                      {}
func (noopMetrics) SetBusyWorkers(int)                     {}
func (noopMetrics) RecordProcessing(string, time.Duration) {}

// Stats is a point-in-time snapshot of the pool
type Stats struct {
	Size   int
	Queued int
	Busy   int
}

type job struct {
	input     []byte
	callbacks Callbacks
	queuedAt  time.Time
}

// Pool runs handler invocations on a fixed set of goroutines fed by a FIFO queue.
// No ordering is guaranteed between jobs beyond FIFO admission, and nothing is cached.
type Pool struct {
	size      int
	queueSize int
	handler   handler.Handler
	logger    *zap.Logger
	metrics   Metrics

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []job
	busy    int
	started bool
	stopped bool

	wg sync.WaitGroup
}

// DefaultSize returns the worker count used when Config.Size is zero.
func DefaultSize() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return DefaultFallbackSize
}

// New creates a stopped pool. Call Start to launch the workers.
// A nil metrics uses a no-op implementation.
func New(cfg Config, h handler.Handler, logger *zap.Logger, metrics Metrics) *Pool {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		size:      size,
		queueSize: cfg.QueueSize,
		handler:   h,
		logger:    logger,
		metrics:   metrics,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Size returns the fixed number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Start launches the workers. Calling it more than once, or after Stop, does nothing.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("Worker pool started",
		zap.Int("workers", p.size),
		zap.Int("queue_size", p.queueSize),
	)
}

// Dispatch queues input for processing and returns immediately.
// It only fails when the pool is stopped or a bounded queue is full; in that
// case no callback will be invoked.
func (p *Pool) Dispatch(input []byte, callbacks Callbacks) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.queueSize > 0 && len(p.queue) >= p.queueSize {
		return ErrQueueFull
	}

	p.queue = append(p.queue, job{
		input:     input,
		callbacks: callbacks,
		queuedAt:  time.Now(),
	})
	p.metrics.SetQueueDepth(len(p.queue))
	p.cond.Signal()
	return nil
}

// Stop refuses further jobs, lets the workers finish everything already
// queued, and waits for them to exit. Safe to call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	alreadyStopped := p.stopped
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()

	if !alreadyStopped {
		p.logger.Info("Worker pool stopped")
	}
}

// Stats returns the current queue depth and number of busy workers.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Size: p.size, Queued: len(p.queue), Busy: p.busy}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// stopped and drained
			p.mu.Unlock()
			return
		}

		j := p.queue[0]
		p.queue[0] = job{}
		p.queue = p.queue[1:]
		p.busy++
		p.metrics.SetQueueDepth(len(p.queue))
		p.metrics.SetBusyWorkers(p.busy)
		p.mu.Unlock()

		p.execute(id, j)

		p.mu.Lock()
		p.busy--
		p.metrics.SetBusyWorkers(p.busy)
		p.mu.Unlock()
	}
}

// execute runs one job and reports through exactly one callback.
func (p *Pool) execute(id int, j job) {
	start := time.Now()
	output, err := p.invoke(j.input)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		p.metrics.RecordProcessing("success", elapsed)
		p.logger.Debug("Job processed",
			zap.Int("worker", id),
			zap.Duration("queued_for", start.Sub(j.queuedAt)),
			zap.Duration("took", elapsed),
		)
		j.callbacks.Success(output)

	case handler.IsBadInput(err):
		p.metrics.RecordProcessing(BadRequest.String(), elapsed)
		p.logger.Debug("Job rejected input",
			zap.Int("worker", id),
			zap.Error(err),
		)
		j.callbacks.Error(BadRequest, err.Error())

	default:
		p.metrics.RecordProcessing(Internal.String(), elapsed)
		p.logger.Error("Internal processing error",
			zap.Int("worker", id),
			zap.Error(err),
		)
		j.callbacks.Error(Internal, InternalErrorMessage)
	}
}

// invoke calls the handler, turning a panic into an ordinary error.
func (p *Pool) invoke(input []byte) (output []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler.Handle(input)
}
