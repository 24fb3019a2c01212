package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Listener owns the listening socket and the accept loop.
type Listener struct {
	ln     net.Listener
	logger *zap.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Listen binds an IPv4 TCP socket on host:port.
func Listen(host string, port int, logger *zap.Logger) (*Listener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := Config{Host: host, Port: port}
	ln, err := net.Listen("tcp4", cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Address(), err)
	}

	return &Listener{
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until Close is called, handing each one to
// onAccept and looping straight back to Accept. onAccept must not block.
//
// Accept errors other than the listener being closed are logged and retried
// with a short exponential backoff. Serve returns nil once the listener is closed.
func (l *Listener) Serve(onAccept func(net.Conn)) error {
	backoff := time.Duration(0)

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			l.logger.Error("Failed to accept connection",
				zap.Error(err),
				zap.Duration("retry_in", backoff),
			)

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-l.done:
				timer.Stop()
				return nil
			}
			continue
		}

		backoff = 0
		onAccept(conn)
	}
}

// Close stops the accept loop. It is idempotent and safe to call from any goroutine.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
		err = l.ln.Close()
	})
	return err
}
