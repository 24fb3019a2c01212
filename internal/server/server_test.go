package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/muurk/jpegmirror/internal/handler"
	"github.com/muurk/jpegmirror/internal/workerpool"
)

var reverseHandler = handler.Func(func(in []byte) ([]byte, error) {
	out := make([]byte, len(in))
	for i, b := range in {
		out[len(in)-1-i] = b
	}
	return out, nil
})

// startServer runs srv on an ephemeral loopback port and stops it at test end.
func startServer(t *testing.T, cfg Config, h handler.Handler, opts ...Option) (*Server, string) {
	t.Helper()

	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	srv, err := New(cfg, h, opts...)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(context.Background())
	}()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("server exited before becoming ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	t.Cleanup(func() {
		srv.Stop()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("Run did not return after Stop")
		}
	})

	return srv, srv.Addr().String()
}

func postRequest(body []byte) []byte {
	head := "POST /mirror HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n"
	return append([]byte(head), body...)
}

type result struct {
	resp *http.Response
	body []byte
}

// exchange writes raw to a fresh connection and reads one response.
// It also checks that the server closes the connection afterwards.
func exchange(t *testing.T, addr string, raw []byte) result {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write(raw)
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	_, err = br.ReadByte()
	assert.ErrorIs(t, err, io.EOF, "server should close the connection after the response")

	return result{resp: resp, body: body}
}

// expectNoResponse asserts the server closes the connection without writing anything.
func expectNoResponse(t *testing.T, conn net.Conn, within time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(within)))

	data, err := io.ReadAll(conn)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		t.Fatalf("connection still open after %s", within)
	}
	assert.Empty(t, data)
}

func TestServer_ReverseHandler(t *testing.T) {
	_, addr := startServer(t, Config{MimeType: "application/octet-stream", MaxRequestSize: 1024}, reverseHandler)

	res := exchange(t, addr, postRequest([]byte{1, 2, 3}))

	assert.Equal(t, http.StatusOK, res.resp.StatusCode)
	assert.Equal(t, []byte{3, 2, 1}, res.body)
	assert.Equal(t, "application/octet-stream", res.resp.Header.Get("Content-Type"))
	assert.Equal(t, int64(3), res.resp.ContentLength)
	assert.True(t, res.resp.Close, "response should carry Connection: close")
}

func TestServer_NoMimeType(t *testing.T) {
	_, addr := startServer(t, Config{}, reverseHandler)

	res := exchange(t, addr, postRequest([]byte("abc")))

	assert.Equal(t, http.StatusOK, res.resp.StatusCode)
	assert.Empty(t, res.resp.Header.Get("Content-Type"))
	assert.Equal(t, "cba", string(res.body))
}

func TestServer_BodySizeLimit(t *testing.T) {
	var calls atomic.Int32
	counting := handler.Func(func(in []byte) ([]byte, error) {
		calls.Add(1)
		return reverseHandler(in)
	})

	_, addr := startServer(t, Config{MaxRequestSize: 5}, counting)

	tests := []struct {
		name   string
		raw    []byte
		status int
		body   string
	}{
		{
			name:   "content-length over limit",
			raw:    postRequest([]byte("0123456789")),
			status: http.StatusRequestEntityTooLarge,
			body:   "request body exceeds maximum size of 5 bytes\n",
		},
		{
			name: "chunked over limit",
			raw: []byte("POST / HTTP/1.1\r\nHost: localhost\r\nTransfer-Encoding: chunked\r\n\r\n" +
				"a\r\n0123456789\r\n0\r\n\r\n"),
			status: http.StatusRequestEntityTooLarge,
			body:   "request body exceeds maximum size of 5 bytes\n",
		},
		{
			name:   "exactly at limit",
			raw:    postRequest([]byte("12345")),
			status: http.StatusOK,
			body:   "54321",
		},
		{
			name: "chunked within limit",
			raw: []byte("POST / HTTP/1.1\r\nHost: localhost\r\nTransfer-Encoding: chunked\r\n\r\n" +
				"3\r\nabc\r\n0\r\n\r\n"),
			status: http.StatusOK,
			body:   "cba",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := exchange(t, addr, tt.raw)
			assert.Equal(t, tt.status, res.resp.StatusCode)
			assert.Equal(t, tt.body, string(res.body))
		})
	}

	// only the two accepted requests reached the handler
	assert.Equal(t, int32(2), calls.Load())
}

func TestServer_HeaderSizeLimit(t *testing.T) {
	var calls atomic.Int32
	counting := handler.Func(func(in []byte) ([]byte, error) {
		calls.Add(1)
		return reverseHandler(in)
	})

	_, addr := startServer(t, Config{MaxHeaderSize: 1024, MaxRequestSize: 5}, counting)

	raw := "POST / HTTP/1.1\r\nHost: localhost\r\n" +
		"X-Pad: " + strings.Repeat("p", 8<<10) + "\r\n" +
		"Content-Length: 3\r\n\r\nabc"
	res := exchange(t, addr, []byte(raw))

	assert.Equal(t, http.StatusRequestHeaderFieldsTooLarge, res.resp.StatusCode)
	assert.Equal(t, "request header exceeds maximum size of 1024 bytes\n", string(res.body))
	assert.Zero(t, calls.Load())

	// a normal request on the same server still goes through
	res = exchange(t, addr, postRequest([]byte("abc")))
	assert.Equal(t, http.StatusOK, res.resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestServer_AcceptSurvivesBadConnections(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	srv, err := New(Config{Timeout: 5 * time.Second}, reverseHandler, WithLogger(logger))
	require.NoError(t, err)
	pool := workerpool.New(workerpool.Config{Size: 1}, reverseHandler, logger, nil)
	pool.Start()
	defer pool.Stop()

	orphanEnd, orphanPeer := net.Pipe()
	defer orphanPeer.Close()
	orphan := &noPeerConn{Conn: orphanEnd}
	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()

	ln := newTestListener(newFakeListener(
		acceptResult{err: errTransientAccept},
		acceptResult{conn: orphan},
		acceptResult{conn: serverEnd},
	), logger)

	served := make(chan error, 1)
	go func() {
		served <- ln.Serve(func(conn net.Conn) { srv.accept(conn, pool) })
	}()

	require.NoError(t, clientEnd.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = clientEnd.Write(postRequest([]byte("abc")))
	require.NoError(t, err)
	resp, err := http.ReadResponse(bufio.NewReader(clientEnd), nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cba", string(body))

	assert.True(t, orphan.closed.Load(), "connection without a peer address should be closed")
	assert.Equal(t, 1, logs.FilterMessage("Failed to accept connection").Len())
	assert.Equal(t, 1, logs.FilterMessage("Failed to set up connection").Len())

	require.NoError(t, ln.Close())
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
	srv.tasks.Wait()
	assert.Zero(t, srv.ActiveConnections())
}

func TestServer_EmptyBody(t *testing.T) {
	var got atomic.Int32
	got.Store(-1)
	h := handler.Func(func(in []byte) ([]byte, error) {
		got.Store(int32(len(in)))
		return in, nil
	})
	_, addr := startServer(t, Config{}, h)

	res := exchange(t, addr, []byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"))

	assert.Equal(t, http.StatusOK, res.resp.StatusCode)
	assert.Empty(t, res.body)
	assert.Equal(t, int64(0), res.resp.ContentLength)
	assert.Equal(t, int32(0), got.Load())
}

func TestServer_HandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		h      handler.Handler
		status int
		body   string
	}{
		{
			name: "bad input echoes message",
			h: handler.Func(func([]byte) ([]byte, error) {
				return nil, handler.BadInput("not valid jpeg format")
			}),
			status: http.StatusBadRequest,
			body:   "not valid jpeg format\n",
		},
		{
			name: "internal error hides details",
			h: handler.Func(func([]byte) ([]byte, error) {
				return nil, fmt.Errorf("open /etc/secret: permission denied")
			}),
			status: http.StatusInternalServerError,
			body:   "internal server error\n",
		},
		{
			name: "panic is internal",
			h: handler.Func(func([]byte) ([]byte, error) {
				panic("index out of range")
			}),
			status: http.StatusInternalServerError,
			body:   "internal server error\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, addr := startServer(t, Config{MimeType: "image/jpeg"}, tt.h)

			res := exchange(t, addr, postRequest([]byte("x")))
			assert.Equal(t, tt.status, res.resp.StatusCode)
			assert.Equal(t, tt.body, string(res.body))
			assert.Equal(t, "text/plain; charset=utf-8", res.resp.Header.Get("Content-Type"))
		})
	}
}

func TestServer_ExpectContinue(t *testing.T) {
	_, addr := startServer(t, Config{MaxRequestSize: 16}, reverseHandler)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = io.WriteString(conn, "PUT / HTTP/1.1\r\nHost: localhost\r\nContent-Length: 2\r\nExpect: 100-continue\r\n\r\n")
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	interim, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusContinue, interim.StatusCode)

	_, err = io.WriteString(conn, "ab")
	require.NoError(t, err)

	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ba", string(body))
}

func TestServer_ExpectContinueTooLarge(t *testing.T) {
	_, addr := startServer(t, Config{MaxRequestSize: 4}, reverseHandler)

	// no body is sent: the server must answer without waiting for it
	res := exchange(t, addr, []byte("PUT / HTTP/1.1\r\nHost: localhost\r\nContent-Length: 1000\r\nExpect: 100-continue\r\n\r\n"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.resp.StatusCode)
}

func TestServer_MalformedRequest(t *testing.T) {
	var calls atomic.Int32
	h := handler.Func(func(in []byte) ([]byte, error) {
		calls.Add(1)
		return in, nil
	})
	_, addr := startServer(t, Config{}, h)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, "this is not http\r\n\r\n")
	require.NoError(t, err)

	expectNoResponse(t, conn, 5*time.Second)
	assert.Zero(t, calls.Load())
}

func TestServer_SilentConnectionTimesOut(t *testing.T) {
	_, addr := startServer(t, Config{Timeout: 100 * time.Millisecond}, reverseHandler)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	start := time.Now()
	expectNoResponse(t, conn, 5*time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestServer_HandlerPastTimeout(t *testing.T) {
	finished := make(chan struct{})
	slow := handler.Func(func(in []byte) ([]byte, error) {
		defer close(finished)
		time.Sleep(300 * time.Millisecond)
		return in, nil
	})

	srv, addr := startServer(t, Config{Timeout: 100 * time.Millisecond}, slow)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(postRequest([]byte("late")))
	require.NoError(t, err)

	expectNoResponse(t, conn, 5*time.Second)

	// the worker still completes; its callback must not block or panic
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never finished")
	}
	require.Eventually(t, func() bool {
		return srv.ActiveConnections() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_StopDrainsInFlight(t *testing.T) {
	const inFlight = 5

	entered := make(chan struct{}, inFlight)
	release := make(chan struct{})
	blocking := handler.Func(func(in []byte) ([]byte, error) {
		entered <- struct{}{}
		<-release
		return reverseHandler(in)
	})

	srv, err := New(Config{Host: "127.0.0.1", Timeout: 10 * time.Second}, blocking,
		WithWorkers(workerpool.Config{Size: inFlight}),
	)
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(context.Background()) }()
	<-srv.Ready()
	addr := srv.Addr().String()

	results := make(chan result, inFlight)
	for i := 0; i < inFlight; i++ {
		go func(i int) {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				results <- result{}
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
			if _, err := conn.Write(postRequest([]byte{byte(i), 0xff})); err != nil {
				results <- result{}
				return
			}
			resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
			if err != nil {
				results <- result{}
				return
			}
			body, _ := io.ReadAll(resp.Body)
			results <- result{resp: resp, body: body}
		}(i)
	}

	for i := 0; i < inFlight; i++ {
		select {
		case <-entered:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d requests reached the handler", i, inFlight)
		}
	}
	assert.Equal(t, inFlight, srv.ActiveConnections())

	srv.Stop()
	srv.Stop() // idempotent

	// the listener goes away while the tasks are still running
	require.Eventually(t, func() bool {
		c, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return true
		}
		_ = c.Close()
		return false
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-runErr:
		t.Fatal("Run returned before in-flight connections finished")
	default:
	}

	close(release)

	for i := 0; i < inFlight; i++ {
		res := <-results
		require.NotNil(t, res.resp, "in-flight request %d got no response", i)
		assert.Equal(t, http.StatusOK, res.resp.StatusCode)
		assert.Len(t, res.body, 2)
	}

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after drain")
	}
	assert.Zero(t, srv.ActiveConnections())
}

func TestServer_SecondRun(t *testing.T) {
	srv, _ := startServer(t, Config{}, reverseHandler)

	err := srv.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// the first Run is unaffected
	res := exchange(t, srv.Addr().String(), postRequest([]byte("ok")))
	assert.Equal(t, "ko", string(res.body))
}

func TestServer_StopBeforeRun(t *testing.T) {
	srv, err := New(Config{Host: "127.0.0.1"}, reverseHandler)
	require.NoError(t, err)

	srv.Stop()

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after an earlier Stop")
	}
}

func TestServer_ContextCancel(t *testing.T) {
	srv, err := New(Config{Host: "127.0.0.1"}, reverseHandler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	<-srv.Ready()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestServer_BindFailure(t *testing.T) {
	taken, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	port := taken.Addr().(*net.TCPAddr).Port
	srv, err := New(Config{Host: "127.0.0.1", Port: port}, reverseHandler)
	require.NoError(t, err)

	err = srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.Nil(t, srv.Addr())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	_, err = New(Config{Port: 70000}, reverseHandler)
	assert.Error(t, err)

	srv, err := New(Config{}, reverseHandler)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultMaxRequestSize), srv.config.MaxRequestSize)
	assert.Equal(t, DefaultTimeout, srv.config.Timeout)
	assert.Nil(t, srv.Addr())
}
