// Package server implements the jpegmirror connection engine.
//
// The server accepts IPv4 TCP connections and answers exactly one HTTP/1.x
// request per connection. The request body is handed to a handler.Handler
// running on a worker pool, and the result (or an error) is written back
// before the connection is closed. There is no routing: every method and path
// is treated the same way.
//
// # Connection Lifecycle
//
// Each accepted connection gets its own goroutine running a small state machine:
//
//	reading -> dispatched -> writing -> closed
//
//  1. reading: parse one request; a head larger than MaxHeaderSize is
//     answered with 431 and bodies larger than MaxRequestSize with 413.
//     Neither is dispatched
//  2. dispatched: the body is queued on the worker pool; the goroutine waits
//     for the result
//  3. writing: one write of status line, headers and body
//  4. closed: half-close, briefly discard leftover input, close
//
// A single timer per connection bounds the whole exchange. When it fires it
// closes the socket. Blocked reads and writes then fail and the task goes
// straight to closed; a task waiting on the pool gives up without writing and
// the late worker result is dropped.
//
// # Responses
//
//	200  handler output, Content-Type = Config.MimeType (if set)
//	400  handler rejected the input; the message is echoed
//	413  request body exceeds maximum size of N bytes
//	431  request header exceeds maximum size of N bytes
//	500  internal server error (details are only logged)
//	503  server is busy (worker queue full)
//
// Every response carries Content-Length and "Connection: close". Malformed
// requests get no response; the connection is closed.
//
// # Usage Example
//
//	h, _ := mirror.New(mirror.Options{})
//	srv, err := server.New(server.Config{Port: 17070, MimeType: mirror.MimeType}, h,
//	    server.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Run blocks until Stop is called or ctx is cancelled
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// Stop (or cancelling the context passed to Run):
//  1. Closes the listener so no new connections are accepted
//  2. Waits for every in-flight connection to finish on its own
//  3. Stops the worker pool
//
// In-flight connections are never force-closed; each is still bounded by its
// own timeout.
package server
