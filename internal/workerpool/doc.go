// Package workerpool offloads CPU-bound request processing from connection
// goroutines.
//
// A Pool owns a fixed number of worker goroutines and a FIFO queue. The
// connection side calls Dispatch, which only appends to the queue and
// returns; a worker later runs the handler and reports through exactly one of
// the two Callbacks. Callbacks run on the worker goroutine, so callers that
// own per-connection state must hand the result back to their own goroutine
// (the server does this with a one-slot buffered channel).
//
// # Error Mapping
//
//   - handler success            -> Callbacks.Success(output)
//   - handler.IsBadInput(err)    -> Callbacks.Error(BadRequest, err.Error())
//   - any other error or a panic -> Callbacks.Error(Internal, "internal server error")
//
// The text of internal errors is logged and never passed to the callback.
//
// # Queue Bound
//
// With Config.QueueSize == 0 the queue is unbounded and Dispatch only fails
// after Stop. A positive QueueSize caps the number of waiting jobs and
// Dispatch returns ErrQueueFull when the cap is reached, which lets the
// server shed load with a 503 instead of growing memory without limit.
//
// # Lifecycle
//
//	pool := workerpool.New(workerpool.Config{}, h, logger, nil)
//	pool.Start()
//	defer pool.Stop() // finishes queued jobs, then joins workers
package workerpool
