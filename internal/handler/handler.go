// Package handler defines the processing capability the server dispatches
// request bodies to.
//
// A Handler turns one request body into one response body. It runs on a
// worker goroutine and may block or burn CPU. Failures caused by the client
// (undecodable input, unsupported format) are reported with BadInput so the
// server can answer with a 4xx status and echo the message; every other
// error is treated as an internal failure and its text never reaches the
// client.
package handler

import (
	"errors"
	"fmt"
)

// Handler processes a request body synchronously.
type Handler interface {
	Handle(input []byte) ([]byte, error)
}

// Func adapts an ordinary function to the Handler interface.
type Func func(input []byte) ([]byte, error)

// Handle calls f(input).
func (f Func) Handle(input []byte) ([]byte, error) {
	return f(input)
}

// BadInputError marks a failure caused by the request content.
// Its message is safe to return to the client.
type BadInputError struct {
	Message string
	Err     error // optional underlying cause, never shown to the client
}

func (e *BadInputError) Error() string {
	return e.Message
}

func (e *BadInputError) Unwrap() error {
	return e.Err
}

// BadInput returns a client-caused error with the given message.
func BadInput(message string) error {
	return &BadInputError{Message: message}
}

// BadInputf is BadInput with formatting. A %w verb records the cause.
func BadInputf(format string, args ...any) error {
	wrapped := fmt.Errorf(format, args...)
	return &BadInputError{Message: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

// IsBadInput reports whether err, or anything it wraps, is a BadInputError.
func IsBadInput(err error) bool {
	var bad *BadInputError
	return errors.As(err, &bad)
}
