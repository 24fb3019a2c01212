package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/jpegmirror/internal/logging"
)

// rawHeadSize is how much of the incoming byte stream is kept for debug dumps
const rawHeadSize = 256

// TooLargeError reports a request body above the configured ceiling.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("request body exceeds maximum size of %d bytes", e.Limit)
}

// HeaderTooLargeError reports a request line plus headers above the
// configured ceiling.
type HeaderTooLargeError struct {
	Limit int64
}

func (e *HeaderTooLargeError) Error() string {
	return fmt.Sprintf("request header exceeds maximum size of %d bytes", e.Limit)
}

// headerSlack is read past the header limit so a buffered read that also
// pulls in body bytes does not trip it
const headerSlack = 4096

// headerLimiter fails reads once limit+headerSlack bytes have been consumed.
// lift removes the cap once the head has been parsed.
type headerLimiter struct {
	r         io.Reader
	limit     int64
	remaining int64
}

func newHeaderLimiter(r io.Reader, limit int64) *headerLimiter {
	return &headerLimiter{r: r, limit: limit, remaining: limit + headerSlack}
}

func (l *headerLimiter) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return l.r.Read(p)
	}
	if l.remaining == 0 {
		return 0, &HeaderTooLargeError{Limit: l.limit}
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}

// lift removes the cap and returns how many bytes were read while it held
func (l *headerLimiter) lift() int64 {
	read := l.limit + headerSlack - l.remaining
	l.remaining = -1
	return read
}

// headRecorder passes reads through and remembers the first bytes seen,
// so a request that fails to parse can be dumped.
type headRecorder struct {
	r    io.Reader
	head []byte
}

func (h *headRecorder) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if room := rawHeadSize - len(h.head); room > 0 && n > 0 {
		h.head = append(h.head, p[:min(n, room)]...)
	}
	return n, err
}

// request is one parsed HTTP request with its body fully read
type request struct {
	method        string
	path          string
	contentLength int64
	body          []byte
}

// readRequest reads a single HTTP/1.x request and its body from lim.
//
// A request line plus headers longer than the limiter's limit returns
// *HeaderTooLargeError.
// A declared Content-Length above maxSize is rejected before any body byte is
// read; bodies without a declared length are read up to maxSize+1 bytes. Both
// cases return *TooLargeError. If the client sent "Expect: 100-continue" the
// interim response is written to w once the declared length has been checked.
// Any other error is a framing or transport error.
func readRequest(lim *headerLimiter, w io.Writer, maxSize int64) (*request, error) {
	br := bufio.NewReader(lim)
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTTP request: %w", err)
	}
	if head := lim.lift() - int64(br.Buffered()); head > lim.limit {
		return nil, &HeaderTooLargeError{Limit: lim.limit}
	}
	// req.Body is never closed: Close drains the remainder of an oversized body.

	r := &request{
		method:        req.Method,
		path:          req.URL.Path,
		contentLength: req.ContentLength,
	}

	if req.ContentLength > maxSize {
		return r, &TooLargeError{Limit: maxSize}
	}

	if strings.EqualFold(req.Header.Get("Expect"), "100-continue") {
		if _, err := io.WriteString(w, "HTTP/1.1 100 Continue\r\n\r\n"); err != nil {
			return r, fmt.Errorf("failed to write 100 Continue: %w", err)
		}
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxSize+1))
	if err != nil {
		return r, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > maxSize {
		return r, &TooLargeError{Limit: maxSize}
	}

	r.body = body
	return r, nil
}

// response is what a task writes back before closing
type response struct {
	status      int
	contentType string
	body        []byte
}

// errorResponse builds a plain-text error response carrying message.
func errorResponse(status int, message string) *response {
	return &response{
		status:      status,
		contentType: "text/plain; charset=utf-8",
		body:        []byte(message + "\n"),
	}
}

// encode renders the full response: status line, headers, body.
// Content-Length and "Connection: close" are always present.
func (r *response) encode() ([]byte, error) {
	resp := &http.Response{
		StatusCode:    r.status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		ContentLength: int64(len(r.body)),
		Body:          io.NopCloser(bytes.NewReader(r.body)),
		Close:         true,
	}
	if r.contentType != "" {
		resp.Header.Set("Content-Type", r.contentType)
	}

	var buf bytes.Buffer
	buf.Grow(len(r.body) + 128)
	if err := resp.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode HTTP response: %w", err)
	}
	return buf.Bytes(), nil
}

// writeResponse writes the encoded response in a single call.
func writeResponse(w io.Writer, r *response) (int, error) {
	raw, err := r.encode()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(raw)
	if err != nil {
		return n, fmt.Errorf("failed to write HTTP response: %w", err)
	}
	return n, nil
}

// logRequestDetails logs a parsed request
func logRequestDetails(l *zap.Logger, remoteAddr string, r *request) {
	logging.LogHTTPRequest(l, remoteAddr, r.method, r.path, r.contentLength)
}

// isHeaderTooLarge reports whether err is a header-size rejection
func isHeaderTooLarge(err error) bool {
	var tooLarge *HeaderTooLargeError
	return errors.As(err, &tooLarge)
}

// isTooLarge reports whether err is a body-size rejection
func isTooLarge(err error) bool {
	var tooLarge *TooLargeError
	return errors.As(err, &tooLarge)
}
