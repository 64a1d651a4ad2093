package testutil

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Transport is an in-memory session transport.
//
// Writes are recorded. Limit caps how many bytes one Write accepts; a
// capped write reports os.ErrDeadlineExceeded like a socket whose write
// deadline expired. Reads return chunks handed to Deliver until Close.
type Transport struct {
	mu       sync.Mutex
	written  bytes.Buffer
	writes   int
	limit    int
	writeErr error
	closed   bool

	chunks chan []byte
	done   chan struct{}
}

// NewTransport returns an open transport.
func NewTransport() *Transport {
	return &Transport{
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

// SetLimit caps the bytes accepted per Write. Zero means no cap.
func (t *Transport) SetLimit(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = n
}

// FailWrites makes every following Write fail with err.
func (t *Transport) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, io.ErrClosedPipe
	}
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	t.writes++
	if t.limit > 0 && len(p) > t.limit {
		t.written.Write(p[:t.limit])
		return t.limit, os.ErrDeadlineExceeded
	}
	t.written.Write(p)
	return len(p), nil
}

func (t *Transport) SetWriteDeadline(time.Time) error {
	return nil
}

// Deliver queues a chunk for Read.
func (t *Transport) Deliver(chunk string) {
	t.chunks <- []byte(chunk)
}

func (t *Transport) Read(p []byte) (int, error) {
	select {
	case chunk := <-t.chunks:
		return copy(p, chunk), nil
	case <-t.done:
		return 0, io.EOF
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transport already closed")
	}
	t.closed = true
	close(t.done)
	return nil
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Written returns everything written so far.
func (t *Transport) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written.String()
}

// Lines returns the written lines without terminators.
func (t *Transport) Lines() []string {
	text := strings.TrimSuffix(t.Written(), "\r\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\r\n")
}

// Writes returns the number of accepted Write calls.
func (t *Transport) Writes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes
}
