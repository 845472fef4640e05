// ABOUTME: Streaming WAV file writer
// ABOUTME: Writes a zero-length header up front and rewrites the lengths on Close
package wav

import (
	"fmt"
	"io"
	"sync"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
)

// Writer appends PCM payload to a seekable destination
type Writer struct {
	mu      sync.Mutex
	ws      io.WriteSeeker
	written int64
	closed  bool
}

// NewWriter writes a LengthZero header for the format and returns a Writer
func NewWriter(ws io.WriteSeeker, f audio.Format) (*Writer, error) {
	h, err := Header(f, LengthZero, 0)
	if err != nil {
		return nil, err
	}
	if _, err := ws.Write(h); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{ws: ws}, nil
}

// Write appends payload bytes
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("wav writer closed")
	}
	n, err := w.ws.Write(p)
	w.written += int64(n)
	return n, err
}

// Written returns the payload length so far
func (w *Writer) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close rewrites the header lengths. It does not close the destination.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return RewriteLengths(w.ws, w.written)
}
