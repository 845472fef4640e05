// ABOUTME: Pull-based audio source contract for dialog output
// ABOUTME: A short read is the authoritative end-of-source signal
package dialog

import (
	"errors"
	"io"
)

// AudioSource supplies audio bytes on demand.
//
// Read fills up to len(p) bytes. Returning fewer than len(p) bytes, or any
// error, means the source is finished; it will not be read again.
type AudioSource interface {
	Read(p []byte) (int, error)
}

// FromReader adapts an io.Reader, whose short reads are not terminal, to the
// AudioSource contract by reading until p is full or the reader ends.
func FromReader(r io.Reader) AudioSource {
	return fullReader{r: r}
}

type fullReader struct {
	r io.Reader
}

func (f fullReader) Read(p []byte) (int, error) {
	n, err := io.ReadFull(f.r, p)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}
