// ABOUTME: Buffered dialog audio output stream over a pull source
// ABOUTME: Optional WAV header, exact-count reads and short-read exhaustion
package dialog

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/wav"
	"github.com/google/uuid"
)

// ErrRealLengthUnknown is returned when LengthReal is requested for a streaming source
var ErrRealLengthUnknown = errors.New("real length header needs a complete buffer")

// StreamOption configures an OutputStream
type StreamOption func(*streamOptions)

type streamOptions struct {
	header  bool
	policy  wav.LengthPolicy
	zeroPad bool
}

// WithWaveHeader prepends a RIFF/WAV header written with the given length policy
func WithWaveHeader(policy wav.LengthPolicy) StreamOption {
	return func(o *streamOptions) {
		o.header = true
		o.policy = policy
	}
}

// WithZeroPad pads a partial final read with silence up to the requested size.
// The read after it returns 0.
func WithZeroPad() StreamOption {
	return func(o *streamOptions) {
		o.zeroPad = true
	}
}

// OutputStream buffers a pull source so consumers can read exact byte counts.
// It is not safe for concurrent reads.
type OutputStream struct {
	ID     uuid.UUID
	format audio.Format
	src    AudioSource

	buf       []byte
	cursor    int
	consumed  int64
	exhausted bool
	err       error

	header  bool
	zeroPad bool
	scratch []byte

	reading  atomic.Bool
	enqueued atomic.Bool
}

// NewOutputStream wraps a streaming source
func NewOutputStream(src AudioSource, f audio.Format, opts ...StreamOption) (*OutputStream, error) {
	if src == nil {
		return nil, fmt.Errorf("nil audio source")
	}
	return newStream(src, f, -1, opts)
}

// NewBufferedOutputStream wraps audio that is already complete. It is the only
// constructor that accepts wav.LengthReal.
func NewBufferedOutputStream(data []byte, f audio.Format, opts ...StreamOption) (*OutputStream, error) {
	s, err := newStream(nil, f, int64(len(data)), opts)
	if err != nil {
		return nil, err
	}
	s.buf = append(s.buf, data...)
	s.exhausted = true
	return s, nil
}

func newStream(src AudioSource, f audio.Format, length int64, opts []StreamOption) (*OutputStream, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var o streamOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &OutputStream{
		ID:      uuid.New(),
		format:  f,
		src:     src,
		zeroPad: o.zeroPad,
	}

	if o.header {
		if o.policy == wav.LengthReal && length < 0 {
			return nil, ErrRealLengthUnknown
		}
		h, err := wav.Header(f, o.policy, length)
		if err != nil {
			return nil, fmt.Errorf("stream header: %w", err)
		}
		s.buf = append(s.buf, h...)
		s.header = true
	}
	return s, nil
}

// Format returns the stream's audio format
func (s *OutputStream) Format() audio.Format {
	return s.format
}

// Read copies exactly len(p) bytes unless the source ends first. A result
// shorter than len(p) marks the end of the stream; later reads return 0.
// len(p) must be positive.
func (s *OutputStream) Read(p []byte) int {
	if len(p) == 0 {
		panic("dialog: OutputStream.Read with empty buffer")
	}
	if !s.reading.CompareAndSwap(false, true) {
		panic("dialog: concurrent Read on OutputStream")
	}
	defer s.reading.Store(false)

	for s.buffered() < len(p) && !s.exhausted {
		s.pull(len(p) - s.buffered())
	}

	n := copy(p, s.buf[s.cursor:])
	s.cursor += n
	s.consumed += int64(n)

	// Fully consumed: rewind instead of growing forever
	if s.cursor == len(s.buf) {
		s.buf = s.buf[:0]
		s.cursor = 0
	}

	if s.zeroPad && n > 0 && n < len(p) {
		clear(p[n:])
		return len(p)
	}
	return n
}

// pull appends up to want bytes from the source
func (s *OutputStream) pull(want int) {
	if cap(s.scratch) < want {
		s.scratch = make([]byte, want)
	}
	chunk := s.scratch[:want]

	n, err := s.src.Read(chunk)
	if n < 0 || n > want {
		err = fmt.Errorf("audio source returned invalid count %d for %d bytes", n, want)
		n = 0
	}
	s.buf = append(s.buf, chunk[:n]...)

	if err != nil && !errors.Is(err, io.EOF) {
		s.err = err
	}
	if n < want || err != nil {
		s.exhausted = true
	}
}

func (s *OutputStream) buffered() int {
	return len(s.buf) - s.cursor
}

// Exhausted reports whether the source has ended
func (s *OutputStream) Exhausted() bool {
	return s.exhausted
}

// Drained reports whether every byte has been read
func (s *OutputStream) Drained() bool {
	return s.exhausted && s.buffered() == 0
}

// Err returns the source error that ended the stream, if it was not a clean end
func (s *OutputStream) Err() error {
	return s.err
}

// Consumed returns the number of bytes read so far, header included
func (s *OutputStream) Consumed() int64 {
	return s.consumed
}

// HasHeader reports whether the stream begins with a WAV header
func (s *OutputStream) HasHeader() bool {
	return s.header
}

// WriteTo drains the stream into w
func (s *OutputStream) WriteTo(w io.Writer) (int64, error) {
	chunk := make([]byte, 4096)
	var total int64
	for {
		n := s.Read(chunk)
		if n > 0 {
			written, err := w.Write(chunk[:n])
			total += int64(written)
			if err != nil {
				return total, err
			}
		}
		if n < len(chunk) {
			return total, s.err
		}
	}
}

// claim marks the stream as queued; it fails for a stream queued before
func (s *OutputStream) claim() bool {
	return s.enqueued.CompareAndSwap(false, true)
}
