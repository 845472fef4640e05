// ABOUTME: Pull-based reader producing converted PCM bytes
// ABOUTME: Adapts packet decoders and raw PCM streams into io.Readers
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
)

// PacketSource yields encoded packets until io.EOF
type PacketSource interface {
	NextPacket() ([]byte, error)
}

// Reader yields PCM bytes in the converter's target format.
// It returns io.EOF once the underlying source is drained.
type Reader struct {
	next    func() ([]int32, error)
	conv    *Converter
	pending []byte
	err     error
	closers []io.Closer
}

// Read fills p with converted bytes
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		samples, err := r.next()
		if len(samples) > 0 {
			r.pending = r.conv.Convert(samples)
		}
		if err != nil {
			r.err = err
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Close releases the decoder and any source the reader owns
func (r *Reader) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewPacketReader decodes packets from src with dec, whose output is at from's rate and channels
func NewPacketReader(src PacketSource, dec Decoder, from, to audio.Format) (*Reader, error) {
	conv, err := NewConverter(from.SampleRate, from.Channels, to)
	if err != nil {
		return nil, err
	}

	next := func() ([]int32, error) {
		packet, err := src.NextPacket()
		if err != nil {
			return nil, err
		}
		samples, err := dec.Decode(packet)
		if err != nil {
			return nil, fmt.Errorf("decode packet: %w", err)
		}
		return samples, nil
	}

	return &Reader{next: next, conv: conv, closers: []io.Closer{dec}}, nil
}

// NewPCMReader converts a raw PCM byte stream in format from into format to
func NewPCMReader(r io.Reader, from, to audio.Format) (*Reader, error) {
	dec, err := NewPCM(from)
	if err != nil {
		return nil, err
	}
	conv, err := NewConverter(from.SampleRate, from.Channels, to)
	if err != nil {
		return nil, err
	}

	// Read whole sample frames so a chunk never splits a sample
	buf := make([]byte, from.BlockAlign()*512)
	next := func() ([]int32, error) {
		n, err := io.ReadFull(r, buf)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		usable := n - n%from.BlockAlign()
		samples, decErr := dec.Decode(buf[:usable])
		if decErr != nil {
			return nil, decErr
		}
		return samples, err
	}

	return &Reader{next: next, conv: conv}, nil
}
