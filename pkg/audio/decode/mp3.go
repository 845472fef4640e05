// ABOUTME: MP3 audio decoder
// ABOUTME: Streams MP3 bytes through go-mp3 into converted PCM
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always emits 16-bit stereo
const (
	mp3Channels   = 2
	mp3FrameBytes = 4
)

// NewMP3Reader decodes an MP3 byte stream into PCM in format to.
// go-mp3 reads the first frame header here, so r must already have data or block until it does.
func NewMP3Reader(r io.Reader, to audio.Format) (*Reader, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	conv, err := NewConverter(decoder.SampleRate(), mp3Channels, to)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 8192)
	carry := 0
	next := func() ([]int32, error) {
		n, err := decoder.Read(buf[carry:])
		have := carry + n
		usable := have - have%mp3FrameBytes

		samples := make([]int32, usable/2)
		for i := range samples {
			samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(buf[i*2:])))
		}

		carry = copy(buf, buf[usable:have])
		if err != nil && err != io.EOF {
			return samples, fmt.Errorf("mp3 decode error: %w", err)
		}
		return samples, err
	}

	return &Reader{next: next, conv: conv}, nil
}
