// ABOUTME: FLAC audio decoder
// ABOUTME: Streams FLAC frames through mewkiz/flac into converted PCM
package decode

import (
	"fmt"
	"io"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/mewkiz/flac"
)

// NewFLACReader decodes a FLAC stream into PCM in format to
func NewFLACReader(r io.Reader, to audio.Format) (*Reader, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	channels := int(info.NChannels)
	bitDepth := int(info.BitsPerSample)

	conv, err := NewConverter(int(info.SampleRate), channels, to)
	if err != nil {
		stream.Close()
		return nil, err
	}

	next := func() ([]int32, error) {
		frame, err := stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("flac frame: %w", err)
		}

		n := int(frame.BlockSize)
		samples := make([]int32, 0, n*channels)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, scaleTo24(frame.Subframes[ch].Samples[i], bitDepth))
			}
		}
		return samples, nil
	}

	return &Reader{next: next, conv: conv, closers: []io.Closer{stream}}, nil
}

// scaleTo24 moves a sample of the given bit depth into 24-bit range
func scaleTo24(sample int32, bitDepth int) int32 {
	shift := bitDepth - 24
	if shift > 0 {
		return sample >> shift
	}
	return sample << -shift
}
