// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 8, 16, 24 and 32-bit little-endian PCM to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	bitDepth int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	switch format.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", format.BitDepth)
	}

	return &PCMDecoder{
		bitDepth: format.BitDepth,
	}, nil
}

// Decode converts PCM bytes to int32 samples. Trailing partial samples are ignored.
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	width := d.bitDepth / 8
	samples := make([]int32, len(data)/width)

	for i := range samples {
		b := data[i*width:]
		switch d.bitDepth {
		case 8:
			// 8-bit WAV PCM is unsigned
			samples[i] = (int32(b[0]) - 128) << 16
		case 16:
			samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(b)))
		case 24:
			samples[i] = audio.SampleFrom24Bit([3]byte{b[0], b[1], b[2]})
		case 32:
			samples[i] = int32(binary.LittleEndian.Uint32(b)) >> 8
		}
	}
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
