// ABOUTME: Sample converter from decoded audio to device PCM bytes
// ABOUTME: Remixes channels, resamples and packs to the target bit depth
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/resample"
)

// Converter turns interleaved int32 samples (24-bit range) into PCM bytes in a target format
type Converter struct {
	fromChannels int
	to           audio.Format
	resampler    *resample.Resampler
}

// NewConverter creates a converter from decoded samples at fromRate/fromChannels to a PCM format
func NewConverter(fromRate, fromChannels int, to audio.Format) (*Converter, error) {
	if to.Kind() != audio.KindPCM {
		return nil, fmt.Errorf("conversion target must be pcm, got %s", to.Codec)
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}
	if fromRate <= 0 || fromChannels <= 0 {
		return nil, fmt.Errorf("invalid source: %d Hz, %d channels", fromRate, fromChannels)
	}

	return &Converter{
		fromChannels: fromChannels,
		to:           to,
		resampler:    resample.New(fromRate, to.SampleRate, to.Channels),
	}, nil
}

// Convert remixes, resamples and packs a chunk of samples
func (c *Converter) Convert(samples []int32) []byte {
	mixed := remix(samples, c.fromChannels, c.to.Channels)
	resampled := c.resampler.Resample(mixed)
	return pack(resampled, c.to.BitDepth)
}

// remix maps interleaved frames between channel counts.
// Downmixing to mono averages; every other case repeats source channels.
func remix(samples []int32, from, to int) []int32 {
	if from == to {
		return samples
	}
	frames := len(samples) / from
	out := make([]int32, frames*to)

	for f := 0; f < frames; f++ {
		in := samples[f*from : (f+1)*from]
		if to == 1 {
			var sum int64
			for _, s := range in {
				sum += int64(s)
			}
			out[f] = int32(sum / int64(from))
			continue
		}
		for ch := 0; ch < to; ch++ {
			out[f*to+ch] = in[ch%from]
		}
	}
	return out
}

// pack writes samples as little-endian PCM of the given bit depth
func pack(samples []int32, bitDepth int) []byte {
	width := bitDepth / 8
	out := make([]byte, len(samples)*width)

	for i, s := range samples {
		b := out[i*width:]
		switch bitDepth {
		case 8:
			b[0] = byte((s >> 16) + 128)
		case 16:
			binary.LittleEndian.PutUint16(b, uint16(audio.SampleToInt16(s)))
		case 24:
			p := audio.SampleTo24Bit(s)
			copy(b, p[:])
		case 32:
			binary.LittleEndian.PutUint32(b, uint32(s<<8))
		}
	}
	return out
}
