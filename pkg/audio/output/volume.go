// ABOUTME: Software volume control for PCM frames
// ABOUTME: Scales little-endian samples in place with clipping protection
package output

import (
	"encoding/binary"
	"math"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
)

// ApplyVolume scales PCM bytes in place. volume is 0-100.
func ApplyVolume(p []byte, bitDepth, volume int, muted bool) {
	multiplier := getVolumeMultiplier(volume, muted)
	if multiplier == 1.0 {
		return
	}

	switch bitDepth {
	case 8:
		for i := range p {
			p[i] = byte(clamp(float64(int(p[i])-128)*multiplier, math.MinInt8, math.MaxInt8) + 128)
		}
	case 16:
		for i := 0; i+1 < len(p); i += 2 {
			s := int16(binary.LittleEndian.Uint16(p[i:]))
			scaled := clamp(float64(s)*multiplier, math.MinInt16, math.MaxInt16)
			binary.LittleEndian.PutUint16(p[i:], uint16(int16(scaled)))
		}
	case 24:
		for i := 0; i+2 < len(p); i += 3 {
			s := audio.SampleFrom24Bit([3]byte{p[i], p[i+1], p[i+2]})
			packed := audio.SampleTo24Bit(int32(clamp(float64(s)*multiplier, audio.Min24Bit, audio.Max24Bit)))
			copy(p[i:i+3], packed[:])
		}
	case 32:
		for i := 0; i+3 < len(p); i += 4 {
			s := int32(binary.LittleEndian.Uint32(p[i:]))
			scaled := clamp(float64(s)*multiplier, math.MinInt32, math.MaxInt32)
			binary.LittleEndian.PutUint32(p[i:], uint32(int32(scaled)))
		}
	}
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	return float64(volume) / 100.0
}

func clamp(v, lo, hi float64) int64 {
	if v > hi {
		return int64(hi)
	}
	if v < lo {
		return int64(lo)
	}
	return int64(v)
}
