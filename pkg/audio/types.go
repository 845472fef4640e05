// ABOUTME: Audio type definitions
// ABOUTME: Defines dialog audio formats, the supported catalog and sample conversions
package audio

import (
	"errors"
	"fmt"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Codec names used in Format.Codec
const (
	CodecPCM  = "pcm"
	CodecMP3  = "mp3"
	CodecOpus = "opus"
)

var (
	// ErrUnknownFormat is returned for labels outside the catalog
	ErrUnknownFormat = errors.New("unknown audio format")
	// ErrInvalidFormat is returned by Validate
	ErrInvalidFormat = errors.New("invalid audio format")
)

// Kind separates raw PCM from compressed encodings
type Kind int

const (
	KindPCM Kind = iota
	KindCompressed
)

func (k Kind) String() string {
	if k == KindPCM {
		return "pcm"
	}
	return "compressed"
}

// Format describes a dialog audio stream format.
// PCM formats use BitDepth; compressed formats use BitRate (bits per second).
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
	BitRate    int
}

// DefaultOutput is the format dialog audio is played in
var DefaultOutput = Format{Codec: CodecPCM, SampleRate: 16000, Channels: 1, BitDepth: 16}

// Kind returns the format kind
func (f Format) Kind() Kind {
	if f.Codec == CodecPCM {
		return KindPCM
	}
	return KindCompressed
}

// Validate checks that exactly the fields meaningful for the kind are set
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("%w: sample rate %d, channels %d", ErrInvalidFormat, f.SampleRate, f.Channels)
	}
	switch f.Codec {
	case CodecPCM:
		switch f.BitDepth {
		case 8, 16, 24, 32:
		default:
			return fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidFormat, f.BitDepth)
		}
		if f.BitRate != 0 {
			return fmt.Errorf("%w: pcm format carries a bit rate", ErrInvalidFormat)
		}
	case CodecMP3, CodecOpus:
		if f.BitRate <= 0 {
			return fmt.Errorf("%w: %s format needs a bit rate", ErrInvalidFormat, f.Codec)
		}
		if f.BitDepth != 0 {
			return fmt.Errorf("%w: %s format carries a bit depth", ErrInvalidFormat, f.Codec)
		}
	default:
		return fmt.Errorf("%w: unknown codec %q", ErrInvalidFormat, f.Codec)
	}
	return nil
}

// BytesPerSample returns the size of one sample of one channel (0 for compressed formats)
func (f Format) BytesPerSample() int {
	if f.Kind() != KindPCM {
		return 0
	}
	return f.BitDepth / 8
}

// BlockAlign returns the size of one interleaved sample frame
func (f Format) BlockAlign() int {
	return f.BytesPerSample() * f.Channels
}

// ByteRate returns bytes per second
func (f Format) ByteRate() int {
	if f.Kind() != KindPCM {
		return f.BitRate / 8
	}
	return f.SampleRate * f.BlockAlign()
}

// FrameBytes returns the byte size of a hardware frame holding the given sample count
func (f Format) FrameBytes(samples int) int {
	return samples * f.BlockAlign()
}

// Label returns the wire label for the format, e.g. raw-16khz-16bit-mono-pcm
func (f Format) Label() string {
	khz := f.SampleRate / 1000
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	switch f.Codec {
	case CodecPCM:
		return fmt.Sprintf("raw-%dkhz-%dbit-%s-pcm", khz, f.BitDepth, ch)
	case CodecMP3:
		return fmt.Sprintf("audio-%dkhz-%dkbitrate-%s-mp3", khz, f.BitRate/1000, ch)
	case CodecOpus:
		return fmt.Sprintf("audio-%dkhz-%dkbps-%s-opus", khz, f.BitRate/1000, ch)
	}
	return fmt.Sprintf("%s-%dhz-%dch", f.Codec, f.SampleRate, f.Channels)
}

func (f Format) String() string {
	return f.Label()
}

// Catalog returns the formats a dialog backend may deliver
func Catalog() []Format {
	return []Format{
		{Codec: CodecPCM, SampleRate: 8000, Channels: 1, BitDepth: 16},
		{Codec: CodecPCM, SampleRate: 16000, Channels: 1, BitDepth: 16},
		{Codec: CodecMP3, SampleRate: 16000, Channels: 1, BitRate: 32000},
		{Codec: CodecMP3, SampleRate: 16000, Channels: 1, BitRate: 64000},
		{Codec: CodecMP3, SampleRate: 16000, Channels: 1, BitRate: 128000},
		{Codec: CodecMP3, SampleRate: 24000, Channels: 1, BitRate: 48000},
		{Codec: CodecMP3, SampleRate: 24000, Channels: 1, BitRate: 96000},
		{Codec: CodecMP3, SampleRate: 24000, Channels: 1, BitRate: 160000},
		{Codec: CodecOpus, SampleRate: 16000, Channels: 1, BitRate: 16000},
		{Codec: CodecOpus, SampleRate: 24000, Channels: 1, BitRate: 24000},
	}
}

// FormatFromLabel looks a catalog format up by its label
func FormatFromLabel(label string) (Format, error) {
	for _, f := range Catalog() {
		if f.Label() == label {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("%w: %s", ErrUnknownFormat, label)
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
