// ABOUTME: Encoder interface definition
// ABOUTME: Common interface and codec dispatch for dialog audio encoders
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
)

// Encoder encodes PCM int32 samples to various formats
type Encoder interface {
	// Encode converts PCM samples to encoded audio data
	Encode(samples []int32) ([]byte, error)

	// FrameSamples is the per-channel sample count Encode requires, 0 for any
	FrameSamples() int

	// Close releases encoder resources
	Close() error
}

// New picks the encoder for the format's codec
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case audio.CodecPCM:
		return NewPCM(format)
	case audio.CodecOpus:
		return NewOpus(format)
	}
	return nil, fmt.Errorf("no encoder for codec %s", format.Codec)
}
