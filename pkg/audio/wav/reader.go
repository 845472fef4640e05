// ABOUTME: Chunk-walking WAV reader for files with extra RIFF chunks
// ABOUTME: Skips LIST/fact chunks and leaves the reader at the start of the data chunk
package wav

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
)

// ReadHeader walks the RIFF chunks of r up to the data chunk. Unlike ParseHeader
// it accepts any chunk order and fmt chunks longer than 16 bytes. On return r is
// positioned at the first payload byte.
func ReadHeader(r io.Reader) (Info, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("%w: missing RIFF/WAVE tags", ErrMalformedHeader)
	}

	info := Info{RIFFSize: binary.LittleEndian.Uint32(riff[4:8])}
	haveFmt := false

	var chunk [8]byte
	for {
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return Info{}, fmt.Errorf("%w: data chunk not found: %v", ErrMalformedHeader, err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return Info{}, fmt.Errorf("%w: fmt chunk of %d bytes", ErrMalformedHeader, size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Info{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
			}
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != 1 {
				return Info{}, fmt.Errorf("%w: format tag %d", ErrNotPCM, tag)
			}
			info.Format = audio.Format{
				Codec:      audio.CodecPCM,
				Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
				BitDepth:   int(binary.LittleEndian.Uint16(body[14:16])),
			}
			haveFmt = true
			if err := skipPad(r, size); err != nil {
				return Info{}, err
			}

		case "data":
			if !haveFmt {
				return Info{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrMalformedHeader)
			}
			info.DataSize = size
			return info, nil

		default:
			// Chunks are word-aligned
			skip := int64(size) + int64(size%2)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return Info{}, fmt.Errorf("%w: skipping %q chunk: %v", ErrMalformedHeader, id, err)
			}
		}
	}
}

func skipPad(r io.Reader, size uint32) error {
	if size%2 == 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	return nil
}
