// ABOUTME: Canonical 44-byte RIFF/WAV header synthesis and parsing
// ABOUTME: Supports real, maximum and zero length policies for streaming audio
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
)

// HeaderSize is the size of the canonical PCM header
const HeaderSize = 44

// MaxLength is the sentinel RIFF size used for streams of unknown length
const MaxLength = math.MaxInt32 - 8

var (
	// ErrNotPCM is returned when a header is requested for a compressed format
	ErrNotPCM = errors.New("wav header requires a pcm format")
	// ErrMalformedHeader is returned by ParseHeader
	ErrMalformedHeader = errors.New("malformed wav header")
)

// LengthPolicy selects how the length fields of a header are written
type LengthPolicy int

const (
	// LengthReal writes the actual payload length (complete buffers only)
	LengthReal LengthPolicy = iota
	// LengthMax writes MaxLength for streams of indeterminate length
	LengthMax
	// LengthZero writes zeros, to be fixed up with RewriteLengths
	LengthZero
)

func (p LengthPolicy) String() string {
	switch p {
	case LengthReal:
		return "real"
	case LengthMax:
		return "max"
	case LengthZero:
		return "zero"
	}
	return fmt.Sprintf("LengthPolicy(%d)", int(p))
}

// Header builds a header for the format. payloadLen is only used by LengthReal.
func Header(f audio.Format, policy LengthPolicy, payloadLen int64) ([]byte, error) {
	if f.Kind() != audio.KindPCM {
		return nil, fmt.Errorf("%w: %s", ErrNotPCM, f.Codec)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var riffSize, dataSize uint32
	switch policy {
	case LengthReal:
		if payloadLen < 0 || payloadLen > MaxLength-(HeaderSize-8) {
			return nil, fmt.Errorf("payload length %d out of range", payloadLen)
		}
		dataSize = uint32(payloadLen)
		riffSize = dataSize + HeaderSize - 8
	case LengthMax:
		riffSize = MaxLength
		dataSize = MaxLength - (HeaderSize - 8)
	case LengthZero:
	default:
		return nil, fmt.Errorf("unknown length policy %d", policy)
	}

	h := make([]byte, HeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], riffSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1)
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.ByteRate()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.BitDepth))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)
	return h, nil
}

// RewriteLengths patches the RIFF and data sizes of a header written at offset 0
func RewriteLengths(ws io.WriteSeeker, payloadLen int64) error {
	if payloadLen < 0 || payloadLen > MaxLength-(HeaderSize-8) {
		return fmt.Errorf("payload length %d out of range", payloadLen)
	}
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], uint32(payloadLen+HeaderSize-8))
	if _, err := ws.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("seek riff size: %w", err)
	}
	if _, err := ws.Write(b[:]); err != nil {
		return fmt.Errorf("write riff size: %w", err)
	}

	binary.LittleEndian.PutUint32(b[:], uint32(payloadLen))
	if _, err := ws.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("seek data size: %w", err)
	}
	if _, err := ws.Write(b[:]); err != nil {
		return fmt.Errorf("write data size: %w", err)
	}

	_, err := ws.Seek(0, io.SeekEnd)
	return err
}

// Info is the parsed content of a canonical header
type Info struct {
	Format   audio.Format
	RIFFSize uint32
	DataSize uint32
}

// ParseHeader reads a canonical 44-byte PCM header
func ParseHeader(r io.Reader) (Info, error) {
	h := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, h); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("%w: missing RIFF/WAVE tags", ErrMalformedHeader)
	}
	if string(h[12:16]) != "fmt " || binary.LittleEndian.Uint32(h[16:20]) != 16 {
		return Info{}, fmt.Errorf("%w: unexpected fmt chunk", ErrMalformedHeader)
	}
	if tag := binary.LittleEndian.Uint16(h[20:22]); tag != 1 {
		return Info{}, fmt.Errorf("%w: format tag %d is not pcm", ErrMalformedHeader, tag)
	}
	if string(h[36:40]) != "data" {
		return Info{}, fmt.Errorf("%w: data chunk not at offset 36", ErrMalformedHeader)
	}

	return Info{
		Format: audio.Format{
			Codec:      audio.CodecPCM,
			Channels:   int(binary.LittleEndian.Uint16(h[22:24])),
			SampleRate: int(binary.LittleEndian.Uint32(h[24:28])),
			BitDepth:   int(binary.LittleEndian.Uint16(h[34:36])),
		},
		RIFFSize: binary.LittleEndian.Uint32(h[4:8]),
		DataSize: binary.LittleEndian.Uint32(h[40:44]),
	}, nil
}
