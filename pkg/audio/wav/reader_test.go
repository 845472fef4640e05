// ABOUTME: Tests for the chunk-walking WAV reader
// ABOUTME: Extra chunks, extended fmt chunks and malformed files
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
)

func chunk(id string, body []byte) []byte {
	b := make([]byte, 8, 8+len(body)+1)
	copy(b, id)
	binary.LittleEndian.PutUint32(b[4:], uint32(len(body)))
	b = append(b, body...)
	if len(body)%2 == 1 {
		b = append(b, 0)
	}
	return b
}

func fmtBody(f audio.Format, extra int) []byte {
	b := make([]byte, 16+extra)
	binary.LittleEndian.PutUint16(b[0:], 1)
	binary.LittleEndian.PutUint16(b[2:], uint16(f.Channels))
	binary.LittleEndian.PutUint32(b[4:], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(b[8:], uint32(f.ByteRate()))
	binary.LittleEndian.PutUint16(b[12:], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(b[14:], uint16(f.BitDepth))
	return b
}

func riff(chunks ...[]byte) []byte {
	body := []byte("WAVE")
	for _, c := range chunks {
		body = append(body, c...)
	}
	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func TestReadHeaderCanonical(t *testing.T) {
	h, _ := Header(audio.DefaultOutput, LengthReal, 4)
	r := bytes.NewReader(append(h, 1, 2, 3, 4))

	info, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if info.Format != audio.DefaultOutput || info.DataSize != 4 {
		t.Errorf("unexpected info %+v", info)
	}
	rest, _ := io.ReadAll(r)
	if !bytes.Equal(rest, []byte{1, 2, 3, 4}) {
		t.Errorf("expected reader at payload, got %v", rest)
	}
}

func TestReadHeaderSkipsChunks(t *testing.T) {
	f := audio.Format{Codec: audio.CodecPCM, SampleRate: 24000, Channels: 2, BitDepth: 16}
	data := []byte{9, 8, 7, 6}
	file := riff(
		chunk("LIST", []byte("INFOISFT\x03\x00\x00\x00abc")),
		chunk("fmt ", fmtBody(f, 2)),
		chunk("fact", []byte{1, 0, 0, 0}),
		chunk("data", data),
	)

	r := bytes.NewReader(file)
	info, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if info.Format != f {
		t.Errorf("expected %s, got %s", f, info.Format)
	}
	rest, _ := io.ReadAll(r)
	if !bytes.Equal(rest, data) {
		t.Errorf("expected payload %v, got %v", data, rest)
	}
}

func TestReadHeaderErrors(t *testing.T) {
	compressed := fmtBody(audio.DefaultOutput, 0)
	binary.LittleEndian.PutUint16(compressed[0:], 0x55)

	tests := []struct {
		name    string
		file    []byte
		wantErr error
	}{
		{"empty", nil, ErrMalformedHeader},
		{"not riff", []byte("RIFX\x00\x00\x00\x00WAVE"), ErrMalformedHeader},
		{"no data", riff(chunk("fmt ", fmtBody(audio.DefaultOutput, 0))), ErrMalformedHeader},
		{"data first", riff(chunk("data", []byte{1, 2})), ErrMalformedHeader},
		{"short fmt", riff(chunk("fmt ", []byte{1, 0})), ErrMalformedHeader},
		{"compressed", riff(chunk("fmt ", compressed), chunk("data", nil)), ErrNotPCM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadHeader(bytes.NewReader(tt.file)); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
