// ABOUTME: Tests for Opus decoder
// ABOUTME: Tests decoder creation and decoding of freshly encoded packets
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

var opusDialog = audio.Format{Codec: audio.CodecOpus, SampleRate: 16000, Channels: 1, BitRate: 16000}

func TestNewOpus(t *testing.T) {
	decoder, err := NewOpus(opusDialog)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}
	if decoder == nil {
		t.Fatal("expected decoder to be created")
	}
	if err := decoder.Close(); err != nil {
		t.Errorf("expected Close to succeed, got error: %v", err)
	}
}

func TestNewOpus_InvalidCodec(t *testing.T) {
	decoder, err := NewOpus(audio.DefaultOutput)
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}
	if decoder != nil {
		t.Fatal("expected decoder to be nil for invalid codec")
	}

	expectedError := "invalid codec for Opus decoder: pcm"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestNewOpus_InvalidSampleRate(t *testing.T) {
	format := opusDialog
	format.SampleRate = 44100

	decoder, err := NewOpus(format)
	if err == nil {
		t.Fatal("expected opus to reject 44100 Hz")
	}
	if decoder != nil {
		t.Fatal("if error is returned, decoder must be nil")
	}
}

// encodeOpusFrames encodes n 20ms frames of a constant tone at 16 kHz mono
func encodeOpusFrames(t *testing.T, n int) [][]byte {
	t.Helper()

	enc, err := opus.NewEncoder(16000, 1, opus.AppVoIP)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	pcm := make([]int16, 320)
	for i := range pcm {
		if (i/8)%2 == 0 {
			pcm[i] = 4000
		} else {
			pcm[i] = -4000
		}
	}

	packets := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, 1000)
		size, err := enc.Encode(pcm, buf)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		packets = append(packets, buf[:size])
	}
	return packets
}

func TestOpusDecodePacket(t *testing.T) {
	decoder, err := NewOpus(opusDialog)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	packets := encodeOpusFrames(t, 1)
	samples, err := decoder.Decode(packets[0])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(samples) != 320 {
		t.Errorf("expected 320 samples for a 20ms mono frame, got %d", len(samples))
	}
}
