// ABOUTME: Tests for dialog protocol message types
// ABOUTME: Verifies the JSON envelope and the binary audio frame layout
package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestClientHelloMarshaling(t *testing.T) {
	hello := ClientHello{
		ClientID:       "test-id",
		Name:           "Kitchen",
		Version:        1,
		SupportedRoles: []string{RoleDialogOutput},
		DialogSupport: &DialogSupport{
			SupportFormats:  []string{"raw-16khz-16bit-mono-pcm", "audio-16khz-32kbitrate-mono-mp3"},
			PreferredFormat: "raw-16khz-16bit-mono-pcm",
		},
	}

	data, err := json.Marshal(Message{Type: TypeClientHello, Payload: hello})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	for _, want := range []string{`"type":"client/hello"`, `"supported_roles":["dialog-output"]`, `"preferred_format":"raw-16khz-16bit-mono-pcm"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in %s", want, data)
		}
	}
	if strings.Contains(string(data), "device_info") {
		t.Error("nil device info should be omitted")
	}
}

func TestDialogResponseUnmarshaling(t *testing.T) {
	raw := `{"type":"dialog/response","payload":{"response_id":"r1","query_id":"q1","text":"It is sunny","format":"raw-16khz-16bit-mono-pcm"}}`

	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if msg.Type != TypeDialogResponse {
		t.Fatalf("expected dialog/response, got %s", msg.Type)
	}

	var resp DialogResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if resp.ResponseID != "r1" || resp.QueryID != "q1" || resp.Text != "It is sunny" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestAudioFrame(t *testing.T) {
	id := uuid.New()
	payload := []byte{1, 2, 3, 4}

	frame := EncodeAudioFrame(id, payload)
	if len(frame) != BinaryHeaderBytes+len(payload) || frame[0] != BinaryTypeAudio {
		t.Fatalf("unexpected frame layout %v", frame)
	}

	gotID, gotPayload, err := DecodeAudioFrame(frame)
	if err != nil {
		t.Fatalf("DecodeAudioFrame: %v", err)
	}
	if gotID != id {
		t.Errorf("expected id %s, got %s", id, gotID)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Errorf("expected payload %v, got %v", payload, gotPayload)
	}
}

func TestDecodeAudioFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{BinaryTypeAudio, 1, 2}},
		{"wrong type", append([]byte{0x07}, make([]byte, 16)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeAudioFrame(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}
