// ABOUTME: Dialog backend protocol message type definitions
// ABOUTME: JSON envelopes for control messages and the binary audio frame layout
package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// Message types
const (
	TypeClientHello    = "client/hello"
	TypeServerHello    = "server/hello"
	TypeDialogQuery    = "dialog/query"
	TypeDialogResponse = "dialog/response"
	TypeDialogAudioEnd = "dialog/audio-end"
	TypeDialogStop     = "dialog/stop"
	TypePlayerUpdate   = "player/update"
)

// RoleDialogOutput is the only role this client announces
const RoleDialogOutput = "dialog-output"

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID       string         `json:"client_id"`
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	SupportedRoles []string       `json:"supported_roles"`
	DeviceInfo     *DeviceInfo    `json:"device_info,omitempty"`
	DialogSupport  *DialogSupport `json:"dialog_support,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// DialogSupport lists the audio formats the client can play, by catalog label
type DialogSupport struct {
	SupportFormats []string `json:"support_formats"`
	// PreferredFormat is the label the server should use when the query names none
	PreferredFormat string `json:"preferred_format,omitempty"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// DialogQuery asks the backend for a spoken response
type DialogQuery struct {
	QueryID      string `json:"query_id"`
	Text         string `json:"text"`
	OutputFormat string `json:"output_format,omitempty"`
}

// DialogResponse announces a response; its audio follows as binary frames
type DialogResponse struct {
	ResponseID string `json:"response_id"`
	QueryID    string `json:"query_id,omitempty"`
	Text       string `json:"text,omitempty"`
	Format     string `json:"format"`
}

// DialogAudioEnd marks the last audio frame of a response
type DialogAudioEnd struct {
	ResponseID string `json:"response_id"`
}

// DialogStop cancels playback. An empty ResponseID means every response.
type DialogStop struct {
	ResponseID string `json:"response_id,omitempty"`
}

// ClientState reports the player's current state (sent as player/update message)
type ClientState struct {
	State  string `json:"state"`  // "playing" or "idle"
	Volume int    `json:"volume"` // 0-100
	Muted  bool   `json:"muted"`
}

// Binary frame layout: [type][16-byte response id][payload]
const (
	BinaryTypeAudio   = 0x01
	BinaryHeaderBytes = 1 + 16
)

// EncodeAudioFrame builds a binary audio frame for a response
func EncodeAudioFrame(responseID uuid.UUID, payload []byte) []byte {
	frame := make([]byte, BinaryHeaderBytes+len(payload))
	frame[0] = BinaryTypeAudio
	copy(frame[1:BinaryHeaderBytes], responseID[:])
	copy(frame[BinaryHeaderBytes:], payload)
	return frame
}

// DecodeAudioFrame splits a binary audio frame. The payload aliases data.
func DecodeAudioFrame(data []byte) (uuid.UUID, []byte, error) {
	if len(data) < BinaryHeaderBytes {
		return uuid.Nil, nil, fmt.Errorf("binary frame too short: %d bytes", len(data))
	}
	if data[0] != BinaryTypeAudio {
		return uuid.Nil, nil, fmt.Errorf("unknown binary message type: %d", data[0])
	}
	id, err := uuid.FromBytes(data[1:BinaryHeaderBytes])
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("binary frame id: %w", err)
	}
	return id, data[BinaryHeaderBytes:], nil
}
