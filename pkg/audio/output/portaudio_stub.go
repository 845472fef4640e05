//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"errors"
	"log/slog"
)

var errPortAudioDisabled = errors.New("PortAudio support not enabled (build with -tags portaudio)")

// PortAudio output implementation (stub)
type PortAudio struct{}

// NewPortAudio reports that PortAudio support is not compiled in
func NewPortAudio(logger *slog.Logger) (*PortAudio, error) {
	return nil, errPortAudioDisabled
}

// Devices lists devices
func (p *PortAudio) Devices() ([]DeviceInfo, error) {
	return nil, errPortAudioDisabled
}

// Open opens a graph
func (p *PortAudio) Open(cfg GraphConfig, fill FrameFunc) (Graph, error) {
	return nil, errPortAudioDisabled
}

// Close releases resources
func (p *PortAudio) Close() error {
	return errPortAudioDisabled
}
