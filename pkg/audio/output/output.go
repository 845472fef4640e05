// ABOUTME: Audio output interface definition
// ABOUTME: Pull-style device graphs driven by a hardware frame callback
package output

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
)

// ErrNoDevice is returned when no playback device is available
var ErrNoDevice = errors.New("no playback device available")

// FrameFunc fills p with up to len(p) bytes of PCM and returns how many it wrote.
// len(p) is the device's required sample count times the frame size.
// The backend pads whatever is left of p with silence.
type FrameFunc func(p []byte) int

// DeviceInfo identifies a playback device
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool
}

func (d DeviceInfo) String() string {
	if d.Name == "" {
		return d.ID
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.ID)
}

// Enumerator lists playback devices
type Enumerator interface {
	Devices() ([]DeviceInfo, error)
}

// DefaultDevice returns the device flagged as default, or the first one
func DefaultDevice(devices []DeviceInfo) (DeviceInfo, bool) {
	for _, d := range devices {
		if d.IsDefault {
			return d, true
		}
	}
	if len(devices) > 0 {
		return devices[0], true
	}
	return DeviceInfo{}, false
}

// GraphConfig describes the graph to open
type GraphConfig struct {
	Format audio.Format
	// Device to bind; a zero value means the system default
	Device DeviceInfo
	// FrameSamples is the requested callback period in samples (0 lets the backend choose)
	FrameSamples int
}

// Backend opens playback graphs
type Backend interface {
	Open(cfg GraphConfig, fill FrameFunc) (Graph, error)
}

// Graph is an open device graph. The device runs from Open until Close;
// while stopped it plays silence without calling its FrameFunc.
type Graph interface {
	// Start begins calling the FrameFunc. It does not block.
	Start()
	// Stop stops calling the FrameFunc. It does not block or wait for an in-flight call.
	Stop()
	// Device reports the bound device
	Device() DeviceInfo
	// Close releases the device and may block until the device thread exits
	Close() error
}

func validatePCM(f audio.Format) error {
	if f.Kind() != audio.KindPCM {
		return fmt.Errorf("output requires pcm, got %s", f.Codec)
	}
	return f.Validate()
}
