// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Opens miniaudio playback devices whose callback pulls frames on demand
package output

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// Malgo is a Backend and Enumerator backed by a miniaudio context
type Malgo struct {
	log      *slog.Logger
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	ids      map[string]malgo.DeviceID
}

// NewMalgo initializes a miniaudio context
func NewMalgo(logger *slog.Logger) (*Malgo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	return &Malgo{
		log:      logger,
		malgoCtx: ctx,
		ids:      make(map[string]malgo.DeviceID),
	}, nil
}

// Devices lists playback devices
func (m *Malgo) Devices() ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil, fmt.Errorf("malgo context closed")
	}

	infos, err := m.malgoCtx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		id := info.ID.String()
		m.ids[id] = info.ID
		devices = append(devices, DeviceInfo{
			ID:        id,
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return devices, nil
}

// Open initializes and starts a playback device that stays silent until Start
func (m *Malgo) Open(cfg GraphConfig, fill FrameFunc) (Graph, error) {
	if err := validatePCM(cfg.Format); err != nil {
		return nil, err
	}

	var format malgo.FormatType
	switch cfg.Format.BitDepth {
	case 8:
		format = malgo.FormatU8
	case 16:
		format = malgo.FormatS16
	case 24:
		format = malgo.FormatS24
	case 32:
		format = malgo.FormatS32
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", cfg.Format.BitDepth)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil, fmt.Errorf("malgo context closed")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(cfg.Format.Channels)
	deviceConfig.SampleRate = uint32(cfg.Format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	if cfg.FrameSamples > 0 {
		deviceConfig.PeriodSizeInFrames = uint32(cfg.FrameSamples)
	}

	bound := cfg.Device
	if bound.ID != "" {
		id, ok := m.ids[bound.ID]
		if !ok {
			return nil, fmt.Errorf("unknown playback device %s", bound)
		}
		deviceConfig.Playback.DeviceID = id.Pointer()
	} else {
		bound = DeviceInfo{ID: "default", Name: "system default", IsDefault: true}
	}

	g := &malgoGraph{device: bound, log: m.log}
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			g.dataCallback(pOutputSample, fill)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start device: %w", err)
	}
	g.malgoDevice = device

	m.log.Info("audio graph opened",
		"backend", "malgo",
		"device", bound.String(),
		"format", formatName(format),
		"rate", cfg.Format.SampleRate,
		"channels", cfg.Format.Channels)

	return g, nil
}

// Close releases the miniaudio context. Graphs must be closed first.
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil
	}
	if err := m.malgoCtx.Uninit(); err != nil {
		m.log.Warn("malgo context uninit error", "error", err)
	}
	m.malgoCtx.Free()
	m.malgoCtx = nil
	return nil
}

type malgoGraph struct {
	malgoDevice *malgo.Device
	device      DeviceInfo
	log         *slog.Logger
	running     atomic.Bool
	closeOnce   sync.Once
}

// dataCallback is called by malgo to fill the audio output buffer
func (g *malgoGraph) dataCallback(out []byte, fill FrameFunc) {
	n := 0
	if g.running.Load() {
		n = fill(out)
	}
	clear(out[n:])
}

func (g *malgoGraph) Start()             { g.running.Store(true) }
func (g *malgoGraph) Stop()              { g.running.Store(false) }
func (g *malgoGraph) Device() DeviceInfo { return g.device }

// Close stops and uninitializes the device
func (g *malgoGraph) Close() error {
	g.closeOnce.Do(func() {
		g.running.Store(false)
		if err := g.malgoDevice.Stop(); err != nil {
			g.log.Warn("device stop error", "error", err)
		}
		g.malgoDevice.Uninit()
	})
	return nil
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatU8:
		return "U8"
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
