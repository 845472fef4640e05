//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform callback streams that pull frames on demand
package output

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// PortAudio is a Backend and Enumerator backed by PortAudio
type PortAudio struct {
	log      *slog.Logger
	mu       sync.Mutex
	devices  map[string]*portaudio.DeviceInfo
	initDone bool
}

// NewPortAudio initializes PortAudio
func NewPortAudio(logger *slog.Logger) (*PortAudio, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudio{log: logger, devices: make(map[string]*portaudio.DeviceInfo), initDone: true}, nil
}

func paDeviceID(d *portaudio.DeviceInfo) string {
	return d.HostApi.Name + "/" + d.Name
}

// Devices lists devices with output channels
func (p *PortAudio) Devices() ([]DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	def, _ := portaudio.DefaultOutputDevice()

	var devices []DeviceInfo
	for _, d := range all {
		if d.MaxOutputChannels == 0 {
			continue
		}
		id := paDeviceID(d)
		p.devices[id] = d
		devices = append(devices, DeviceInfo{
			ID:        id,
			Name:      d.Name,
			IsDefault: def != nil && paDeviceID(def) == id,
		})
	}
	return devices, nil
}

// Open opens and starts a 16-bit callback stream that stays silent until Start
func (p *PortAudio) Open(cfg GraphConfig, fill FrameFunc) (Graph, error) {
	if err := validatePCM(cfg.Format); err != nil {
		return nil, err
	}
	if cfg.Format.BitDepth != 16 {
		return nil, fmt.Errorf("portaudio backend supports 16-bit output, got %d", cfg.Format.BitDepth)
	}

	p.mu.Lock()
	dev, ok := p.devices[cfg.Device.ID]
	p.mu.Unlock()
	if !ok {
		var err error
		if dev, err = portaudio.DefaultOutputDevice(); err != nil {
			return nil, fmt.Errorf("no default output device: %w", err)
		}
	}

	g := &paGraph{
		device: DeviceInfo{ID: paDeviceID(dev), Name: dev.Name, IsDefault: cfg.Device.ID == "" || cfg.Device.IsDefault},
	}

	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = cfg.Format.Channels
	params.SampleRate = float64(cfg.Format.SampleRate)
	params.FramesPerBuffer = cfg.FrameSamples

	var buf []byte
	stream, err := portaudio.OpenStream(params, func(out []int16) {
		if cap(buf) < len(out)*2 {
			buf = make([]byte, len(out)*2)
		}
		b := buf[:len(out)*2]
		n := 0
		if g.running.Load() {
			n = fill(b)
		}
		clear(b[n:])
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}
	g.stream = stream

	p.log.Info("audio graph opened", "backend", "portaudio", "device", g.device.String(),
		"rate", cfg.Format.SampleRate, "channels", cfg.Format.Channels)
	return g, nil
}

// Close terminates PortAudio. Graphs must be closed first.
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initDone {
		return nil
	}
	p.initDone = false
	return portaudio.Terminate()
}

type paGraph struct {
	stream    *portaudio.Stream
	device    DeviceInfo
	running   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (g *paGraph) Start()             { g.running.Store(true) }
func (g *paGraph) Stop()              { g.running.Store(false) }
func (g *paGraph) Device() DeviceInfo { return g.device }

func (g *paGraph) Close() error {
	g.closeOnce.Do(func() {
		g.running.Store(false)
		if err := g.stream.Stop(); err != nil {
			g.closeErr = err
			return
		}
		g.closeErr = g.stream.Close()
	})
	return g.closeErr
}
