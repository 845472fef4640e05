// ABOUTME: Oto-based audio output implementation
// ABOUTME: A persistent oto player pulls frames from the graph's FrameFunc
package output

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// oto allows only one context per process
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoFormat audio.Format
	otoErr    error
)

func sharedOtoContext(f audio.Format) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
		otoFormat = f
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoFormat != f {
		return nil, fmt.Errorf("oto context already running at %s, cannot open %s", otoFormat, f)
	}
	return otoCtx, nil
}

// Oto is a Backend playing through the process-wide oto context
type Oto struct {
	log *slog.Logger
}

// NewOto creates a new Oto backend
func NewOto(logger *slog.Logger) *Oto {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oto{log: logger}
}

// Open creates a player on the shared context. Oto cannot pick devices, so cfg.Device is ignored.
func (o *Oto) Open(cfg GraphConfig, fill FrameFunc) (Graph, error) {
	if err := validatePCM(cfg.Format); err != nil {
		return nil, err
	}
	// oto only supports 16-bit output
	if cfg.Format.BitDepth != 16 {
		return nil, fmt.Errorf("oto only supports 16-bit output, got %d", cfg.Format.BitDepth)
	}

	ctx, err := sharedOtoContext(cfg.Format)
	if err != nil {
		return nil, err
	}

	frameSamples := cfg.FrameSamples
	if frameSamples <= 0 {
		frameSamples = cfg.Format.SampleRate / 50
	}
	g := &otoGraph{}
	g.reader = &frameReader{
		fill:       fill,
		running:    &g.running,
		frameBytes: cfg.Format.FrameBytes(frameSamples),
	}

	g.player = ctx.NewPlayer(g.reader)
	// Keep latency near a few callback periods
	g.player.SetBufferSize(g.reader.frameBytes * 4)
	g.player.Play()

	o.log.Info("audio graph opened",
		"backend", "oto",
		"rate", cfg.Format.SampleRate,
		"channels", cfg.Format.Channels,
		"period", time.Duration(frameSamples)*time.Second/time.Duration(cfg.Format.SampleRate))

	return g, nil
}

type otoGraph struct {
	player    *oto.Player
	reader    *frameReader
	running   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (g *otoGraph) Start() { g.running.Store(true) }
func (g *otoGraph) Stop()  { g.running.Store(false) }

func (g *otoGraph) Device() DeviceInfo {
	return DeviceInfo{ID: "default", Name: "oto default output", IsDefault: true}
}

func (g *otoGraph) Close() error {
	g.closeOnce.Do(func() {
		g.running.Store(false)
		g.player.Pause()
		g.closeErr = g.player.Close()
	})
	return g.closeErr
}

// frameReader serves oto's pulls in frame-sized FrameFunc calls and never ends
type frameReader struct {
	fill       FrameFunc
	running    *atomic.Bool
	frameBytes int
}

func (r *frameReader) Read(p []byte) (int, error) {
	for off := 0; off < len(p); {
		end := min(off+r.frameBytes, len(p))
		chunk := p[off:end]
		n := 0
		if r.running.Load() {
			n = r.fill(chunk)
		}
		clear(chunk[n:])
		off = end
	}
	return len(p), nil
}
