// ABOUTME: Device-less output backend driven by a wall-clock ticker
// ABOUTME: Pulls frames at the real-time cadence and hands them to an optional sink
package output

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Null is a Backend with no hardware. Each period it pulls one frame and passes
// the produced bytes to Sink, which may be nil.
type Null struct {
	Sink func(frame []byte)
	log  *slog.Logger
}

// NewNull creates a null backend
func NewNull(logger *slog.Logger, sink func(frame []byte)) *Null {
	if logger == nil {
		logger = slog.Default()
	}
	return &Null{Sink: sink, log: logger}
}

// Devices reports the single virtual device
func (n *Null) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{nullDevice}, nil
}

var nullDevice = DeviceInfo{ID: "null", Name: "null output", IsDefault: true}

// Open starts the ticker goroutine
func (n *Null) Open(cfg GraphConfig, fill FrameFunc) (Graph, error) {
	if err := validatePCM(cfg.Format); err != nil {
		return nil, err
	}
	frameSamples := cfg.FrameSamples
	if frameSamples <= 0 {
		frameSamples = cfg.Format.SampleRate / 50
	}
	period := time.Duration(frameSamples) * time.Second / time.Duration(cfg.Format.SampleRate)

	g := &nullGraph{
		done:  make(chan struct{}),
		frame: make([]byte, cfg.Format.FrameBytes(frameSamples)),
	}
	g.wg.Add(1)
	go g.run(period, fill, n.Sink)

	n.log.Info("audio graph opened", "backend", "null", "period", period)
	return g, nil
}

type nullGraph struct {
	running   atomic.Bool
	done      chan struct{}
	frame     []byte
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (g *nullGraph) run(period time.Duration, fill FrameFunc, sink func([]byte)) {
	defer g.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			if !g.running.Load() {
				continue
			}
			n := fill(g.frame)
			if n > 0 && sink != nil {
				sink(g.frame[:n])
			}
		}
	}
}

func (g *nullGraph) Start()             { g.running.Store(true) }
func (g *nullGraph) Stop()              { g.running.Store(false) }
func (g *nullGraph) Device() DeviceInfo { return nullDevice }

// Close stops the ticker goroutine and waits for it
func (g *nullGraph) Close() error {
	g.closeOnce.Do(func() {
		g.running.Store(false)
		close(g.done)
	})
	g.wg.Wait()
	return nil
}
