// ABOUTME: Dialog audio output adapter bridging the playback queue to a device graph
// ABOUTME: Frame-callback draining, completion signaling and device-change regeneration
package dialog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/output"
)

var (
	// ErrNoOutputDevice is returned by NewAdapter when nothing can play audio
	ErrNoOutputDevice = errors.New("no output device available")
	ErrNilStream      = errors.New("nil output stream")
	ErrFormatMismatch = errors.New("stream format does not match output format")
	ErrHeaderedStream = errors.New("stream carries a wav header")
	ErrStreamReused   = errors.New("stream was already enqueued")
	ErrAdapterClosed  = errors.New("adapter closed")
)

// State is the adapter's playback state
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateRegenerating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateRegenerating:
		return "regenerating"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// FramePolicy decides what fills the rest of a frame after a stream ends mid-frame
type FramePolicy int

const (
	// PushPartial pushes the short frame as is; the device pads it with silence
	PushPartial FramePolicy = iota
	// FillFromNext completes the frame from the following queued streams
	FillFromNext
)

// Config configures an Adapter
type Config struct {
	// Format is the PCM format streams must be in (default audio.DefaultOutput)
	Format  audio.Format
	Backend output.Backend
	// Enumerator is optional; without it the backend's default device is used
	Enumerator   output.Enumerator
	FrameSamples int
	FramePolicy  FramePolicy
	// Volume is 1-100; 0 means 100
	Volume int
	// Capture receives a copy of every pushed frame
	Capture io.Writer
	Logger  *slog.Logger
}

// Status is a diagnostic snapshot
type Status struct {
	State            State
	Device           output.DeviceInfo
	Queued           int
	Frames           uint64
	BytesPlayed      int64
	StreamsCompleted int
	Regenerations    int
	ResourceFailures int
	CallbackPanics   int
	LastError        error
}

// Adapter plays queued OutputStreams on a device graph. One mutex guards the
// queue, the graph, the playing flag and the state; the frame callback takes it too.
type Adapter struct {
	cfg Config
	log *slog.Logger

	mu         sync.Mutex
	queue      PlaybackQueue
	graph      output.Graph
	device     output.DeviceInfo
	generation uint64
	creating   bool
	playing    atomic.Bool // written under mu; read without it by IsPlaying
	state      State
	enumerated bool
	done       chan struct{}
	closed     bool
	volume     int
	muted      bool
	capture    io.Writer
	listeners  []func()
	status     Status

	wg sync.WaitGroup
}

// NewAdapter binds the default output device and opens the first graph
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Backend == nil {
		return nil, errors.New("adapter needs an output backend")
	}
	if cfg.Format == (audio.Format{}) {
		cfg.Format = audio.DefaultOutput
	}
	if cfg.Format.Kind() != audio.KindPCM {
		return nil, fmt.Errorf("output format must be pcm, got %s", cfg.Format)
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}
	if cfg.Volume <= 0 || cfg.Volume > 100 {
		cfg.Volume = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Adapter{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "dialog-output"),
		volume:  cfg.Volume,
		capture: cfg.Capture,
	}

	if cfg.Enumerator != nil {
		devices, err := cfg.Enumerator.Devices()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoOutputDevice, err)
		}
		def, ok := output.DefaultDevice(devices)
		if !ok {
			return nil, ErrNoOutputDevice
		}
		a.device = def
	}

	g, err := a.openGraph(a.generation, a.device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoOutputDevice, err)
	}
	a.graph = g
	if a.device.ID == "" {
		a.device = g.Device()
	}

	a.log.Info("dialog output ready", "device", a.device.String(), "format", cfg.Format.Label())
	return a, nil
}

func (a *Adapter) openGraph(gen uint64, dev output.DeviceInfo) (output.Graph, error) {
	cfg := output.GraphConfig{
		Format:       a.cfg.Format,
		Device:       dev,
		FrameSamples: a.cfg.FrameSamples,
	}
	return a.cfg.Backend.Open(cfg, func(p []byte) int {
		return a.pull(gen, p)
	})
}

// Enqueue appends a stream for playback and returns immediately
func (a *Adapter) Enqueue(s *OutputStream) error {
	_, err := a.enqueue(s, false)
	return err
}

// PlayAudio replaces any pending streams with s and blocks until playback ends,
// is stopped, or ctx is done
func (a *Adapter) PlayAudio(ctx context.Context, s *OutputStream) error {
	done, err := a.enqueue(s, true)
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) enqueue(s *OutputStream, replace bool) (<-chan struct{}, error) {
	if s == nil {
		return nil, ErrNilStream
	}
	if s.Format() != a.cfg.Format {
		return nil, fmt.Errorf("%w: %s, want %s", ErrFormatMismatch, s.Format(), a.cfg.Format)
	}
	if s.HasHeader() {
		return nil, ErrHeaderedStream
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrAdapterClosed
	}
	if !s.claim() {
		return nil, ErrStreamReused
	}

	if replace {
		if dropped := a.queue.Clear(); dropped > 0 {
			a.log.Debug("pending streams replaced", "dropped", dropped)
		}
	}
	a.queue.Push(s)
	a.log.Debug("stream enqueued", "stream", s.ID, "queued", a.queue.Len())

	if !a.playing.Load() {
		a.playing.Store(true)
		a.done = make(chan struct{})
		a.startLocked()
	}
	return a.done, nil
}

// startLocked starts the graph, opening one first when there is none
func (a *Adapter) startLocked() {
	if a.state != StateRegenerating {
		a.state = StatePlaying
	}
	if a.graph != nil {
		a.graph.Start()
		return
	}
	if a.creating {
		// the pending open starts playback when it lands
		return
	}

	a.creating = true
	a.wg.Add(1)
	go a.openAsync(a.generation, a.device, nil)
}

// openAsync closes the replaced graph, if any, and opens a new one off the caller's goroutine
func (a *Adapter) openAsync(gen uint64, dev output.DeviceInfo, old output.Graph) {
	defer a.wg.Done()

	if old != nil {
		if err := old.Close(); err != nil {
			a.log.Warn("closing replaced audio graph failed", "error", err)
		}
	}

	g, err := a.openGraph(gen, dev)

	a.mu.Lock()
	if gen != a.generation || a.closed {
		a.mu.Unlock()
		if g != nil {
			g.Close()
		}
		return
	}

	a.creating = false
	if err != nil {
		a.status.ResourceFailures++
		a.status.LastError = err
		a.log.Error("audio graph creation failed", "device", dev.String(), "error", err)
		ended := a.endSessionLocked()
		a.mu.Unlock()
		if ended {
			a.notifyEnded()
		}
		return
	}

	a.graph = g
	if dev.ID == "" {
		a.device = g.Device()
	}
	if a.playing.Load() {
		g.Start()
		a.state = StatePlaying
	} else {
		a.state = StateIdle
	}
	a.mu.Unlock()

	a.log.Info("audio graph ready", "device", dev.String(), "generation", gen)
}

// pull is the frame callback. It never panics.
func (a *Adapter) pull(gen uint64, p []byte) (n int) {
	defer func() {
		if r := recover(); r != nil {
			a.recoverFrame(r)
			n = 0
		}
	}()

	n, ended := a.fillFrame(gen, p)
	if ended {
		a.notifyEnded()
	}
	return n
}

func (a *Adapter) fillFrame(gen uint64, p []byte) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation || !a.playing.Load() {
		return 0, false
	}
	if a.queue.Len() == 0 {
		a.log.Debug("playback queue drained")
		return 0, a.endSessionLocked()
	}

	n := 0
	for n < len(p) {
		head := a.queue.Head()
		if head == nil {
			break
		}
		want := len(p) - n
		got := head.Read(p[n:])
		n += got
		if got < want {
			a.retireHeadLocked(head)
			if a.cfg.FramePolicy == FillFromNext {
				continue
			}
		}
		break
	}

	if n > 0 {
		output.ApplyVolume(p[:n], a.cfg.Format.BitDepth, a.volume, a.muted)
		a.status.Frames++
		a.status.BytesPlayed += int64(n)
		if a.capture != nil {
			if _, err := a.capture.Write(p[:n]); err != nil {
				a.log.Warn("capture write failed, capture disabled", "error", err)
				a.capture = nil
			}
		}
	}
	return n, false
}

func (a *Adapter) retireHeadLocked(head *OutputStream) {
	a.queue.PopHead()
	a.status.StreamsCompleted++
	if err := head.Err(); err != nil {
		a.log.Warn("stream ended with source error", "stream", head.ID, "error", err)
		return
	}
	a.log.Debug("stream drained", "stream", head.ID, "bytes", head.Consumed())
}

// recoverFrame records a panic from the frame path and drops the stream that caused it
func (a *Adapter) recoverFrame(r any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.status.CallbackPanics++
	a.status.LastError = fmt.Errorf("frame callback panic: %v", r)
	if head := a.queue.PopHead(); head != nil {
		a.log.Error("frame callback panic, stream dropped", "stream", head.ID, "panic", r)
		return
	}
	a.log.Error("frame callback panic", "panic", r)
}

// endSessionLocked clears the queue, stops the graph and releases waiters.
// It reports whether a playback session was active.
func (a *Adapter) endSessionLocked() bool {
	a.queue.Clear()
	if a.graph != nil {
		a.graph.Stop()
	}
	if !(a.creating && a.state == StateRegenerating) {
		a.state = StateIdle
	}
	if !a.playing.Load() {
		return false
	}
	a.playing.Store(false)
	close(a.done)
	a.done = nil
	return true
}

// StopPlayback halts output and discards every queued stream. It is safe to
// call repeatedly and does not wait for an in-flight frame callback.
func (a *Adapter) StopPlayback() {
	a.mu.Lock()
	queued := a.queue.Len()
	ended := a.endSessionLocked()
	a.mu.Unlock()

	if ended {
		a.log.Info("playback stopped", "discarded", queued)
		a.notifyEnded()
	}
}

// HandleDeviceEvent reacts to device watcher events. Changes are ignored until
// the first enumeration has completed.
func (a *Adapter) HandleDeviceEvent(ev DeviceEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	if ev.Kind == DeviceEnumerationCompleted {
		a.enumerated = true
		return
	}
	if !a.enumerated {
		a.log.Debug("device event before first enumeration ignored", "event", ev.Kind.String())
		return
	}
	a.regenerateLocked(ev.Default)
}

// regenerateLocked rebinds to def when it differs from the bound device.
// The queue and the playing flag survive, and no OutputEnded fires.
func (a *Adapter) regenerateLocked(def output.DeviceInfo) {
	if def.ID == "" {
		a.log.Warn("no default output device, keeping current graph")
		return
	}
	if def.ID == a.device.ID {
		return
	}

	a.log.Info("default output device changed", "from", a.device.String(), "to", def.String())
	a.device = def
	if a.graph == nil && !a.creating {
		// next enqueue opens on the new device
		return
	}

	old := a.graph
	a.graph = nil
	a.generation++
	if old != nil {
		old.Stop()
	}
	a.state = StateRegenerating
	a.status.Regenerations++
	a.creating = true

	a.wg.Add(1)
	go a.openAsync(a.generation, def, old)
}

// OnOutputEnded registers fn to run each time a playback session ends.
// fn may run on the device thread and must not block.
func (a *Adapter) OnOutputEnded(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *Adapter) notifyEnded() {
	a.mu.Lock()
	listeners := slices.Clone(a.listeners)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// IsPlaying reports whether a playback session is active. It does not wait
// for a frame callback blocked on its source.
func (a *Adapter) IsPlaying() bool {
	return a.playing.Load()
}

// State returns the current state
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Device returns the bound output device
func (a *Adapter) Device() output.DeviceInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.device
}

// Format returns the output format
func (a *Adapter) Format() audio.Format {
	return a.cfg.Format
}

// Status returns a diagnostic snapshot
func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.status
	st.State = a.state
	st.Device = a.device
	st.Queued = a.queue.Len()
	return st
}

// SetVolume sets the volume (0-100)
func (a *Adapter) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	a.mu.Lock()
	a.volume = volume
	a.mu.Unlock()
	a.log.Info("volume set", "volume", volume)
}

// SetMuted sets mute state
func (a *Adapter) SetMuted(muted bool) {
	a.mu.Lock()
	a.muted = muted
	a.mu.Unlock()
	a.log.Info("mute set", "muted", muted)
}

// Volume returns current volume
func (a *Adapter) Volume() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volume
}

// Muted returns mute state
func (a *Adapter) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}

// Close stops playback and releases the graph
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	ended := a.endSessionLocked()
	g := a.graph
	a.graph = nil
	a.generation++
	a.mu.Unlock()

	if ended {
		a.notifyEnded()
	}

	var err error
	if g != nil {
		err = g.Close()
	}
	a.wg.Wait()
	return err
}
