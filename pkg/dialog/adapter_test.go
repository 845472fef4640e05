// ABOUTME: Tests for the dialog output adapter
// ABOUTME: Drives the frame callback by hand through a scripted backend
package dialog

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/output"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/wav"
)

// fakeBackend records every graph it opens. Frames are pulled manually.
type fakeBackend struct {
	mu       sync.Mutex
	graphs   []*fakeGraph
	failNext int
	devices  []output.DeviceInfo
}

func (b *fakeBackend) Open(cfg output.GraphConfig, fill output.FrameFunc) (output.Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext > 0 {
		b.failNext--
		return nil, errors.New("device busy")
	}
	g := &fakeGraph{fill: fill, device: cfg.Device}
	b.graphs = append(b.graphs, g)
	return g, nil
}

func (b *fakeBackend) Devices() ([]output.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]output.DeviceInfo(nil), b.devices...), nil
}

func (b *fakeBackend) opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.graphs)
}

func (b *fakeBackend) latest() *fakeGraph {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.graphs) == 0 {
		return nil
	}
	return b.graphs[len(b.graphs)-1]
}

type fakeGraph struct {
	fill    output.FrameFunc
	device  output.DeviceInfo
	running atomic.Bool
	closed  atomic.Bool
	starts  atomic.Int32
}

func (g *fakeGraph) Start() {
	g.starts.Add(1)
	g.running.Store(true)
}

func (g *fakeGraph) Stop()                     { g.running.Store(false) }
func (g *fakeGraph) Device() output.DeviceInfo { return g.device }

func (g *fakeGraph) Close() error {
	g.closed.Store(true)
	g.running.Store(false)
	return nil
}

// Pull runs one device period of n bytes, as a real device thread would
func (g *fakeGraph) Pull(n int) []byte {
	if !g.running.Load() {
		return nil
	}
	buf := make([]byte, n)
	got := g.fill(buf)
	return buf[:got]
}

// callStale invokes the callback even when stopped, like a late device thread
func (g *fakeGraph) callStale(n int) int {
	return g.fill(make([]byte, n))
}

var speakers = output.DeviceInfo{ID: "speakers", Name: "Speakers", IsDefault: true}
var headset = output.DeviceInfo{ID: "headset", Name: "Headset", IsDefault: true}

func newTestAdapter(t *testing.T, cfg Config) (*Adapter, *fakeBackend, *atomic.Int32) {
	t.Helper()
	b := &fakeBackend{devices: []output.DeviceInfo{speakers}}
	cfg.Backend = b
	cfg.Enumerator = b
	a, err := NewAdapter(cfg)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	var ended atomic.Int32
	a.OnOutputEnded(func() { ended.Add(1) })
	return a, b, &ended
}

func stream(t *testing.T, data []byte) *OutputStream {
	t.Helper()
	s, err := NewOutputStream(FromReader(bytes.NewReader(data)), audio.DefaultOutput)
	if err != nil {
		t.Fatalf("NewOutputStream: %v", err)
	}
	return s
}

func filled(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestNewAdapterNoDevice(t *testing.T) {
	b := &fakeBackend{}
	if _, err := NewAdapter(Config{Backend: b, Enumerator: b}); !errors.Is(err, ErrNoOutputDevice) {
		t.Errorf("expected ErrNoOutputDevice, got %v", err)
	}

	b = &fakeBackend{failNext: 1}
	if _, err := NewAdapter(Config{Backend: b}); !errors.Is(err, ErrNoOutputDevice) {
		t.Errorf("expected ErrNoOutputDevice when open fails, got %v", err)
	}

	mp3 := audio.Format{Codec: audio.CodecMP3, SampleRate: 16000, Channels: 1, BitRate: 32000}
	if _, err := NewAdapter(Config{Backend: &fakeBackend{}, Format: mp3}); err == nil {
		t.Error("expected error for compressed output format")
	}
}

func TestAdapterInitialState(t *testing.T) {
	a, b, _ := newTestAdapter(t, Config{})

	if a.State() != StateIdle || a.IsPlaying() {
		t.Errorf("expected idle, got %s playing=%v", a.State(), a.IsPlaying())
	}
	if a.Device().ID != "speakers" {
		t.Errorf("expected speakers, got %s", a.Device())
	}
	if b.opened() != 1 {
		t.Errorf("expected one graph, got %d", b.opened())
	}
	if b.latest().running.Load() {
		t.Error("graph should not run before enqueue")
	}
	if a.Format() != audio.DefaultOutput {
		t.Errorf("expected default format, got %s", a.Format())
	}
	if a.Volume() != 100 {
		t.Errorf("expected volume 100, got %d", a.Volume())
	}
}

func TestAdapterSingleStreamFrames(t *testing.T) {
	a, b, ended := newTestAdapter(t, Config{})
	data := pattern(1000)

	if err := a.Enqueue(stream(t, data)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !a.IsPlaying() || a.State() != StatePlaying {
		t.Fatalf("expected playing, got %s", a.State())
	}

	g := b.latest()
	var played []byte
	var sizes []int
	for i := 0; i < 4; i++ {
		frame := g.Pull(320)
		sizes = append(sizes, len(frame))
		played = append(played, frame...)
	}

	expected := []int{320, 320, 320, 40}
	for i := range expected {
		if sizes[i] != expected[i] {
			t.Fatalf("expected frames %v, got %v", expected, sizes)
		}
	}
	if !bytes.Equal(played, data) {
		t.Error("played bytes differ")
	}
	if ended.Load() != 0 {
		t.Fatal("OutputEnded fired before the queue was observed empty")
	}

	// next callback finds the queue empty
	if frame := g.Pull(320); len(frame) != 0 {
		t.Errorf("expected empty frame, got %d bytes", len(frame))
	}
	if ended.Load() != 1 {
		t.Errorf("expected one OutputEnded, got %d", ended.Load())
	}
	if a.IsPlaying() || a.State() != StateIdle {
		t.Errorf("expected idle, got %s", a.State())
	}
	if g.running.Load() {
		t.Error("graph should be stopped")
	}

	// further callbacks are silent and do not signal again
	g.callStale(320)
	if ended.Load() != 1 {
		t.Errorf("expected OutputEnded once, got %d", ended.Load())
	}

	st := a.Status()
	if st.BytesPlayed != 1000 || st.Frames != 4 || st.StreamsCompleted != 1 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestAdapterFIFO(t *testing.T) {
	a, b, ended := newTestAdapter(t, Config{})

	for _, v := range []byte{'A', 'B', 'C'} {
		if err := a.Enqueue(stream(t, filled(100, v))); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	g := b.latest()
	var played []byte
	for i := 0; i < 10 && a.IsPlaying(); i++ {
		played = append(played, g.Pull(64)...)
	}

	expected := append(append(filled(100, 'A'), filled(100, 'B')...), filled(100, 'C')...)
	if !bytes.Equal(played, expected) {
		t.Errorf("expected A then B then C, got %q", played)
	}
	if ended.Load() != 1 {
		t.Errorf("expected one OutputEnded, got %d", ended.Load())
	}
	if g.starts.Load() != 1 {
		t.Errorf("expected graph started once, got %d", g.starts.Load())
	}
}

func TestAdapterEnqueueWhilePlaying(t *testing.T) {
	a, b, ended := newTestAdapter(t, Config{})

	if err := a.Enqueue(stream(t, filled(200, 'A'))); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	g := b.latest()

	var played []byte
	played = append(played, g.Pull(64)...)

	done := make(chan error)
	go func() { done <- a.Enqueue(stream(t, filled(100, 'B'))) }()
	if err := <-done; err != nil {
		t.Fatalf("Enqueue B: %v", err)
	}

	for a.IsPlaying() {
		played = append(played, g.Pull(64)...)
	}

	expected := append(filled(200, 'A'), filled(100, 'B')...)
	if !bytes.Equal(played, expected) {
		t.Errorf("expected 200 A then 100 B, got %q", played)
	}
	if ended.Load() != 1 {
		t.Errorf("expected OutputEnded once, got %d", ended.Load())
	}
}

func TestAdapterFillFromNext(t *testing.T) {
	a, b, _ := newTestAdapter(t, Config{FramePolicy: FillFromNext})

	a.Enqueue(stream(t, filled(100, 'A')))
	a.Enqueue(stream(t, filled(100, 'B')))

	g := b.latest()
	frame := g.Pull(64)
	if len(frame) != 64 {
		t.Fatalf("expected 64, got %d", len(frame))
	}
	frame = g.Pull(64)
	expected := append(filled(36, 'A'), filled(28, 'B')...)
	if !bytes.Equal(frame, expected) {
		t.Errorf("expected frame completed from next stream, got %q", frame)
	}
	if st := a.Status(); st.StreamsCompleted != 1 || st.Queued != 1 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestAdapterPushPartial(t *testing.T) {
	a, b, _ := newTestAdapter(t, Config{})

	a.Enqueue(stream(t, filled(100, 'A')))
	a.Enqueue(stream(t, filled(100, 'B')))

	g := b.latest()
	g.Pull(64)
	if frame := g.Pull(64); !bytes.Equal(frame, filled(36, 'A')) {
		t.Errorf("expected partial frame of A, got %q", frame)
	}
	if frame := g.Pull(64); !bytes.Equal(frame, filled(64, 'B')) {
		t.Errorf("expected B next, got %q", frame)
	}
}

func TestAdapterPlayAudioEmptyStream(t *testing.T) {
	a, b, ended := newTestAdapter(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.PlayAudio(ctx, stream(t, nil)) }()

	var frames [][]byte
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("PlayAudio: %v", err)
			}
			for _, f := range frames {
				if len(f) != 0 {
					t.Errorf("expected no audio for empty stream, got %d bytes", len(f))
				}
			}
			if ended.Load() != 1 {
				t.Errorf("expected one OutputEnded, got %d", ended.Load())
			}
			return
		case <-ctx.Done():
			t.Fatal("PlayAudio did not complete")
		default:
			if g := b.latest(); g != nil {
				frames = append(frames, g.Pull(320))
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func TestAdapterPlayAudioReplacesQueue(t *testing.T) {
	a, b, _ := newTestAdapter(t, Config{})

	a.Enqueue(stream(t, filled(640, 'A')))
	a.Enqueue(stream(t, filled(640, 'B')))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.PlayAudio(ctx, stream(t, filled(100, 'C'))) }()

	var played []byte
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("PlayAudio: %v", err)
			}
			if bytes.ContainsAny(played, "AB") {
				t.Errorf("expected replaced streams dropped, got %q", played)
			}
			if !bytes.Equal(played, filled(100, 'C')) {
				t.Errorf("expected C only, got %q", played)
			}
			return
		case <-ctx.Done():
			t.Fatal("PlayAudio did not complete")
		default:
			if a.Status().Queued < 2 {
				played = append(played, b.latest().Pull(64)...)
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func TestAdapterPlayAudioContextCancel(t *testing.T) {
	a, _, _ := newTestAdapter(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.PlayAudio(ctx, stream(t, pattern(100))); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAdapterStopPlayback(t *testing.T) {
	a, b, ended := newTestAdapter(t, Config{})

	a.Enqueue(stream(t, pattern(1000)))
	a.Enqueue(stream(t, pattern(1000)))
	g := b.latest()
	g.Pull(320)

	a.StopPlayback()
	a.StopPlayback()

	if ended.Load() != 1 {
		t.Errorf("expected OutputEnded once, got %d", ended.Load())
	}
	if a.IsPlaying() || a.State() != StateIdle {
		t.Errorf("expected idle, got %s", a.State())
	}
	if st := a.Status(); st.Queued != 0 {
		t.Errorf("expected empty queue, got %d", st.Queued)
	}
	if g.running.Load() {
		t.Error("expected graph stopped")
	}

	// a late callback from the device thread produces nothing
	if n := g.callStale(320); n != 0 {
		t.Errorf("expected 0 after stop, got %d", n)
	}

	// stop with nothing playing is a no-op
	a.StopPlayback()
	if ended.Load() != 1 {
		t.Errorf("expected OutputEnded once, got %d", ended.Load())
	}

	// playback resumes with the next enqueue
	if err := a.Enqueue(stream(t, filled(10, 'Z'))); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if frame := g.Pull(320); !bytes.Equal(frame, filled(10, 'Z')) {
		t.Errorf("expected new stream after stop, got %q", frame)
	}
}

func TestAdapterEnqueueErrors(t *testing.T) {
	a, _, _ := newTestAdapter(t, Config{})

	if err := a.Enqueue(nil); !errors.Is(err, ErrNilStream) {
		t.Errorf("expected ErrNilStream, got %v", err)
	}

	f8k := audio.Format{Codec: audio.CodecPCM, SampleRate: 8000, Channels: 1, BitDepth: 16}
	other, _ := NewBufferedOutputStream(pattern(10), f8k)
	if err := a.Enqueue(other); !errors.Is(err, ErrFormatMismatch) {
		t.Errorf("expected ErrFormatMismatch, got %v", err)
	}

	headered, _ := NewBufferedOutputStream(pattern(10), audio.DefaultOutput, WithWaveHeader(wav.LengthReal))
	if err := a.Enqueue(headered); !errors.Is(err, ErrHeaderedStream) {
		t.Errorf("expected ErrHeaderedStream, got %v", err)
	}

	s := stream(t, pattern(10))
	if err := a.Enqueue(s); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := a.Enqueue(s); !errors.Is(err, ErrStreamReused) {
		t.Errorf("expected ErrStreamReused, got %v", err)
	}

	a.Close()
	if err := a.Enqueue(stream(t, pattern(10))); !errors.Is(err, ErrAdapterClosed) {
		t.Errorf("expected ErrAdapterClosed, got %v", err)
	}
}

func TestAdapterDeviceChangeMidPlayback(t *testing.T) {
	a, b, ended := newTestAdapter(t, Config{})

	a.Enqueue(stream(t, filled(640, 'A')))
	a.Enqueue(stream(t, filled(100, 'B')))
	first := b.latest()
	played := first.Pull(320)

	// changes before the first enumeration are ignored
	a.HandleDeviceEvent(DeviceEvent{Kind: DeviceAdded, Device: headset, Default: headset})
	if b.opened() != 1 {
		t.Fatalf("expected no regeneration before enumeration, got %d graphs", b.opened())
	}

	a.HandleDeviceEvent(DeviceEvent{Kind: DeviceEnumerationCompleted, Default: speakers})
	a.HandleDeviceEvent(DeviceEvent{Kind: DeviceAdded, Device: headset, Default: headset})
	a.wg.Wait()

	if b.opened() != 2 {
		t.Fatalf("expected a new graph, got %d", b.opened())
	}
	if !first.closed.Load() {
		t.Error("expected old graph closed")
	}
	second := b.latest()
	if second.device.ID != "headset" || a.Device().ID != "headset" {
		t.Errorf("expected headset, got %s", second.device)
	}
	if !second.running.Load() {
		t.Error("expected new graph started")
	}
	if !a.IsPlaying() || a.State() != StatePlaying {
		t.Errorf("expected playing after regeneration, got %s", a.State())
	}
	if ended.Load() != 0 {
		t.Errorf("regeneration must not signal OutputEnded, got %d", ended.Load())
	}

	// the old graph's callback is fenced off
	if n := first.callStale(320); n != 0 {
		t.Errorf("expected stale callback to produce nothing, got %d", n)
	}

	for a.IsPlaying() {
		played = append(played, second.Pull(320)...)
	}
	expected := append(filled(640, 'A'), filled(100, 'B')...)
	if !bytes.Equal(played, expected) {
		t.Errorf("expected playback to resume where it stopped, got %d bytes", len(played))
	}
	if ended.Load() != 1 {
		t.Errorf("expected one OutputEnded, got %d", ended.Load())
	}
	if st := a.Status(); st.Regenerations != 1 {
		t.Errorf("expected 1 regeneration, got %d", st.Regenerations)
	}
}

func TestAdapterDeviceEventSameDefault(t *testing.T) {
	a, b, _ := newTestAdapter(t, Config{})

	a.HandleDeviceEvent(DeviceEvent{Kind: DeviceEnumerationCompleted, Default: speakers})
	a.HandleDeviceEvent(DeviceEvent{Kind: DeviceAdded, Device: headset, Default: speakers})
	a.HandleDeviceEvent(DeviceEvent{Kind: DeviceRemoved, Device: headset, Default: output.DeviceInfo{}})
	a.wg.Wait()

	if b.opened() != 1 {
		t.Errorf("expected no regeneration, got %d graphs", b.opened())
	}
}

func TestAdapterDeviceChangeWhileIdle(t *testing.T) {
	a, b, ended := newTestAdapter(t, Config{})

	a.HandleDeviceEvent(DeviceEvent{Kind: DeviceEnumerationCompleted, Default: speakers})
	a.HandleDeviceEvent(DeviceEvent{Kind: DeviceUpdated, Device: headset, Default: headset})
	a.wg.Wait()

	if a.State() != StateIdle || a.IsPlaying() {
		t.Errorf("expected idle after regeneration, got %s", a.State())
	}
	if g := b.latest(); g.device.ID != "headset" || g.running.Load() {
		t.Error("expected stopped graph on headset")
	}
	if ended.Load() != 0 {
		t.Errorf("expected no OutputEnded, got %d", ended.Load())
	}
}

func TestAdapterResourceFailure(t *testing.T) {
	a, b, ended := newTestAdapter(t, Config{})

	a.HandleDeviceEvent(DeviceEvent{Kind: DeviceEnumerationCompleted, Default: speakers})
	b.mu.Lock()
	b.failNext = 1
	b.mu.Unlock()

	a.Enqueue(stream(t, pattern(1000)))
	a.HandleDeviceEvent(DeviceEvent{Kind: DeviceAdded, Device: headset, Default: headset})
	a.wg.Wait()

	if a.IsPlaying() || a.State() != StateIdle {
		t.Errorf("expected idle after failure, got %s", a.State())
	}
	if ended.Load() != 1 {
		t.Errorf("expected OutputEnded once, got %d", ended.Load())
	}
	st := a.Status()
	if st.ResourceFailures != 1 || st.LastError == nil || st.Queued != 0 {
		t.Errorf("unexpected status %+v", st)
	}

	// next enqueue retries on the target device
	if err := a.Enqueue(stream(t, filled(10, 'R'))); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	a.wg.Wait()
	g := b.latest()
	if g.device.ID != "headset" {
		t.Errorf("expected retry on headset, got %s", g.device)
	}
	if frame := g.Pull(320); !bytes.Equal(frame, filled(10, 'R')) {
		t.Errorf("expected retried stream, got %q", frame)
	}
}

type panicSource struct{}

func (panicSource) Read(p []byte) (int, error) { panic("decoder exploded") }

func TestAdapterCallbackPanic(t *testing.T) {
	a, b, _ := newTestAdapter(t, Config{})

	bad, _ := NewOutputStream(panicSource{}, audio.DefaultOutput)
	a.Enqueue(bad)
	a.Enqueue(stream(t, filled(10, 'G')))

	g := b.latest()
	if n := len(g.Pull(320)); n != 0 {
		t.Errorf("expected empty frame on panic, got %d", n)
	}
	if st := a.Status(); st.CallbackPanics != 1 || st.LastError == nil {
		t.Errorf("unexpected status %+v", st)
	}
	if frame := g.Pull(320); !bytes.Equal(frame, filled(10, 'G')) {
		t.Errorf("expected next stream after panic, got %q", frame)
	}
}

func TestAdapterVolumeAndCapture(t *testing.T) {
	var captured bytes.Buffer
	a, b, _ := newTestAdapter(t, Config{Capture: &captured, Volume: 50})

	if a.Volume() != 50 {
		t.Fatalf("expected volume 50, got %d", a.Volume())
	}

	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(1000))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(0xFFFF&-2000))
	a.Enqueue(stream(t, pcm))

	frame := b.latest().Pull(320)
	if len(frame) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(frame))
	}
	if got := int16(binary.LittleEndian.Uint16(frame[0:])); got != 500 {
		t.Errorf("expected 500, got %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(frame[2:])); got != -1000 {
		t.Errorf("expected -1000, got %d", got)
	}
	if !bytes.Equal(captured.Bytes(), frame) {
		t.Error("capture should hold the pushed frame")
	}

	a.SetMuted(true)
	a.SetVolume(150)
	if !a.Muted() || a.Volume() != 100 {
		t.Errorf("expected muted at 100, got muted=%v volume=%d", a.Muted(), a.Volume())
	}
	a.Enqueue(stream(t, pcm))
	for _, v := range b.latest().Pull(320) {
		if v != 0 {
			t.Fatal("expected silence while muted")
		}
	}
}

func TestAdapterClose(t *testing.T) {
	a, b, ended := newTestAdapter(t, Config{})

	a.Enqueue(stream(t, pattern(1000)))
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !b.latest().closed.Load() {
		t.Error("expected graph closed")
	}
	if ended.Load() != 1 {
		t.Errorf("expected OutputEnded on close, got %d", ended.Load())
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
