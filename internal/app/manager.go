// ABOUTME: Dialog manager application orchestration
// ABOUTME: Connects to the backend and turns dialog responses into queued output streams
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Resonate-Protocol/dialog-go/internal/client"
	"github.com/Resonate-Protocol/dialog-go/internal/discovery"
	"github.com/Resonate-Protocol/dialog-go/internal/filesource"
	"github.com/Resonate-Protocol/dialog-go/internal/protocol"
	"github.com/Resonate-Protocol/dialog-go/internal/ui"
	"github.com/Resonate-Protocol/dialog-go/internal/version"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/wav"
	"github.com/Resonate-Protocol/dialog-go/pkg/dialog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrQuit is returned internally when the user asks to quit; Run reports it as a clean exit
var ErrQuit = errors.New("quit requested")

// ErrNotConnected is returned by operations that need the backend
var ErrNotConnected = errors.New("not connected to a dialog backend")

const statsInterval = 500 * time.Millisecond

// Config holds manager configuration
type Config struct {
	// ServerAddr is host:port; empty means discover via mDNS
	ServerAddr string
	Path       string
	Token      string
	Name       string
	Discovery  discovery.Config
	// DiscoveryTimeout bounds the wait for the first backend
	DiscoveryTimeout time.Duration
	// RequestFormat is the catalog format asked of the backend
	RequestFormat audio.Format
	// RawFormat is the format assumed for .raw/.pcm files (zero means the output format)
	RawFormat audio.Format

	Output dialog.Config
	// WatchDevices polls Output.Enumerator for default device changes
	WatchDevices bool
	PollInterval time.Duration

	// Controls and Status connect the TUI; both are optional
	Controls *ui.Controls
	Status   func(ui.StatusMsg)
	Logger   *slog.Logger
}

// playing is a queued stream and the source behind it
type playing struct {
	responseID uuid.UUID
	closer     io.Closer
}

// Manager owns the adapter and the backend connection
type Manager struct {
	config  Config
	log     *slog.Logger
	adapter *dialog.Adapter
	client  *client.Client
	ended   chan struct{}

	mu        sync.Mutex
	active    map[uuid.UUID]playing
	responses int
}

// New creates the manager and opens the output device
func New(config Config) (*Manager, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.DiscoveryTimeout <= 0 {
		config.DiscoveryTimeout = 10 * time.Second
	}
	if config.Output.Logger == nil {
		config.Output.Logger = config.Logger
	}

	adapter, err := dialog.NewAdapter(config.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}

	m := &Manager{
		config:  config,
		log:     config.Logger.With("component", "manager"),
		adapter: adapter,
		ended:   make(chan struct{}, 1),
		active:  make(map[uuid.UUID]playing),
	}
	adapter.OnOutputEnded(m.onOutputEnded)

	m.report(ui.StatusMsg{Device: adapter.Device().Name, State: adapter.State().String()})
	return m, nil
}

// Adapter returns the output adapter
func (m *Manager) Adapter() *dialog.Adapter {
	return m.adapter
}

// Connect reaches the backend directly or through discovery
func (m *Manager) Connect(ctx context.Context) error {
	addr, path := m.config.ServerAddr, m.config.Path
	if addr == "" {
		m.log.Info("discovering dialog backend")
		disc := discovery.NewManager(m.config.Discovery)

		dctx, cancel := context.WithTimeout(ctx, m.config.DiscoveryTimeout)
		server, err := disc.Discover(dctx)
		cancel()
		if err != nil {
			return err
		}
		addr = server.Addr()
		if path == "" {
			path = server.Path
		}
	}

	c := client.NewClient(client.Config{
		ServerAddr: addr,
		Path:       path,
		Token:      m.config.Token,
		Name:       m.config.Name,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		RequestFormat: m.config.RequestFormat,
		Logger:        m.config.Logger,
	})
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}

	m.mu.Lock()
	m.client = c
	m.mu.Unlock()

	connected := true
	m.report(ui.StatusMsg{Connected: &connected, ServerName: addr})
	m.log.Info("connected to dialog backend", "addr", addr)
	return nil
}

func (m *Manager) currentClient() *client.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// Run handles responses, stops, device changes and UI input until ctx ends,
// the connection drops or the user quits
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	c := m.currentClient()

	if c != nil {
		g.Go(func() error { return m.handleResponses(gctx, c) })
		g.Go(func() error { return m.handleStops(gctx, c) })
	}
	if m.config.WatchDevices && m.config.Output.Enumerator != nil {
		watcher := dialog.NewDeviceWatcher(m.config.Output.Enumerator, m.config.PollInterval, m.handleDeviceEvent, m.config.Logger)
		g.Go(func() error { return watcher.Run(gctx) })
	}
	if m.config.Controls != nil {
		g.Go(func() error { return m.handleControls(gctx) })
	}
	g.Go(func() error { return m.handleEnded(gctx) })
	if m.config.Status != nil {
		g.Go(func() error { return m.statsLoop(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, ErrQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleResponses turns each dialog response into a queued stream
func (m *Manager) handleResponses(ctx context.Context, c *client.Client) error {
	for {
		select {
		case resp, ok := <-c.Responses():
			if !ok {
				connected := false
				m.report(ui.StatusMsg{Connected: &connected, Error: "connection lost"})
				return client.ErrConnectionClosed
			}
			if err := m.playResponse(resp); err != nil {
				m.log.Warn("response not played", "response", resp.ID, "error", err)
				m.report(ui.StatusMsg{Error: err.Error()})
				resp.Audio.Close()
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) playResponse(resp *client.Response) error {
	src, closer, err := m.sourceFor(resp.Format, resp.Audio)
	if err != nil {
		return err
	}

	stream, err := dialog.NewOutputStream(src, m.adapter.Format())
	if err != nil {
		closer.Close()
		return err
	}

	if err := m.adapter.Enqueue(stream); err != nil {
		closer.Close()
		return err
	}
	// recorded after Enqueue: an entry seen while the adapter is idle has finished playing
	m.mu.Lock()
	m.active[stream.ID] = playing{responseID: resp.ID, closer: closer}
	m.responses++
	m.mu.Unlock()

	m.log.Info("response queued", "response", resp.ID, "format", resp.Format.Label(), "text", resp.Text)
	m.report(ui.StatusMsg{Text: resp.Text, State: m.adapter.State().String()})
	m.sendState("playing")
	return nil
}

// sourceFor converts response audio in format f to the output format
func (m *Manager) sourceFor(f audio.Format, a *client.AudioStream) (dialog.AudioSource, io.Closer, error) {
	out := m.adapter.Format()

	switch {
	case f == out:
		return a, a, nil

	case f.Kind() == audio.KindPCM:
		r, err := decode.NewPCMReader(a, f, out)
		if err != nil {
			return nil, nil, err
		}
		return dialog.FromReader(r), closers{a, r}, nil

	case f.Codec == audio.CodecMP3:
		r, err := decode.NewMP3Reader(a, out)
		if err != nil {
			return nil, nil, err
		}
		return dialog.FromReader(r), closers{a, r}, nil

	case f.Codec == audio.CodecOpus:
		dec, err := decode.NewOpus(f)
		if err != nil {
			return nil, nil, err
		}
		r, err := decode.NewPacketReader(a, dec, f, out)
		if err != nil {
			dec.Close()
			return nil, nil, err
		}
		return dialog.FromReader(r), closers{a, r}, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", audio.ErrUnknownFormat, f.Label())
}

// closers closes every member, the network stream first so a blocked read returns
type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// handleStops applies server dialog/stop requests
func (m *Manager) handleStops(ctx context.Context, c *client.Client) error {
	for {
		select {
		case stop := <-c.Stops():
			if stop.ResponseID != "" && !m.isActive(stop.ResponseID) {
				m.log.Debug("stop for a response not playing", "response", stop.ResponseID)
				continue
			}
			m.log.Info("backend stopped playback", "response", stop.ResponseID)
			m.Stop()

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) isActive(responseID string) bool {
	id, err := uuid.Parse(responseID)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.active {
		if p.responseID == id {
			return true
		}
	}
	return false
}

// Stop is barge-in: sources are closed first so a callback blocked on the
// network returns, then playback stops and OutputEnded fires
func (m *Manager) Stop() {
	m.closeActive(true)
	m.adapter.StopPlayback()
}

// closeActive closes queued sources. Without all, only response sources are
// closed and only when the adapter is idle; playFile closes its own files.
func (m *Manager) closeActive(all bool) {
	var closing []io.Closer

	m.mu.Lock()
	if all || !m.adapter.IsPlaying() {
		for id, p := range m.active {
			if all || p.responseID != uuid.Nil {
				closing = append(closing, p.closer)
				delete(m.active, id)
			}
		}
	}
	m.mu.Unlock()

	for _, c := range closing {
		c.Close()
	}
}

// onOutputEnded runs on the adapter's notification path and must not block
func (m *Manager) onOutputEnded() {
	select {
	case m.ended <- struct{}{}:
	default:
	}
}

func (m *Manager) handleEnded(ctx context.Context) error {
	for {
		select {
		case <-m.ended:
			m.closeActive(false)
			m.log.Debug("dialog output ended")
			m.report(ui.StatusMsg{State: m.adapter.State().String()})
			m.sendState("idle")

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) handleDeviceEvent(ev dialog.DeviceEvent) {
	m.adapter.HandleDeviceEvent(ev)
	if ev.Kind != dialog.DeviceEnumerationCompleted {
		m.report(ui.StatusMsg{Device: m.adapter.Device().Name})
	}
}

// handleControls applies TUI input
func (m *Manager) handleControls(ctx context.Context) error {
	controls := m.config.Controls
	for {
		select {
		case vol := <-controls.Volume:
			m.adapter.SetVolume(vol)
			m.log.Debug("volume changed", "volume", vol)
			m.sendState(m.stateName())

		case muted := <-controls.Mute:
			m.adapter.SetMuted(muted)
			m.sendState(m.stateName())

		case <-controls.Stop:
			m.StopAll()

		case <-controls.Quit:
			return ErrQuit

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// StopAll stops local playback and cancels every response on the backend
func (m *Manager) StopAll() {
	m.Stop()
	if c := m.currentClient(); c != nil {
		if err := c.SendStop(uuid.Nil); err != nil {
			m.log.Warn("failed to send dialog/stop", "error", err)
		}
	}
}

func (m *Manager) statsLoop(ctx context.Context) error {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st := m.adapter.Status()
			m.mu.Lock()
			responses := m.responses
			m.mu.Unlock()

			m.report(ui.StatusMsg{
				State:  st.State.String(),
				Device: st.Device.Name,
				Stats: &ui.Stats{
					Queued:      st.Queued,
					Responses:   responses,
					BytesPlayed: st.BytesPlayed,
				},
			})

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Query sends text to the backend
func (m *Manager) Query(text string) (uuid.UUID, error) {
	c := m.currentClient()
	if c == nil {
		return uuid.Nil, ErrNotConnected
	}
	return c.SendQuery(text)
}

// PlayFiles plays local audio files one after another, returning when the last
// one ends or ctx is done
func (m *Manager) PlayFiles(ctx context.Context, paths []string) error {
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.playFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) playFile(ctx context.Context, path string) error {
	src, err := filesource.Open(path, m.adapter.Format(), m.config.RawFormat)
	if err != nil {
		return err
	}
	defer src.Close()

	stream, err := dialog.NewOutputStream(dialog.FromReader(src), m.adapter.Format())
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.active[stream.ID] = playing{closer: src}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.active, stream.ID)
		m.mu.Unlock()
	}()

	m.log.Info("playing file", "path", path, "format", src.Format.Label())
	m.report(ui.StatusMsg{Text: filepath.Base(path)})
	m.sendState("playing")

	if err := m.adapter.PlayAudio(ctx, stream); err != nil {
		return fmt.Errorf("play %s: %w", filepath.Base(path), err)
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("play %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ExportFile drains src into a .wav file at path in the output format and
// returns the payload size
func (m *Manager) ExportFile(path string, src dialog.AudioSource) (int64, error) {
	stream, err := dialog.NewOutputStream(src, m.adapter.Format(), dialog.WithWaveHeader(wav.LengthZero))
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	n, err := stream.WriteTo(f)
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	payload := n - wav.HeaderSize
	if err := wav.RewriteLengths(f, payload); err != nil {
		return 0, fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}

	m.log.Info("exported audio", "path", path, "bytes", payload)
	return payload, nil
}

func (m *Manager) stateName() string {
	if m.adapter.IsPlaying() {
		return "playing"
	}
	return "idle"
}

// sendState reports the client state to the backend, when connected
func (m *Manager) sendState(state string) {
	c := m.currentClient()
	if c == nil {
		return
	}
	err := c.SendState(protocol.ClientState{
		State:  state,
		Volume: m.adapter.Volume(),
		Muted:  m.adapter.Muted(),
	})
	if err != nil {
		m.log.Debug("failed to send player/update", "error", err)
	}
}

func (m *Manager) report(msg ui.StatusMsg) {
	if m.config.Status != nil {
		m.config.Status(msg)
	}
}

// Close disconnects and releases the output device
func (m *Manager) Close() error {
	m.closeActive(true)
	if c := m.currentClient(); c != nil {
		c.Close()
	}
	return m.adapter.Close()
}
