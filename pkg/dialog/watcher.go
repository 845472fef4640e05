// ABOUTME: Polling playback-device watcher
// ABOUTME: Diffs device snapshots into added/removed/updated events with the current default
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio/output"
)

// DeviceEventKind classifies a device change
type DeviceEventKind int

const (
	DeviceEnumerationCompleted DeviceEventKind = iota
	DeviceAdded
	DeviceRemoved
	DeviceUpdated
)

func (k DeviceEventKind) String() string {
	switch k {
	case DeviceEnumerationCompleted:
		return "enumeration-completed"
	case DeviceAdded:
		return "added"
	case DeviceRemoved:
		return "removed"
	case DeviceUpdated:
		return "updated"
	}
	return fmt.Sprintf("DeviceEventKind(%d)", int(k))
}

// DeviceEvent reports a change in the device list. Default is the default
// playback device at the time of the event.
type DeviceEvent struct {
	Kind    DeviceEventKind
	Device  output.DeviceInfo
	Default output.DeviceInfo
}

// DeviceWatcher polls an Enumerator and reports differences
type DeviceWatcher struct {
	enum     output.Enumerator
	interval time.Duration
	handler  func(DeviceEvent)
	log      *slog.Logger

	mu       sync.Mutex
	snapshot map[string]output.DeviceInfo
	primed   bool
}

// NewDeviceWatcher creates a watcher. handler runs on the polling goroutine.
func NewDeviceWatcher(enum output.Enumerator, interval time.Duration, handler func(DeviceEvent), logger *slog.Logger) *DeviceWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceWatcher{
		enum:     enum,
		interval: interval,
		handler:  handler,
		log:      logger.With("component", "device-watcher"),
	}
}

// Poll enumerates once and emits events for what changed since the last poll.
// The first successful poll emits DeviceEnumerationCompleted only.
func (w *DeviceWatcher) Poll() error {
	devices, err := w.enum.Devices()
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}
	def, _ := output.DefaultDevice(devices)

	current := make(map[string]output.DeviceInfo, len(devices))
	for _, d := range devices {
		current[d.ID] = d
	}

	w.mu.Lock()
	var events []DeviceEvent
	if !w.primed {
		w.primed = true
		events = append(events, DeviceEvent{Kind: DeviceEnumerationCompleted, Default: def})
	} else {
		for _, d := range devices {
			prev, ok := w.snapshot[d.ID]
			switch {
			case !ok:
				events = append(events, DeviceEvent{Kind: DeviceAdded, Device: d, Default: def})
			case prev != d:
				events = append(events, DeviceEvent{Kind: DeviceUpdated, Device: d, Default: def})
			}
		}
		for id, prev := range w.snapshot {
			if _, ok := current[id]; !ok {
				events = append(events, DeviceEvent{Kind: DeviceRemoved, Device: prev, Default: def})
			}
		}
	}
	w.snapshot = current
	w.mu.Unlock()

	for _, ev := range events {
		w.log.Debug("device event", "kind", ev.Kind.String(), "device", ev.Device.String(), "default", ev.Default.String())
		if w.handler != nil {
			w.handler(ev)
		}
	}
	return nil
}

// Run polls until ctx is done. Poll failures are logged and retried.
func (w *DeviceWatcher) Run(ctx context.Context) error {
	if err := w.Poll(); err != nil {
		w.log.Warn("device poll failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Poll(); err != nil {
				w.log.Warn("device poll failed", "error", err)
			}
		}
	}
}
