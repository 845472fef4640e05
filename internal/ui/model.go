// ABOUTME: Bubbletea model for the dialog output TUI
// ABOUTME: Shows connection, playback state and device; keys drive volume, mute and stop
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	// Connection
	connected  bool
	serverName string

	// Playback
	state    string
	device   string
	lastText string
	volume   int
	muted    bool

	// Stats
	queued      int
	responses   int
	bytesPlayed int64
	lastError   string

	controls *Controls

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderPlayback())
	b.WriteString(m.renderStats())
	b.WriteString(m.renderHelp())
	return b.String()
}

// renderHeader renders connection status
func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s", m.serverName)
	}

	return fmt.Sprintf(`┌─ Dialog Output ──────────────────────────────────────┐
│ Status: %-44s │
├──────────────────────────────────────────────────────┤
`, truncate(connStatus, 44))
}

// renderPlayback renders state, device, last response and volume
func (m Model) renderPlayback() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " 🔇"
	}

	text := m.lastText
	if text == "" {
		text = "(no response yet)"
	}

	return fmt.Sprintf("│ State:  %-44s │\n"+
		"│ Device: %-44s │\n"+
		"│ Said:   %-44s │\n"+
		"│ Volume: [%s] %3d%%%-25s │\n",
		m.state, truncate(m.device, 44), truncate(text, 44),
		renderBar(m.volume, 100, 10), m.volume, muteIcon)
}

// renderStats renders counters and the last error
func (m Model) renderStats() string {
	s := fmt.Sprintf("├──────────────────────────────────────────────────────┤\n"+
		"│ Responses: %-5d Queued: %-3d Played: %-12s │\n",
		m.responses, m.queued, formatBytes(m.bytesPlayed))
	if m.lastError != "" {
		s += fmt.Sprintf("│ Error: %-45s │\n", truncate(m.lastError, 45))
	}
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ ↑/↓:Volume  m:Mute  s:Stop  q:Quit                   │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.requestQuit()
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+5, 100)
		m.controls.setVolume(m.volume)
	case "down":
		m.volume = max(m.volume-5, 0)
		m.controls.setVolume(m.volume)
	case "m":
		m.muted = !m.muted
		m.controls.setMuted(m.muted)
	case "s":
		m.controls.requestStop()
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Device != "" {
		m.device = msg.Device
	}
	if msg.Text != "" {
		m.lastText = msg.Text
	}
	if msg.Volume != nil {
		m.volume = *msg.Volume
	}
	if msg.Muted != nil {
		m.muted = *msg.Muted
	}
	if msg.Stats != nil {
		m.queued = msg.Stats.Queued
		m.responses = msg.Stats.Responses
		m.bytesPlayed = msg.Stats.BytesPlayed
	}
	if msg.Error != "" {
		m.lastError = msg.Error
	}
}

// StatusMsg updates TUI state; zero fields leave the current value
type StatusMsg struct {
	Connected  *bool
	ServerName string
	State      string
	Device     string
	Text       string
	Volume     *int
	Muted      *bool
	Stats      *Stats
	Error      string
}

// Stats are playback counters
type Stats struct {
	Queued      int
	Responses   int
	BytesPlayed int64
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
