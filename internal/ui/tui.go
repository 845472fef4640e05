// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels carrying user input to the app
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Controls carries user input from the TUI to the application.
// Sends never block; input is dropped when the app is not keeping up.
type Controls struct {
	Volume chan int
	Mute   chan bool
	Stop   chan struct{}
	Quit   chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Volume: make(chan int, 10),
		Mute:   make(chan bool, 10),
		Stop:   make(chan struct{}, 1),
		Quit:   make(chan struct{}, 1),
	}
}

func (c *Controls) setVolume(v int) {
	if c == nil {
		return
	}
	select {
	case c.Volume <- v:
	default:
	}
}

func (c *Controls) setMuted(muted bool) {
	if c == nil {
		return
	}
	select {
	case c.Mute <- muted:
	default:
	}
}

func (c *Controls) requestStop() {
	if c == nil {
		return
	}
	signal(c.Stop)
}

func (c *Controls) requestQuit() {
	if c == nil {
		return
	}
	signal(c.Quit)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls, volume int) Model {
	return Model{
		volume:   volume,
		state:    "idle",
		controls: controls,
	}
}

// Run creates the TUI program; the caller runs it
func Run(controls *Controls, volume int) *tea.Program {
	return tea.NewProgram(NewModel(controls, volume), tea.WithAltScreen())
}
