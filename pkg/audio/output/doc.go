// ABOUTME: Audio output package for playing dialog audio
// ABOUTME: Provides the Backend/Graph pull interfaces and device implementations
// Package output opens playback graphs whose device thread pulls PCM frames
// through a FrameFunc.
//
// Backends: Malgo (miniaudio, default), Oto, PortAudio (build with
// -tags portaudio) and Null (no hardware, wall-clock driven). A Graph runs
// from Open until Close and only calls its FrameFunc between Start and Stop,
// so Start and Stop are cheap and never block.
//
// Example:
//
//	m, err := output.NewMalgo(logger)
//	g, err := m.Open(output.GraphConfig{Format: audio.DefaultOutput}, fill)
//	g.Start()
//	defer g.Close()
package output
