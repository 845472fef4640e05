// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, the dialog format catalog and sample conversion functions
// Package audio provides the audio types shared by the dialog output pipeline.
//
// Format describes a dialog audio stream. PCM formats carry a bit depth,
// compressed formats (MP3, Opus) carry a bit rate; Validate enforces that
// exactly one of the two is set. Catalog lists the formats a dialog backend
// may deliver, addressed by labels such as "raw-16khz-16bit-mono-pcm".
//
// Example:
//
//	f, err := audio.FormatFromLabel("audio-24khz-48kbitrate-mono-mp3")
//	if err != nil {
//	    return err
//	}
//	frame := audio.DefaultOutput.FrameBytes(320) // 640 bytes
package audio
