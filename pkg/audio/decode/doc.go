// ABOUTME: Audio decoder package for dialog response codecs
// ABOUTME: Converts PCM, Opus, MP3 and FLAC into the device's PCM output format
// Package decode turns dialog audio in any catalog format into PCM bytes in
// the format the output device plays.
//
// Packet codecs (PCM, Opus) implement Decoder. Stream codecs (MP3, FLAC)
// are wrapped by a Reader directly. Every Reader runs its samples through a
// Converter, which remixes channels, resamples and packs to the target bit
// depth, so its bytes can back a dialog.OutputStream.
//
// Example:
//
//	r, err := decode.NewMP3Reader(body, audio.DefaultOutput)
//	if err != nil {
//	    return err
//	}
//	stream, err := dialog.NewOutputStream(dialog.FromReader(r), audio.DefaultOutput)
package decode
