// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for packet decoders feeding dialog playback
package decode

// Decoder decodes audio in various formats to PCM int32 samples
type Decoder interface {
	// Decode converts one encoded packet to interleaved samples in 24-bit range
	Decode(data []byte) ([]int32, error)

	// Close releases decoder resources
	Close() error
}
