// ABOUTME: Local audio files as dialog audio sources
// ABOUTME: Opens wav, raw pcm, mp3 and flac files as PCM readers in the output format
package filesource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/wav"
)

// ErrUnsupportedFile is returned for file types with no decoder
var ErrUnsupportedFile = errors.New("unsupported audio file type")

// Source is an open audio file producing PCM in the requested format
type Source struct {
	Path string
	// Format is the file's own format
	Format audio.Format
	r      *decode.Reader
	file   *os.File

	closeOnce sync.Once
	closeErr  error
}

// Read returns converted PCM; io.EOF at the end of the file
func (s *Source) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Close releases the decoder and the file. Later calls return the first result.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.r.Close(), s.file.Close())
	})
	return s.closeErr
}

// Open opens path and converts its audio to format to. Raw .raw/.pcm files are
// read as rawFormat; the zero value means to.
func Open(path string, to, rawFormat audio.Format) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}

	src, err := open(f, path, to, rawFormat)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return src, nil
}

func open(f *os.File, path string, to, rawFormat audio.Format) (*Source, error) {
	src := &Source{Path: path, file: f}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		var info wav.Info
		info, err = wav.ReadHeader(f)
		if err != nil {
			return nil, err
		}
		src.Format = info.Format
		var payload io.Reader = f
		// streaming writers leave 0 or the max sentinel; read to EOF then
		if info.DataSize != 0 && info.DataSize < wav.MaxLength-36 {
			payload = io.LimitReader(f, int64(info.DataSize))
		}
		src.r, err = decode.NewPCMReader(payload, info.Format, to)

	case ".raw", ".pcm":
		if rawFormat == (audio.Format{}) {
			rawFormat = to
		}
		src.Format = rawFormat
		src.r, err = decode.NewPCMReader(f, rawFormat, to)

	case ".mp3":
		src.r, err = decode.NewMP3Reader(f, to)
		src.Format = audio.Format{Codec: audio.CodecMP3}

	case ".flac":
		src.r, err = decode.NewFLACReader(f, to)
		src.Format = audio.Format{Codec: "flac"}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Ext(path))
	}

	if err != nil {
		return nil, err
	}
	return src, nil
}

// Supported reports whether path has an extension Open can decode
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".raw", ".pcm", ".mp3", ".flac":
		return true
	}
	return false
}
