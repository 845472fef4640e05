// ABOUTME: Blocking audio stream fed by websocket binary frames
// ABOUTME: Serves whole packets or byte reads until the response's audio ends
package client

import (
	"io"
	"sync"
)

// AudioStream buffers the audio packets of one response. Readers block until
// data arrives, the response ends, or the stream is closed.
type AudioStream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	packets [][]byte
	pending []byte
	ended   bool
	closed  bool
	err     error
	bytes   int64
}

func newAudioStream() *AudioStream {
	s := &AudioStream{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *AudioStream) push(packet []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.closed {
		return
	}
	s.packets = append(s.packets, append([]byte(nil), packet...))
	s.bytes += int64(len(packet))
	s.cond.Broadcast()
}

// finish marks the end of the audio; err is nil for a clean end
func (s *AudioStream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	s.cond.Broadcast()
}

// Read fills p completely unless the audio ends first, so a short read is the end
func (s *AudioStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for n < len(p) {
		if s.closed {
			return n, io.EOF
		}
		if len(s.pending) == 0 && len(s.packets) > 0 {
			s.pending = s.packets[0]
			s.packets[0] = nil
			s.packets = s.packets[1:]
		}
		if len(s.pending) > 0 {
			c := copy(p[n:], s.pending)
			s.pending = s.pending[c:]
			n += c
			continue
		}
		if s.ended {
			return n, s.endErr()
		}
		s.cond.Wait()
	}
	return n, nil
}

// NextPacket returns the next whole packet, or io.EOF at the end
func (s *AudioStream) NextPacket() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed {
			return nil, io.EOF
		}
		if len(s.pending) > 0 {
			p := s.pending
			s.pending = nil
			return p, nil
		}
		if len(s.packets) > 0 {
			p := s.packets[0]
			s.packets[0] = nil
			s.packets = s.packets[1:]
			return p, nil
		}
		if s.ended {
			return nil, s.endErr()
		}
		s.cond.Wait()
	}
}

func (s *AudioStream) endErr() error {
	if s.err != nil {
		return s.err
	}
	return io.EOF
}

// Received returns the number of audio bytes received so far
func (s *AudioStream) Received() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Close discards buffered audio and wakes blocked readers
func (s *AudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.ended = true
	s.packets = nil
	s.pending = nil
	s.cond.Broadcast()
	return nil
}
