// ABOUTME: Response streaming for the development backend
// ABOUTME: Picks the response format, encodes synthesized speech and paces audio frames
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/Resonate-Protocol/dialog-go/internal/protocol"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio/encode"
	"github.com/google/uuid"
)

// packetDuration is the audio carried by one binary frame
const packetDuration = 20 * time.Millisecond

// replyText is what the backend answers to a query
func replyText(query string) string {
	if query == "" {
		return "I did not hear anything."
	}
	return "You said: " + query
}

// chooseFormat returns the first of the query's format and the client's
// preferred format that this backend can encode, falling back to the default.
func chooseFormat(requested string, support *protocol.DialogSupport) audio.Format {
	candidates := []string{requested}
	if support != nil {
		candidates = append(candidates, support.PreferredFormat)
	}
	for _, label := range candidates {
		if label == "" {
			continue
		}
		f, err := audio.FormatFromLabel(label)
		if err != nil {
			continue
		}
		// mp3 has no encoder here
		if f.Codec == audio.CodecPCM || f.Codec == audio.CodecOpus {
			return f
		}
	}
	return audio.DefaultOutput
}

func (s *Server) startResponse(client *Client, query protocol.DialogQuery) {
	format := chooseFormat(query.OutputFormat, client.Support)
	enc, err := encode.New(format)
	if err != nil {
		s.log.Warn("encoder unavailable, using default format", "format", format.Label(), "error", err)
		format = audio.DefaultOutput
		if enc, err = encode.New(format); err != nil {
			s.log.Error("default encoder failed", "error", err)
			return
		}
	}

	id := uuid.New()
	text := replyText(query.Text)
	ctx, cancel := context.WithCancel(client.ctx)

	client.mu.Lock()
	client.responses[id.String()] = cancel
	client.mu.Unlock()

	if err := s.sendMessage(client, protocol.TypeDialogResponse, protocol.DialogResponse{
		ResponseID: id.String(),
		QueryID:    query.QueryID,
		Text:       text,
		Format:     format.Label(),
	}); err != nil {
		s.endResponse(client, id)
		enc.Close()
		return
	}

	s.log.Info("response started", "client", client.Name, "response", id, "format", format.Label(), "text", text)

	client.streams.Add(1)
	go func() {
		defer client.streams.Done()
		defer enc.Close()
		defer s.endResponse(client, id)

		err := s.streamResponse(ctx, client, id, enc, format, synthesize(text, format))
		switch {
		case err == nil:
			s.log.Info("response complete", "response", id)
		case errors.Is(err, context.Canceled) && client.ctx.Err() == nil:
			s.log.Info("response stopped", "response", id)
		case client.ctx.Err() != nil:
			return
		default:
			s.log.Warn("response failed", "response", id, "error", err)
		}

		if err := s.sendMessage(client, protocol.TypeDialogAudioEnd, protocol.DialogAudioEnd{ResponseID: id.String()}); err != nil {
			s.log.Debug("audio-end not sent", "response", id, "error", err)
		}
	}()
}

// streamResponse sends samples as 20ms packets, one per PacketInterval
func (s *Server) streamResponse(ctx context.Context, client *Client, id uuid.UUID, enc encode.Encoder, format audio.Format, samples []int32) error {
	channels := format.Channels
	chunk := format.SampleRate / 50 * channels
	if n := enc.FrameSamples(); n > 0 {
		chunk = n * channels
	}

	ticker := time.NewTicker(s.config.PacketInterval)
	defer ticker.Stop()

	for off := 0; off < len(samples); off += chunk {
		pcm := samples[off:min(off+chunk, len(samples))]
		if enc.FrameSamples() > 0 && len(pcm) < chunk {
			padded := make([]int32, chunk)
			copy(padded, pcm)
			pcm = padded
		}

		data, err := enc.Encode(pcm)
		if err != nil {
			return err
		}
		if err := s.sendBinary(client, protocol.EncodeAudioFrame(id, data)); err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Server) endResponse(client *Client, id uuid.UUID) {
	client.mu.Lock()
	cancel := client.responses[id.String()]
	delete(client.responses, id.String())
	client.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// stopResponses cancels one response, or all of them for an empty id
func (s *Server) stopResponses(client *Client, responseID string) {
	client.mu.Lock()
	var cancels []context.CancelFunc
	for id, cancel := range client.responses {
		if responseID == "" || id == responseID {
			cancels = append(cancels, cancel)
		}
	}
	client.mu.Unlock()

	s.log.Info("client stopped responses", "client", client.Name, "response", responseID, "count", len(cancels))
	for _, cancel := range cancels {
		cancel()
	}
}

// Interrupt cancels a client's responses and tells it to stop playing them
func (s *Server) Interrupt(clientID string) error {
	s.clientsMu.RLock()
	client, ok := s.clients[clientID]
	s.clientsMu.RUnlock()
	if !ok {
		return errors.New("unknown client")
	}

	client.mu.Lock()
	ids := make([]string, 0, len(client.responses))
	for id := range client.responses {
		ids = append(ids, id)
	}
	client.mu.Unlock()

	for _, id := range ids {
		if err := s.sendMessage(client, protocol.TypeDialogStop, protocol.DialogStop{ResponseID: id}); err != nil {
			return err
		}
	}
	s.stopResponses(client, "")
	return nil
}
