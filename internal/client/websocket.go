// ABOUTME: WebSocket client for the dialog backend
// ABOUTME: Handles connection, handshake, queries and routing of response audio
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/dialog-go/internal/protocol"
	"github.com/Resonate-Protocol/dialog-go/pkg/audio"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrConnectionClosed ends the audio of responses still streaming when the connection drops
var ErrConnectionClosed = errors.New("connection closed")

const handshakeTimeout = 5 * time.Second

// Config holds client configuration
type Config struct {
	ServerAddr string
	// Path defaults to /dialog
	Path       string
	// Token is sent as a bearer token when set
	Token      string
	ClientID   string
	Name       string
	Version    int
	DeviceInfo protocol.DeviceInfo
	// RequestFormat is the catalog format asked of the backend
	RequestFormat audio.Format
	Logger        *slog.Logger
}

// Response is a dialog response and its audio
type Response struct {
	ID      uuid.UUID
	QueryID string
	Text    string
	Format  audio.Format
	Audio   *AudioStream
}

// Client represents a WebSocket client
type Client struct {
	config Config
	log    *slog.Logger
	conn   *websocket.Conn
	mu     sync.RWMutex
	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex

	streams   map[uuid.UUID]*AudioStream
	responses chan *Response
	stops     chan protocol.DialogStop
	done      chan struct{}

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = "/dialog"
	}
	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	if config.Version == 0 {
		config.Version = 1
	}
	if config.RequestFormat == (audio.Format{}) {
		config.RequestFormat = audio.DefaultOutput
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config:    config,
		log:       config.Logger.With("component", "dialog-client"),
		streams:   make(map[uuid.UUID]*AudioStream),
		responses: make(chan *Response, 8),
		stops:     make(chan protocol.DialogStop, 8),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect establishes WebSocket connection and performs handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	c.log.Info("connecting", "url", u.String())

	var header http.Header
	if c.config.Token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.config.Token}}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(ctx); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return nil
}

// handshake performs the protocol handshake
func (c *Client) handshake(ctx context.Context) error {
	supported := make([]string, 0, len(audio.Catalog()))
	for _, f := range audio.Catalog() {
		supported = append(supported, f.Label())
	}

	hello := protocol.ClientHello{
		ClientID:       c.config.ClientID,
		Name:           c.config.Name,
		Version:        c.config.Version,
		SupportedRoles: []string{protocol.RoleDialogOutput},
		DeviceInfo:     &c.config.DeviceInfo,
		DialogSupport: &protocol.DialogSupport{
			SupportFormats:  supported,
			PreferredFormat: c.config.RequestFormat.Label(),
		},
	}

	if err := c.send(protocol.TypeClientHello, hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	if env.Type != protocol.TypeServerHello {
		return fmt.Errorf("expected server/hello, got %s", env.Type)
	}
	var server protocol.ServerHello
	if err := json.Unmarshal(env.Payload, &server); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	c.log.Info("handshake complete", "server", server.Name, "server_id", server.ServerID)

	return c.SendState(protocol.ClientState{State: "idle", Volume: 100})
}

// envelope is Message with the payload left raw for a second decode
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) send(msgType string, payload interface{}) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()

	if !connected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload})
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer func() {
		c.endStreams(ErrConnectionClosed)
		close(c.responses)
		close(c.done)
		c.Close()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.Warn("read error", "error", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleBinaryMessage(data)
		case websocket.TextMessage:
			if !c.handleJSONMessage(data) {
				return
			}
		}
	}
}

// handleBinaryMessage routes response audio
func (c *Client) handleBinaryMessage(data []byte) {
	id, payload, err := protocol.DecodeAudioFrame(data)
	if err != nil {
		c.log.Warn("invalid binary message", "error", err)
		return
	}

	c.mu.RLock()
	s := c.streams[id]
	c.mu.RUnlock()
	if s == nil {
		c.log.Debug("audio for unknown response dropped", "response", id, "bytes", len(payload))
		return
	}
	s.push(payload)
}

// handleJSONMessage routes control messages; it reports false once the client is shutting down
func (c *Client) handleJSONMessage(data []byte) bool {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn("failed to parse JSON message", "error", err)
		return true
	}

	switch env.Type {
	case protocol.TypeDialogResponse:
		var msg protocol.DialogResponse
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			c.log.Warn("invalid dialog/response", "error", err)
			return true
		}
		resp, err := c.openResponse(msg)
		if err != nil {
			c.log.Warn("dialog/response rejected", "response", msg.ResponseID, "error", err)
			return true
		}
		select {
		case c.responses <- resp:
		case <-c.ctx.Done():
			return false
		}

	case protocol.TypeDialogAudioEnd:
		var msg protocol.DialogAudioEnd
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			c.log.Warn("invalid dialog/audio-end", "error", err)
			return true
		}
		id, err := uuid.Parse(msg.ResponseID)
		if err != nil {
			c.log.Warn("invalid response id", "response", msg.ResponseID)
			return true
		}
		c.mu.Lock()
		s := c.streams[id]
		delete(c.streams, id)
		c.mu.Unlock()
		if s != nil {
			s.finish(nil)
		}

	case protocol.TypeDialogStop:
		var msg protocol.DialogStop
		json.Unmarshal(env.Payload, &msg)
		select {
		case c.stops <- msg:
		case <-c.ctx.Done():
			return false
		}

	default:
		c.log.Debug("unknown message type", "type", env.Type)
	}
	return true
}

func (c *Client) openResponse(msg protocol.DialogResponse) (*Response, error) {
	id, err := uuid.Parse(msg.ResponseID)
	if err != nil {
		return nil, fmt.Errorf("response id: %w", err)
	}
	format, err := audio.FormatFromLabel(msg.Format)
	if err != nil {
		return nil, err
	}

	s := newAudioStream()
	c.mu.Lock()
	c.streams[id] = s
	c.mu.Unlock()

	c.log.Debug("response started", "response", id, "format", msg.Format)
	return &Response{ID: id, QueryID: msg.QueryID, Text: msg.Text, Format: format, Audio: s}, nil
}

func (c *Client) endStreams(err error) {
	c.mu.Lock()
	streams := c.streams
	c.streams = make(map[uuid.UUID]*AudioStream)
	c.mu.Unlock()

	for _, s := range streams {
		s.finish(err)
	}
}

// Responses delivers each dialog response as it starts. It is closed when the connection ends.
func (c *Client) Responses() <-chan *Response {
	return c.responses
}

// Stops delivers server dialog/stop requests
func (c *Client) Stops() <-chan protocol.DialogStop {
	return c.stops
}

// Done is closed when the connection has ended
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// SendQuery asks the backend to answer text and returns the query id
func (c *Client) SendQuery(text string) (uuid.UUID, error) {
	id := uuid.New()
	query := protocol.DialogQuery{
		QueryID:      id.String(),
		Text:         text,
		OutputFormat: c.config.RequestFormat.Label(),
	}
	if err := c.send(protocol.TypeDialogQuery, query); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// SendStop cancels a response on the backend; uuid.Nil cancels all of them
func (c *Client) SendStop(responseID uuid.UUID) error {
	var stop protocol.DialogStop
	if responseID != uuid.Nil {
		stop.ResponseID = responseID.String()
	}
	return c.send(protocol.TypeDialogStop, stop)
}

// SendState sends a player/update message
func (c *Client) SendState(state protocol.ClientState) error {
	return c.send(protocol.TypePlayerUpdate, state)
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		c.log.Info("connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
