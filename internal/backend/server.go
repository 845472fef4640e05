// ABOUTME: Development dialog backend
// ABOUTME: Manages WebSocket connections, answers dialog queries with synthesized audio
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/dialog-go/internal/discovery"
	"github.com/Resonate-Protocol/dialog-go/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ProtocolVersion is announced in server/hello
const ProtocolVersion = 1

// Config holds server configuration
type Config struct {
	Port int
	Name string
	// Path defaults to /dialog
	Path       string
	EnableMDNS bool
	// Token, when set, must arrive as a bearer token
	Token string
	// PacketInterval paces audio packets; 0 means real time (20ms)
	PacketInterval time.Duration
	Logger         *slog.Logger
}

// Server is a dialog backend that speaks every query back as tones
type Server struct {
	config   Config
	log      *slog.Logger
	serverID string

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	clients   map[string]*Client
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Client represents a connected dialog client
type Client struct {
	ID      string
	Name    string
	Conn    *websocket.Conn
	Support *protocol.DialogSupport

	// State from player/update
	State  string
	Volume int
	Muted  bool

	sendChan  chan interface{}
	ctx       context.Context
	cancel    context.CancelFunc
	responses map[string]context.CancelFunc
	streams   sync.WaitGroup

	mu sync.RWMutex
}

// New creates a new server instance
func New(config Config) *Server {
	if config.Path == "" {
		config.Path = "/dialog"
	}
	if config.PacketInterval <= 0 {
		config.PacketInterval = packetDuration
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Server{
		config:   config,
		log:      config.Logger.With("component", "dialog-backend"),
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		clients:  make(map[string]*Client),
		stopChan: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// non-browser clients send no Origin header
			return r.Header.Get("Origin") == ""
		},
	}
	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving the websocket path
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop
func (s *Server) Start() error {
	s.log.Info("server starting", "name", s.config.Name, "id", s.serverID)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{Logger: s.config.Logger})
		if err := s.mdnsManager.Advertise(s.config.Name, s.config.Port, s.config.Path); err != nil {
			s.log.Warn("failed to start mDNS advertisement", "error", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
	s.log.Info("websocket server listening", "addr", addr, "path", s.config.Path)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.log.Info("server shutting down")
	case err := <-errChan:
		serverErr = err
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("HTTP server shutdown error", "error", err)
	}

	// hijacked websocket connections are not closed by Shutdown
	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
	s.clientsMu.RUnlock()

	s.wg.Wait()
	s.log.Info("server stopped")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.config.Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", "error", err)
		return
	}

	s.log.Debug("new websocket connection", "remote", r.RemoteAddr)
	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConnection(conn)
}

// handleConnection runs the handshake and the read loop for one client
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var msg envelope
	if err := conn.ReadJSON(&msg); err != nil {
		s.log.Warn("error reading hello", "error", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	if msg.Type != protocol.TypeClientHello {
		s.log.Warn("expected client/hello", "got", msg.Type)
		return
	}

	var hello protocol.ClientHello
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		s.log.Warn("error unmarshaling client hello", "error", err)
		return
	}
	if hello.ClientID == "" {
		s.log.Warn("client hello missing client_id")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		ID:        hello.ClientID,
		Name:      hello.Name,
		Conn:      conn,
		Support:   hello.DialogSupport,
		State:     "idle",
		Volume:    100,
		sendChan:  make(chan interface{}, 64),
		ctx:       ctx,
		cancel:    cancel,
		responses: make(map[string]context.CancelFunc),
	}

	s.clientsMu.Lock()
	if existing, exists := s.clients[client.ID]; exists {
		s.clientsMu.Unlock()
		cancel()
		s.log.Warn("duplicate client id rejected", "client_id", client.ID, "name", existing.Name)
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	s.log.Info("client connected", "name", client.Name, "client_id", client.ID, "roles", hello.SupportedRoles)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.clientWriter(client)
	}()

	defer func() {
		client.cancel()
		client.streams.Wait()
		<-writerDone

		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		s.log.Info("client disconnected", "name", client.Name)
	}()

	if err := s.sendMessage(client, protocol.TypeServerHello, protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  ProtocolVersion,
	}); err != nil {
		return
	}

	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read error", "error", err)
			}
			return
		}
		s.handleClientMessage(client, msg)
	}
}

// envelope is protocol.Message with the payload left raw
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// clientWriter is the only goroutine writing to the client's connection
func (s *Server) clientWriter(client *Client) {
	// a dead writer must release goroutines blocked in enqueue
	defer client.cancel()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg := <-client.sendChan:
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			var err error
			switch v := msg.(type) {
			case []byte:
				err = client.Conn.WriteMessage(websocket.BinaryMessage, v)
			default:
				err = client.Conn.WriteJSON(v)
			}
			if err != nil {
				s.log.Debug("write failed", "client", client.Name, "error", err)
				client.Conn.Close()
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}

		case <-client.ctx.Done():
			return
		}
	}
}

func (s *Server) handleClientMessage(client *Client, msg envelope) {
	switch msg.Type {
	case protocol.TypeDialogQuery:
		var query protocol.DialogQuery
		if err := json.Unmarshal(msg.Payload, &query); err != nil {
			s.log.Warn("invalid dialog/query", "error", err)
			return
		}
		s.startResponse(client, query)

	case protocol.TypeDialogStop:
		var stop protocol.DialogStop
		json.Unmarshal(msg.Payload, &stop)
		s.stopResponses(client, stop.ResponseID)

	case protocol.TypePlayerUpdate:
		var state protocol.ClientState
		if err := json.Unmarshal(msg.Payload, &state); err != nil {
			s.log.Warn("invalid player/update", "error", err)
			return
		}
		client.mu.Lock()
		client.State = state.State
		client.Volume = state.Volume
		client.Muted = state.Muted
		client.mu.Unlock()
		s.log.Debug("client state", "client", client.Name, "state", state.State, "volume", state.Volume, "muted", state.Muted)

	default:
		s.log.Debug("unknown message type", "type", msg.Type)
	}
}

// ClientState returns the last reported state of a client
func (s *Server) ClientState(clientID string) (protocol.ClientState, bool) {
	s.clientsMu.RLock()
	client, ok := s.clients[clientID]
	s.clientsMu.RUnlock()
	if !ok {
		return protocol.ClientState{}, false
	}
	client.mu.RLock()
	defer client.mu.RUnlock()
	return protocol.ClientState{State: client.State, Volume: client.Volume, Muted: client.Muted}, true
}

// sendMessage queues a JSON message; it fails once the client is gone
func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) error {
	return s.enqueue(client, protocol.Message{Type: msgType, Payload: payload})
}

// sendBinary queues a binary frame
func (s *Server) sendBinary(client *Client, data []byte) error {
	return s.enqueue(client, data)
}

func (s *Server) enqueue(client *Client, msg interface{}) error {
	select {
	case client.sendChan <- msg:
		return nil
	case <-client.ctx.Done():
		return client.ctx.Err()
	}
}
