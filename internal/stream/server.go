// ABOUTME: Network sink that streams the synthesized signal to remote listeners
// ABOUTME: Manages WebSocket connections, the handshake, and per-client writers
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mitchpk/tinysynth/internal/discovery"
	"github.com/mitchpk/tinysynth/pkg/audio"
	"github.com/mitchpk/tinysynth/pkg/audio/output"
	"github.com/mitchpk/tinysynth/pkg/protocol"
)

const (
	// DefaultPort is the listen port when Config.Port is 0 and
	// Config.RandomPort is false
	DefaultPort = 8927

	// DefaultChunkMs is the chunk duration
	DefaultChunkMs = 20

	// DefaultBufferAheadMs is how far ahead of the server clock chunks are stamped
	DefaultBufferAheadMs = 500

	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	helloTimeout  = 10 * time.Second
)

var errSendBufferFull = errors.New("client send buffer full")

// closeSignal asks a client writer to send a close frame and hang up
type closeSignal struct{}

// Config holds server configuration
type Config struct {
	Host          string
	Port          int
	RandomPort    bool // listen on an ephemeral port, ignoring Port
	Name          string
	EnableMDNS    bool
	Debug         bool
	ChunkMs       int
	BufferAheadMs int
}

func (c Config) withDefaults() Config {
	if c.Port == 0 && !c.RandomPort {
		c.Port = DefaultPort
	}
	if c.Name == "" {
		c.Name = "tinysynth"
	}
	if c.ChunkMs <= 0 {
		c.ChunkMs = DefaultChunkMs
	}
	if c.BufferAheadMs < 0 {
		c.BufferAheadMs = 0
	} else if c.BufferAheadMs == 0 {
		c.BufferAheadMs = DefaultBufferAheadMs
	}
	return c
}

// Server is an output.Sink that serves audio to WebSocket listeners
type Server struct {
	*output.Pump

	config   Config
	serverID string
	upgrader websocket.Upgrader
	router   chi.Router

	// HTTP server
	httpServer *http.Server
	listener   net.Listener

	// Client management
	clients   map[string]*Client
	conns     map[*websocket.Conn]struct{}
	clientsMu sync.RWMutex

	// Server clock (monotonic microseconds)
	clockStart time.Time

	// mDNS discovery
	mdnsManager *discovery.Manager

	// Lifecycle, guarded by mu
	format audio.Format
	open   bool
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	// Per-client stream state; held for a whole tick
	streamMu sync.Mutex
	running  bool

	stateFunc atomic.Pointer[func() protocol.ServerState]
	chunks    atomic.Uint64
	frames    atomic.Uint64

	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents a connected listener
type Client struct {
	ID   string
	Name string
	Conn *websocket.Conn

	stream *clientStream

	// Output channel for messages
	sendChan chan interface{}
}

// ClientStatus describes a connected listener
type ClientStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// Status is the body of GET /status
type Status struct {
	ServerID string                `json:"server_id"`
	Name     string                `json:"name"`
	Format   string                `json:"format"`
	Running  bool                  `json:"running"`
	Chunks   uint64                `json:"chunks"`
	Frames   uint64                `json:"frames"`
	Clients  []ClientStatus        `json:"clients"`
	State    *protocol.ServerState `json:"state,omitempty"`
}

// New creates a new stream server
func New(config Config) *Server {
	s := &Server{
		Pump:     output.NewPump(),
		config:   config.withDefaults(),
		serverID: uuid.New().String(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Served on trusted local networks only
				if origin := r.Header.Get("Origin"); origin != "" {
					log.Printf("Warning: accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
		clients:    make(map[string]*Client),
		conns:      make(map[*websocket.Conn]struct{}),
		clockStart: time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.config.Debug {
		r.Use(middleware.Logger)
	}
	r.Get(protocol.Path, s.handleWebSocket)
	r.Get("/status", s.handleStatus)
	return r
}

// Name returns the backend name
func (s *Server) Name() string { return "stream" }

// ID returns the server's UUID
func (s *Server) ID() string { return s.serverID }

// Handler returns the HTTP handler serving the stream and status routes
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the listen address once the server is open
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SetStateFunc installs the callback describing the running patch. Its
// result is sent to listeners as server/state and included in /status.
func (s *Server) SetStateFunc(f func() protocol.ServerState) {
	s.stateFunc.Store(&f)
}

func (s *Server) state() (protocol.ServerState, bool) {
	f := s.stateFunc.Load()
	if f == nil {
		return protocol.ServerState{}, false
	}
	return (*f)(), true
}

// Open fixes the stream format and starts listening. The engine format is
// always float32; listeners get PCM or Opus per their hello.
func (s *Server) Open(want audio.Format) (audio.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return audio.Format{}, fmt.Errorf("stream sink is running")
	}
	if s.shuttingDown() {
		return audio.Format{}, fmt.Errorf("stream sink is closed")
	}

	got := want
	if got.SampleRate <= 0 {
		got.SampleRate = output.DefaultSampleRate
	}
	if got.Channels <= 0 {
		got.Channels = output.DefaultChannels
	}
	got.Encoding = audio.Float32
	got.BitDepth = 32

	if s.listener == nil {
		if err := s.listen(); err != nil {
			return audio.Format{}, err
		}
	} else if got.SampleRate != s.format.SampleRate || got.Channels != s.format.Channels {
		s.clientsMu.RLock()
		n := len(s.clients)
		s.clientsMu.RUnlock()
		if n > 0 {
			return audio.Format{}, fmt.Errorf("%w: cannot change format with %d listeners connected", output.ErrUnsupportedSpec, n)
		}
	}

	s.format = got
	s.open = true

	log.Printf("Audio output initialized: %dHz, %d channels (stream on %s)", got.SampleRate, got.Channels, s.listener.Addr())

	return got, nil
}

// listen must hold s.mu
func (s *Server) listen() error {
	port := s.config.Port
	if s.config.RandomPort {
		port = 0
	}
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)
	log.Printf("WebSocket server listening on %s%s", ln.Addr(), protocol.Path)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        ln.Addr().(*net.TCPAddr).Port,
			ServerMode:  true,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}
	return nil
}

// Start attaches src and begins streaming one chunk every ChunkMs
func (s *Server) Start(src output.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return output.ErrNotOpen
	}

	s.Attach(src)
	if s.cancel != nil {
		return nil
	}

	s.streamMu.Lock()
	s.running = true
	s.clientsMu.RLock()
	for _, client := range s.clients {
		s.beginStream(client)
	}
	s.clientsMu.RUnlock()
	s.streamMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.format)

	log.Printf("Audio engine starting")
	return nil
}

// Stop halts the stream and sends stream/end to every listener
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked("stopped")
	return nil
}

// stopLocked must hold s.mu
func (s *Server) stopLocked(reason string) {
	s.Detach()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil

	s.streamMu.Lock()
	s.running = false
	s.clientsMu.RLock()
	for _, client := range s.clients {
		s.endStream(client, reason)
	}
	s.clientsMu.RUnlock()
	s.streamMu.Unlock()

	log.Printf("Audio engine stopping")
}

// Close stops streaming, disconnects every listener and shuts the HTTP
// server down. A closed server cannot be reopened.
func (s *Server) Close() error {
	s.mu.Lock()
	s.stopLocked("shutdown")
	s.open = false
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
		s.mdnsManager = nil
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	// Mark server as shutting down to reject new connections
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	// Listeners get a close frame after anything still queued; connections
	// that never finished the handshake are dropped
	s.clientsMu.RLock()
	registered := make(map[*websocket.Conn]bool, len(s.clients))
	for _, client := range s.clients {
		registered[client.Conn] = true
		select {
		case client.sendChan <- closeSignal{}:
		default:
			client.Conn.Close()
		}
	}
	for conn := range s.conns {
		if !registered[conn] {
			conn.Close()
		}
	}
	s.clientsMu.RUnlock()

	var err error
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shut down HTTP server: %w", shutdownErr)
		}
	}

	s.wg.Wait()

	s.mu.Lock()
	s.listener = nil
	s.httpServer = nil
	s.mu.Unlock()

	log.Printf("Server stopped cleanly")
	return err
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShutdown
}

// Chunks returns the number of binary chunks queued to listeners
func (s *Server) Chunks() uint64 {
	return s.chunks.Load()
}

// Frames returns the number of frames pulled from the source
func (s *Server) Frames() uint64 {
	return s.frames.Load()
}

// Clients lists the connected listeners
func (s *Server) Clients() []ClientStatus {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	out := make([]ClientStatus, 0, len(s.clients))
	for _, client := range s.clients {
		out = append(out, ClientStatus{
			ID:         client.ID,
			Name:       client.Name,
			Codec:      client.stream.format.Codec,
			SampleRate: client.stream.format.SampleRate,
			BitDepth:   client.stream.format.BitDepth,
		})
	}
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := Status{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Running:  s.cancel != nil,
	}
	if s.open {
		status.Format = s.format.String()
	}
	s.mu.Unlock()

	status.Chunks = s.Chunks()
	status.Frames = s.Frames()
	status.Clients = s.Clients()
	if st, ok := s.state(); ok {
		status.State = &st
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Printf("Error writing status: %v", err)
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.shutdownMu.RUnlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)

	s.clientsMu.Lock()
	s.conns[conn] = struct{}{}
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.conns, conn)
		s.clientsMu.Unlock()
		conn.Close()
	}()

	// Close may have swept the connection set before we joined it
	if s.shuttingDown() {
		log.Printf("Rejecting connection during shutdown")
		return
	}

	s.handleConnection(conn)
}

// handleConnection manages a client connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	if s.config.Debug {
		log.Printf("[DEBUG] New connection, waiting for handshake")
	}

	// Wait for client/hello
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Printf("Error reading hello: %v", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	var hello protocol.ClientHello
	if err := protocol.DecodeInto(data, protocol.TypeClientHello, &hello); err != nil {
		log.Printf("Error decoding client hello: %v", err)
		writeError(conn, "invalid_hello", err.Error())
		return
	}

	// Validate client hello
	if hello.ClientID == "" {
		log.Printf("Client hello missing ClientID")
		writeError(conn, "invalid_hello", "client_id is required")
		return
	}
	if hello.Name == "" {
		log.Printf("Client hello missing Name")
		writeError(conn, "invalid_hello", "name is required")
		return
	}

	log.Printf("Client hello: %s (ID: %s, formats: %d)", hello.Name, hello.ClientID, len(hello.SupportedFormats))

	s.mu.Lock()
	format := s.format
	open := s.open
	s.mu.Unlock()
	if !open {
		writeError(conn, "not_ready", "server has no open stream")
		return
	}

	cs, err := newClientStream(ChooseFormat(hello.SupportedFormats, format), format)
	if err != nil {
		log.Printf("Error creating stream for %s: %v", hello.Name, err)
		writeError(conn, "unsupported_format", err.Error())
		return
	}
	defer cs.close()

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		stream:   cs,
		sendChan: make(chan interface{}, 100),
	}

	// Check for duplicate client ID and register atomically
	s.clientsMu.Lock()
	if existing, exists := s.clients[hello.ClientID]; exists {
		s.clientsMu.Unlock()
		log.Printf("Client ID %s already connected (name: %s), rejecting duplicate", hello.ClientID, existing.Name)
		writeError(conn, "duplicate_client_id", "Client ID already connected")
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		close(client.sendChan)
		log.Printf("Client disconnected: %s", client.Name)
	}()

	serverHello := protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  protocol.Version,
	}
	if err := s.sendMessage(client, protocol.TypeServerHello, serverHello); err != nil {
		log.Printf("Error sending server hello: %v", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	s.streamMu.Lock()
	if s.running {
		s.beginStream(client)
	}
	s.streamMu.Unlock()

	// Read messages from client
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		if !s.handleClientMessage(client, data) {
			return
		}
	}
}

// beginStream announces the format to a listener; must hold s.streamMu
func (s *Server) beginStream(client *Client) {
	cs := client.stream
	cs.reset()
	cs.streaming = true

	start := protocol.StreamStart{
		Codec:      cs.format.Codec,
		SampleRate: cs.format.SampleRate,
		Channels:   cs.format.Channels,
		BitDepth:   cs.format.BitDepth,
	}
	if err := s.sendMessage(client, protocol.TypeStreamStart, start); err != nil {
		log.Printf("Error sending stream start to %s: %v", client.Name, err)
	}
	log.Printf("Streaming to %s: %s %dHz %dch %d-bit", client.Name, start.Codec, start.SampleRate, start.Channels, start.BitDepth)

	if st, ok := s.state(); ok {
		if err := s.sendMessage(client, protocol.TypeServerState, st); err != nil {
			log.Printf("Error sending server state to %s: %v", client.Name, err)
		}
	}
}

// endStream must hold s.streamMu
func (s *Server) endStream(client *Client, reason string) {
	if !client.stream.streaming {
		return
	}
	client.stream.streaming = false
	if err := s.sendMessage(client, protocol.TypeStreamEnd, protocol.StreamEnd{Reason: reason}); err != nil {
		log.Printf("Error sending stream end to %s: %v", client.Name, err)
	}
}

// clientWriter sends messages to the client
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}

			switch v := msg.(type) {
			case closeSignal:
				client.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
					time.Now().Add(writeDeadline))
				client.Conn.Close()
				drain(client.sendChan)
				return
			case []byte:
				client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := client.Conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
					log.Printf("Error writing binary message: %v", err)
					client.Conn.Close()
					drain(client.sendChan)
					return
				}
			default:
				data, err := json.Marshal(v)
				if err != nil {
					log.Printf("Error marshaling message: %v", err)
					continue
				}
				client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Printf("Error writing text message: %v", err)
					client.Conn.Close()
					drain(client.sendChan)
					return
				}
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				client.Conn.Close()
				drain(client.sendChan)
				return
			}
		}
	}
}

// drain discards queued messages until the channel is closed
func drain(ch <-chan interface{}) {
	for range ch {
	}
}

// handleClientMessage processes one message; false ends the connection
func (s *Server) handleClientMessage(client *Client, data []byte) bool {
	serverRecv := s.getClockMicros()

	msgType, payload, err := protocol.Decode(data)
	if err != nil {
		log.Printf("Error decoding message: %v", err)
		return true
	}

	switch msgType {
	case protocol.TypeClientTime:
		var clientTime protocol.ClientTime
		if err := json.Unmarshal(payload, &clientTime); err != nil {
			log.Printf("Error unmarshaling client time: %v", err)
			return true
		}
		s.handleTimeSync(client, clientTime, serverRecv)
	case protocol.TypeClientGoodbye:
		var goodbye protocol.ClientGoodbye
		if err := json.Unmarshal(payload, &goodbye); err == nil {
			log.Printf("Client %s said goodbye: %s", client.Name, goodbye.Reason)
		}
		return false
	default:
		log.Printf("Unknown message type: %s", msgType)
	}
	return true
}

// handleTimeSync responds to time synchronization requests
func (s *Server) handleTimeSync(client *Client, clientTime protocol.ClientTime, serverRecv int64) {
	serverSend := s.getClockMicros()

	if s.config.Debug {
		log.Printf("[DEBUG] Time sync for %s: t1=%d, t2=%d, t3=%d",
			client.Name, clientTime.ClientTransmitted, serverRecv, serverSend)
	}

	response := protocol.ServerTime{
		ClientTransmitted: clientTime.ClientTransmitted,
		ServerReceived:    serverRecv,
		ServerTransmitted: serverSend,
	}
	if err := s.sendMessage(client, protocol.TypeServerTime, response); err != nil {
		log.Printf("Error sending server time: %v", err)
	}
}

// sendMessage queues a JSON message for a client
func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) error {
	msg := protocol.Message{
		Type:    msgType,
		Payload: payload,
	}

	select {
	case client.sendChan <- msg:
		return nil
	default:
		return errSendBufferFull
	}
}

// sendBinary queues binary data for a client
func (s *Server) sendBinary(client *Client, data []byte) error {
	select {
	case client.sendChan <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// getClockMicros returns the server clock in microseconds
func (s *Server) getClockMicros() int64 {
	return time.Since(s.clockStart).Microseconds()
}

// writeError sends server/error directly on a connection that never got a writer
func writeError(conn *websocket.Conn, code, message string) {
	msg := protocol.Message{
		Type: protocol.TypeServerError,
		Payload: protocol.ServerError{
			Error:   code,
			Message: message,
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	conn.WriteMessage(websocket.TextMessage, data)
}
