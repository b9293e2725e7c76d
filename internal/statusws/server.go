// Package statusws serves controller state over a local websocket and
// accepts button presses from connected clients.
package statusws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/voxbox/internal/diaglog"
	"github.com/tiroq/voxbox/internal/statemachine"
)

// Path is the websocket endpoint.
const Path = "/ws"

const (
	sendBuffer   = 16
	intentBuffer = 16
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Server fans state events out to websocket clients and queues their
// intents for the owner of the controller. Intents are never executed on a
// connection goroutine.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	intents  chan statemachine.Intent

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    *StateEvent
	closing bool

	logger   *diaglog.Logger
	loggerMu sync.RWMutex

	listener   net.Listener
	httpServer *http.Server
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// New creates a server that will listen on addr once Start is called.
func New(addr string) *Server {
	s := &Server{
		addr:    addr,
		intents: make(chan statemachine.Intent, intentBuffer),
		clients: make(map[*client]struct{}),
		logger:  diaglog.NewNoOp(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: localOrigin}
	return s
}

// SetLogger injects the diagnostic logger.
func (s *Server) SetLogger(l *diaglog.Logger) {
	if l == nil {
		l = diaglog.NewNoOp()
	}
	s.loggerMu.Lock()
	s.logger = l
	s.loggerMu.Unlock()
}

func (s *Server) log(entry diaglog.LogEntry) {
	s.loggerMu.RLock()
	l := s.logger
	s.loggerMu.RUnlock()
	entry.Component = diaglog.ComponentStatusServer
	l.Log(entry)
}

// Handler returns the HTTP handler serving Path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status server listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = s.httpServer.Serve(ln)
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Close stops the listener and disconnects every client.
func (s *Server) Close() error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Close()
	}
	s.mu.Lock()
	s.closing = true
	for c := range s.clients {
		c.close()
	}
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Intents delivers intents received from clients.
func (s *Server) Intents() <-chan statemachine.Intent {
	return s.intents
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Publish records ev as the current state and sends it to every client.
// Clients that cannot keep up are disconnected.
func (s *Server) Publish(ev StateEvent) {
	ev.Type = TypeState
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.last = &ev
	var slow []*client
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(s.clients, c)
	}
	s.mu.Unlock()

	for _, c := range slow {
		c.close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	if s.last != nil {
		if data, err := json.Marshal(s.last); err == nil {
			c.send <- data
		}
	}
	s.mu.Unlock()

	s.log(diaglog.LogEntry{
		Event:   diaglog.EventClientConnect,
		Payload: map[string]interface{}{"remote_addr": r.RemoteAddr},
	})

	go s.writeLoop(c)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
	s.log(diaglog.LogEntry{
		Event:   diaglog.EventClientDisconnect,
		Payload: map[string]interface{}{"remote_addr": r.RemoteAddr},
	})
}

// readLoop handles client messages until the connection fails.
func (s *Server) readLoop(c *client) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg IntentMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.reply(c, ErrorMessage{Type: TypeError, Error: "invalid JSON"})
				continue
			}
			return
		}
		if msg.Type != TypeIntent {
			s.reply(c, ErrorMessage{Type: TypeError, Error: fmt.Sprintf("unsupported message type %q", msg.Type)})
			continue
		}
		switch msg.Intent {
		case statemachine.IntentPrimary, statemachine.IntentReset:
		default:
			s.reply(c, ErrorMessage{Type: TypeError, Error: fmt.Sprintf("unknown intent %q", msg.Intent)})
			continue
		}

		s.log(diaglog.LogEntry{Event: diaglog.EventCommandReceived, Reason: string(msg.Intent)})
		select {
		case s.intents <- msg.Intent:
		default:
			s.reply(c, ErrorMessage{Type: TypeError, Error: "busy, intent dropped"})
		}
	}
}

func (s *Server) reply(c *client, msg ErrorMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writeLoop is the only goroutine writing to c.conn.
func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// localOrigin accepts non-browser clients and pages served from loopback.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
