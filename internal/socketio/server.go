package socketio

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"glassmon/internal/registry"
)

const (
	DefaultMaxPayload int64 = 8 << 20

	writeTimeout = 10 * time.Second
	pingInterval = 25 * time.Second
	pingTimeout  = 20 * time.Second

	// outboundQueue bounds the messages waiting for a socket's writer. A
	// socket that falls this far behind is closed.
	outboundQueue = 64
)

var (
	errSlowConsumer = errors.New("outbound queue full")
	errConnClosed   = errors.New("connection closed")
)

// Handler receives the lifecycle and events of every connected socket.
// Calls for one socket are never concurrent with each other.
type Handler interface {
	Connect(socketID string, w registry.Writer)
	Disconnect(socketID string)
	HandleEvent(socketID string, event string, args []json.RawMessage)
}

type Options struct {
	Logger     *slog.Logger
	MaxPayload int64
}

// Server speaks Engine.IO v4 / Socket.IO v5 over the websocket transport
// on the default namespace. Long polling is not offered.
type Server struct {
	handler    Handler
	logger     *slog.Logger
	maxPayload int64
	upgrader   websocket.Upgrader
}

func NewServer(handler Handler, opts Options) *Server {
	s := &Server{
		handler:    handler,
		logger:     opts.Logger,
		maxPayload: opts.MaxPayload,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxPayload <= 0 {
		s.maxPayload = DefaultMaxPayload
	}
	return s
}

type openPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":0,"message":"Transport unknown"}`))
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	ws.SetReadLimit(s.maxPayload)

	c := newConn(ws, uuid.NewString(), outboundQueue)
	defer s.release(c)

	open, _ := json.Marshal(openPayload{
		SID:          c.sid,
		Upgrades:     []string{},
		PingInterval: pingInterval.Milliseconds(),
		PingTimeout:  pingTimeout.Milliseconds(),
		MaxPayload:   s.maxPayload,
	})
	if err := c.writeText(string(rune(engineOpen)) + string(open)); err != nil {
		return
	}

	go c.writeLoop()
	go c.heartbeat(pingInterval, pingTimeout)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if !s.handleFrame(c, string(data)) {
			return
		}
	}
}

// release runs once per connection when its read loop ends.
func (s *Server) release(c *conn) {
	s.leave(c)
	c.close()
}

func (s *Server) leave(c *conn) {
	if c.joined.Swap(false) {
		s.handler.Disconnect(c.sid)
	}
}

// handleFrame processes one Engine.IO frame and reports whether the
// connection should stay open.
func (s *Server) handleFrame(c *conn, msg string) bool {
	if msg == "" {
		return true
	}
	switch msg[0] {
	case enginePong:
		c.pong.Store(true)
	case engineMessage:
		s.handlePacket(c, msg[1:])
	case engineClose:
		return false
	}
	return true
}

func (s *Server) handlePacket(c *conn, raw string) {
	p, err := decodePacket(raw)
	if err != nil {
		return
	}
	switch p.Type {
	case packetConnect:
		s.join(c, p)
	case packetDisconnect:
		s.leave(c)
	case packetEvent:
		s.dispatch(c, p)
	case packetBinaryEvent:
		s.logger.Debug("binary events are not supported", "socket_id", c.sid)
	}
}

// join accepts the connect packet without authentication. Only the default
// namespace exists.
func (s *Server) join(c *conn, p packet) {
	if p.Namespace != defaultNamespace {
		_ = c.send(connectErrorPacket(p.Namespace, "Invalid namespace"))
		return
	}
	if c.joined.Swap(true) {
		return
	}
	s.handler.Connect(c.sid, c)
	_ = c.send(connectPacket(p.Namespace, c.sid))
}

func (s *Server) dispatch(c *conn, p packet) {
	if !c.joined.Load() || p.Namespace != defaultNamespace {
		return
	}
	event, args, err := p.event()
	if err != nil {
		s.logger.Warn("dropping malformed event", "socket_id", c.sid, "err", err)
		return
	}
	s.handler.HandleEvent(c.sid, event, args)
	if p.ID != nil {
		_ = c.send(ackPacket(p.Namespace, *p.ID))
	}
}

// conn is one websocket client. It satisfies registry.Writer. Messages are
// queued and written by writeLoop, so a stalled peer never blocks the
// goroutine that emits to it.
type conn struct {
	ws  *websocket.Conn
	sid string

	joined atomic.Bool
	pong   atomic.Bool

	out       chan string
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, sid string, queue int) *conn {
	return &conn{ws: ws, sid: sid, out: make(chan string, queue), done: make(chan struct{})}
}

func (c *conn) WriteEvent(event string, payload json.RawMessage) error {
	p, err := eventPacket(defaultNamespace, event, payload)
	if err != nil {
		return err
	}
	return c.send(p)
}

func (c *conn) Close() error {
	c.close()
	return nil
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *conn) send(p packet) error {
	return c.enqueue(string(rune(engineMessage)) + p.encode())
}

// enqueue never blocks. A full queue is reported so the caller can drop the
// socket.
func (c *conn) enqueue(msg string) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return errSlowConsumer
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			if err := c.writeText(msg); err != nil {
				c.close()
				return
			}
		}
	}
}

// writeText writes directly to the socket. Only the open frame, written
// before writeLoop starts, and writeLoop itself call it.
func (c *conn) writeText(msg string) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

// heartbeat pings every interval and closes the connection when a pong
// does not arrive within timeout.
func (c *conn) heartbeat(interval, timeout time.Duration) {
	for {
		select {
		case <-c.done:
			return
		case <-time.After(interval):
		}

		c.pong.Store(false)
		if err := c.enqueue(string(rune(enginePing))); err != nil {
			c.close()
			return
		}

		select {
		case <-c.done:
			return
		case <-time.After(timeout):
		}
		if !c.pong.Load() {
			c.close()
			return
		}
	}
}
