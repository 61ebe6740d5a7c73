package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	apperrors "callrelay/pkg/errors"
	rlog "callrelay/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Drop reasons reported by the transport.
const (
	DropQueueFull   = "queue_full"
	DropRateLimited = "rate_limited"
)

type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
	MaxMessageSize int64
	// MaxConnections caps concurrent sockets; 0 means unlimited.
	MaxConnections int
	// MessagesPerSecond limits inbound frames per connection; 0 disables it.
	MessagesPerSecond float64
	Burst             int
	AllowedOrigins    []string

	Metrics ports.SignalMetrics
	Logger  *zap.SugaredLogger
}

func (o *Options) setDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 64
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024 // enough for SDP
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
}

// client is one upgraded socket. send is closed only by the server under
// its write lock, and only after the client has left the clients map.
type client struct {
	id      domain.ConnectionID
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
}

// WebSocketServer owns every socket and implements ports.MessageSink. Each
// client has a single writer goroutine fed by a buffered queue, so messages
// to one recipient leave in the order they were delivered.
type WebSocketServer struct {
	handler  ports.WebSocketHandler
	opts     Options
	upgrader websocket.Upgrader

	clients map[domain.ConnectionID]*client
	mu      sync.RWMutex
}

func NewWebSocketServer(opts Options) *WebSocketServer {
	opts.setDefaults()
	s := &WebSocketServer{
		opts:    opts,
		clients: make(map[domain.ConnectionID]*client),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return s
}

var _ ports.MessageSink = (*WebSocketServer)(nil)

// SetHandler wires the message handler. It must be called before serving.
func (s *WebSocketServer) SetHandler(h ports.WebSocketHandler) {
	s.handler = h
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	s.opts.Logger.Warnw("websocket origin rejected", "origin", origin)
	return false
}

// HandleWebSocket upgrades the request and serves the socket until it closes.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Cheap early refusal; admit enforces the cap.
	if s.opts.MaxConnections > 0 && s.ConnectionCount() >= s.opts.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   domain.ConnectionID(uuid.NewString()),
		conn: conn,
		send: make(chan []byte, s.opts.SendBufferSize),
	}
	if s.opts.MessagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.Burst)
	}

	ctx, cancel := context.WithCancel(rlog.WithConnectionID(context.Background(), string(c.id)))
	defer cancel()

	if !s.admit(c) {
		s.opts.Logger.Warnw("connection cap reached after upgrade", "max", s.opts.MaxConnections)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteTimeout))
		conn.Close()
		return
	}

	go s.writePump(c)

	if err := s.handler.HandleConnection(ctx, c.id); err != nil {
		s.opts.Logger.Errorw("connection rejected", "connection_id", c.id, "error", err)
		s.remove(c)
		return
	}

	s.readPump(ctx, c)

	s.handler.HandleDisconnect(ctx, c.id)
	s.remove(c)
}

func (s *WebSocketServer) readPump(ctx context.Context, c *client) {
	c.conn.SetReadLimit(s.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.opts.Logger.Infow("error reading message", "connection_id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if kind != websocket.TextMessage {
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			s.rejectRateLimited(ctx, c)
			continue
		}
		if err := s.handler.HandleMessage(ctx, c.id, data); err != nil {
			s.opts.Logger.Debugw("message not handled", "connection_id", c.id, "error", err)
		}
	}
}

func (s *WebSocketServer) rejectRateLimited(ctx context.Context, c *client) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.MessageDropped(DropRateLimited)
	}
	appErr := apperrors.FromDomain(domain.ErrRateLimited)
	_ = s.Deliver(ctx, c.id, domain.Outbound{
		Type:    domain.MessageError,
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
}

func (s *WebSocketServer) writePump(c *client) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.opts.Logger.Infow("error writing message", "connection_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Deliver queues msg for id without blocking. A client whose queue is full
// is disconnected.
func (s *WebSocketServer) Deliver(ctx context.Context, to domain.ConnectionID, msg domain.Outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[to]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, to)
	}
	select {
	case c.send <- data:
		return nil
	default:
		s.opts.Logger.Warnw("send queue full, closing slow client", "connection_id", to)
		if s.opts.Metrics != nil {
			s.opts.Metrics.MessageDropped(DropQueueFull)
		}
		c.conn.Close()
		return fmt.Errorf("%w: %s", domain.ErrSendQueueFull, to)
	}
}

// admit adds c to the clients map unless the connection cap is reached.
func (s *WebSocketServer) admit(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.MaxConnections > 0 && len(s.clients) >= s.opts.MaxConnections {
		return false
	}
	s.clients[c.id] = c
	return true
}

func (s *WebSocketServer) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.clients[c.id]; ok && current == c {
		delete(s.clients, c.id)
		close(c.send)
	}
}

func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown sends a going-away close frame to every client. Read loops then
// exit and run the usual disconnect path.
func (s *WebSocketServer) Shutdown(ctx context.Context) {
	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c.conn)
	}
	s.mu.RUnlock()

	deadline := time.Now().Add(s.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, conn := range conns {
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			conn.Close()
		}
	}
	s.opts.Logger.Infow("websocket clients notified of shutdown", "count", len(conns))
}
