package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fenggwsx/wsbridge/internal/protocol"
)

const (
	defaultSendBuffer      = 256
	defaultInboundBuffer   = 256
	defaultMaxMessageBytes = 1 << 20
)

// Dispatcher consumes every broadcast value after delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, value interface{}) error
}

// Publisher receives a copy of every broadcast payload. It must not block.
type Publisher interface {
	Publish(payload []byte)
}

// HubOptions configures a Hub.
type HubOptions struct {
	Logger          *slog.Logger
	SendBuffer      int
	MaxMessageBytes int64
	Mirror          Publisher
}

type inboundMessage struct {
	from  *channelConn
	value interface{}
}

// Hub tracks WebSocket connections and relays every JSON message to all of
// them. A single goroutine (Run) broadcasts and dispatches messages in the
// order they were received.
type Hub struct {
	logger          *slog.Logger
	dispatcher      Dispatcher
	mirror          Publisher
	sendBuffer      int
	maxMessageBytes int64
	upgrader        websocket.Upgrader

	mu     sync.RWMutex
	conns  map[*channelConn]struct{}
	closed bool

	inbound   chan inboundMessage
	done      chan struct{}
	closeOnce sync.Once
	pumps     sync.WaitGroup
}

// NewHub creates a hub feeding dispatcher.
func NewHub(dispatcher Dispatcher, opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sendBuffer := opts.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	maxMessageBytes := opts.MaxMessageBytes
	if maxMessageBytes <= 0 {
		maxMessageBytes = defaultMaxMessageBytes
	}
	return &Hub{
		logger:          logger,
		dispatcher:      dispatcher,
		mirror:          opts.Mirror,
		sendBuffer:      sendBuffer,
		maxMessageBytes: maxMessageBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:   make(map[*channelConn]struct{}),
		inbound: make(chan inboundMessage, defaultInboundBuffer),
		done:    make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := &channelConn{
		id:   uuid.NewString(),
		hub:  h,
		ws:   ws,
		send: make(chan []byte, h.sendBuffer),
	}
	if !h.Register(conn) {
		_ = ws.Close()
		return
	}

	h.pumps.Add(2)
	go func() {
		defer h.pumps.Done()
		conn.writePump()
	}()
	go func() {
		defer h.pumps.Done()
		conn.readPump()
	}()
}

// Register adds a connection. It reports false once the hub is closed.
func (h *Hub) Register(conn *channelConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	h.logger.Info("client connected", "conn_id", conn.id, "remote_addr", conn.remoteAddr(), "clients", len(h.conns))
	return true
}

// Unregister removes a connection and stops its writer. Repeated calls are
// harmless.
func (h *Hub) Unregister(conn *channelConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; !ok {
		return
	}
	delete(h.conns, conn)
	close(conn.send)
	h.logger.Info("client disconnected", "conn_id", conn.id, "clients", len(h.conns))
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Run broadcasts and dispatches inbound messages until ctx is canceled or
// the hub is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case msg := <-h.inbound:
			h.handle(ctx, msg)
		}
	}
}

func (h *Hub) handle(ctx context.Context, msg inboundMessage) {
	payload, err := protocol.EncodeValue(msg.value)
	if err != nil {
		h.logger.Error("re-encode failed", "conn_id", msg.from.id, "error", err)
		return
	}

	h.Broadcast(payload)
	if h.mirror != nil {
		h.mirror.Publish(payload)
	}

	if h.dispatcher == nil {
		return
	}
	if err := h.dispatcher.Dispatch(ctx, msg.value); err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			h.logger.Warn("command rejected", "conn_id", msg.from.id, "command", string(cmdErr.Command), "error", err)
			return
		}
		h.logger.Error("dispatch failed", "conn_id", msg.from.id, "error", err)
	}
}

// Broadcast queues payload on every registered connection. Connections
// whose queue is full are dropped without affecting the others.
func (h *Hub) Broadcast(payload []byte) {
	var stalled []*channelConn

	h.mu.RLock()
	for conn := range h.conns {
		select {
		case conn.send <- payload:
		default:
			stalled = append(stalled, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range stalled {
		h.logger.Warn("client send buffer full, dropping", "conn_id", conn.id)
		h.Unregister(conn)
	}
}

// enqueue hands a decoded message to the Run loop.
func (h *Hub) enqueue(from *channelConn, value interface{}) bool {
	select {
	case h.inbound <- inboundMessage{from: from, value: value}:
		return true
	case <-h.done:
		return false
	}
}

// Close unregisters every connection and stops Run. Wait blocks until the
// per-connection goroutines have exited.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		h.closed = true
		for conn := range h.conns {
			delete(h.conns, conn)
			close(conn.send)
		}
		h.mu.Unlock()
	})
}

// Wait blocks until all connection pumps have returned.
func (h *Hub) Wait() {
	h.pumps.Wait()
}
