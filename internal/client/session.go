package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sessionBuffer     = 64
	sessionWriteWait  = 5 * time.Second
	maxInboundMessage = 1 << 20
)

// ErrSessionClosed is returned by Send once the session has been closed.
var ErrSessionClosed = errors.New("session closed")

// Session is one WebSocket connection from the console to the relay hub.
type Session struct {
	url    string
	dialer *websocket.Dialer

	writeMu  sync.Mutex
	conn     *websocket.Conn
	messages chan []byte
	done     chan struct{}
	once     sync.Once
}

// NewSession prepares a session for url without dialing.
func NewSession(url string) *Session {
	return &Session{
		url:      url,
		dialer:   websocket.DefaultDialer,
		messages: make(chan []byte, sessionBuffer),
		done:     make(chan struct{}),
	}
}

// URL returns the hub address this session targets.
func (s *Session) URL() string {
	return s.url
}

// Connect dials the hub and starts delivering broadcasts on Messages.
func (s *Session) Connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(maxInboundMessage)

	s.writeMu.Lock()
	select {
	case <-s.done:
		s.writeMu.Unlock()
		conn.Close()
		return ErrSessionClosed
	default:
	}
	s.conn = conn
	s.writeMu.Unlock()

	go s.readLoop(conn)
	return nil
}

// Messages yields every text frame the hub broadcasts. It is closed when the
// connection ends.
func (s *Session) Messages() <-chan []byte {
	return s.messages
}

// Send writes one text frame.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	if s.conn == nil {
		return ErrSessionClosed
	}

	deadline := time.Now().Add(sessionWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		if s.conn == nil {
			return
		}
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

func (s *Session) readLoop(conn *websocket.Conn) {
	defer close(s.messages)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case s.messages <- data:
		case <-s.done:
			return
		}
	}
}
