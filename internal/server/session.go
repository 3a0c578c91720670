package server

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/fenggwsx/wsbridge/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// channelConn is one WebSocket client registered with the hub.
type channelConn struct {
	id   string
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
}

func (c *channelConn) remoteAddr() string {
	if c.ws == nil {
		return ""
	}
	if addr := c.ws.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// readPump parses inbound frames and hands JSON values to the hub. Malformed
// input is logged and skipped; it never ends the connection.
func (c *channelConn) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(c.hub.maxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	logger := c.hub.logger.With("conn_id", c.id)
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("read failed", "error", err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
		case websocket.BinaryMessage:
			logger.Info("binary message ignored", "bytes", len(data))
			continue
		default:
			continue
		}

		value, err := protocol.DecodeValue(data)
		if err != nil {
			logger.Warn("malformed JSON dropped", "bytes", len(data), "error", err)
			continue
		}
		logger.Debug("message received", "bytes", len(data))

		if !c.hub.enqueue(c, value) {
			return
		}
	}
}

// writePump is the only writer on the socket. It exits when the hub closes
// the send channel or a write fails.
func (c *channelConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.hub.logger.Warn("write failed", "conn_id", c.id, "error", err)
				c.hub.Unregister(c)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unregister(c)
				return
			}
		}
	}
}
