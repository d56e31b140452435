package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum inbound message size; events are small.
	maxMessageSize = 16 << 10
	// Outbound queue depth before messages are dropped.
	sendBufferSize = 64
)

// client owns one connection. All writes go through the write pump.
type client struct {
	conn   *websocket.Conn
	logger *zap.Logger
	onSend func(msgType string)

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, logger *zap.Logger) *client {
	return &client{
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// enqueue queues m for the write pump. It never blocks: a slow client loses
// messages rather than stalling the session.
func (c *client) enqueue(m Message) {
	data, err := encodeMessage(m)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.String("type", m.Type), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- data:
		if c.onSend != nil {
			c.onSend(m.Type)
		}
	default:
		c.logger.Warn("WebSocket send buffer full, dropping message", zap.String("type", m.Type))
	}
}

// shutdown stops the write pump. Safe to call more than once.
func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("WebSocket ping failed", zap.Error(err))
				return
			}

		case <-c.done:
			// flush whatever is already queued, then say goodbye
			for {
				select {
				case data := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// readPump delivers inbound text frames to handle until the connection
// fails or the peer goes away.
func (c *client) readPump(handle func(data []byte) bool) {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket closed unexpectedly", zap.Error(err))
			} else {
				c.logger.Debug("WebSocket connection closed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		// any traffic proves the peer is alive
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if !handle(data) {
			return
		}
	}
}
