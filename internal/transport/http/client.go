package http

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trivia-room-service/internal/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBufferSize = 64
)

// client is one upgraded connection. It implements app.Conn; rooms queue
// frames on it and a single writer goroutine owns the socket writes.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	// identity is only touched by the read loop.
	userID   string
	roomID   string
	roomCode string
}

func newClient(conn *websocket.Conn, logger *slog.Logger) *client {
	id := uuid.NewString()
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger.With("conn_id", id),
	}
}

// Send queues data without blocking. A client that cannot keep up is closed.
func (c *client) Send(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("send queue full, closing connection")
		c.close()
	}
}

func (c *client) sendError(err error) {
	e := domain.Convert(err)
	if e.Code == domain.CodeInternal {
		c.logger.Error("request failed", "error", err)
	}
	data, encErr := domain.Encode(domain.EventError, domain.ErrorPayload{Code: e.Code, Message: e.Message})
	if encErr != nil {
		c.logger.Error("encode error frame failed", "error", encErr)
		return
	}
	c.Send(data)
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) setIdentity(userID, roomID, roomCode string) {
	c.userID, c.roomID, c.roomCode = userID, roomID, roomCode
}

func (c *client) clearIdentity() {
	c.setIdentity("", "", "")
}

func (c *client) joined() bool {
	return c.userID != ""
}

// writePump drains the send queue and pings the peer until the client is
// closed or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("ws write failed", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
