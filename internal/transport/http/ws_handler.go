package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/metrics"
)

type WSHandler struct {
	service  *app.RoomService
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewWSHandler(service *app.RoomService, m *metrics.Metrics, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		metrics: m,
		logger:  logger,
	}
}

type inboundMessage struct {
	Type    domain.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

// ServeWS upgrades the request and runs the read loop. The connection starts
// without an identity; JOIN_ROOM establishes it.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c := newClient(conn, h.logger)
	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()
	c.logger.Debug("connection opened", "remote_addr", r.RemoteAddr)

	go c.writePump()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("connection closed unexpectedly", "error", err)
			}
			break
		}
		h.dispatch(ctx, c, data)
	}

	c.close()
	if c.joined() {
		h.service.Disconnect(c.roomID, c.userID, c)
	}
	c.logger.Debug("connection closed", "user_id", c.userID)
}

func (h *WSHandler) dispatch(ctx context.Context, c *client, data []byte) {
	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
		c.sendError(domain.ErrMalformedMessage)
		return
	}

	switch in.Type {
	case domain.EventJoinRoom:
		var p domain.JoinRoomPayload
		if !decode(in.Payload, &p) || p.RoomCode == "" || p.UserID == "" {
			c.sendError(domain.ErrMalformedMessage)
			return
		}
		h.metrics.MessageReceived(string(in.Type))
		state, err := h.service.Join(ctx, p.RoomCode, p.UserID, p.Username, c)
		if err != nil {
			c.sendError(err)
			return
		}
		if c.joined() && (c.roomID != state.RoomID || c.userID != p.UserID) {
			h.service.Disconnect(c.roomID, c.userID, c)
		}
		c.setIdentity(p.UserID, state.RoomID, state.RoomCode)

	case domain.EventLeaveRoom:
		var p domain.LeaveRoomPayload
		if !decode(in.Payload, &p) {
			c.sendError(domain.ErrMalformedMessage)
			return
		}
		h.metrics.MessageReceived(string(in.Type))
		if !c.joined() || p.UserID != c.userID || p.RoomCode != c.roomCode {
			c.sendError(domain.ErrNotJoined)
			return
		}
		h.service.Leave(ctx, p.RoomCode, p.UserID)
		c.clearIdentity()

	case domain.EventStartGame:
		var p domain.StartGamePayload
		if !decode(in.Payload, &p) {
			c.sendError(domain.ErrMalformedMessage)
			return
		}
		h.metrics.MessageReceived(string(in.Type))
		if !c.joined() {
			c.sendError(domain.ErrNotJoined)
			return
		}
		if err := h.service.Start(ctx, p.RoomID, c.userID); err != nil {
			c.sendError(err)
		}

	case domain.EventSubmitAnswer:
		var p domain.SubmitAnswerPayload
		if !decode(in.Payload, &p) || p.AnswerIndex == nil {
			c.sendError(domain.ErrMalformedMessage)
			return
		}
		h.metrics.MessageReceived(string(in.Type))
		if !c.joined() {
			c.sendError(domain.ErrNotJoined)
			return
		}
		if _, err := h.service.Submit(ctx, p.RoomID, c.userID, p.QuestionID, *p.AnswerIndex, p.TimeMs); err != nil {
			c.sendError(err)
		}

	default:
		c.logger.Debug("ignoring unknown message type", "type", in.Type)
	}
}

func decode(raw json.RawMessage, v any) bool {
	return len(raw) > 0 && json.Unmarshal(raw, v) == nil
}
