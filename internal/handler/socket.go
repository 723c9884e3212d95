package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/forgo/saga/presence/internal/middleware"
	"github.com/forgo/saga/presence/internal/model"
	"github.com/forgo/saga/presence/internal/service"
)

// SocketConfig holds websocket transport settings
type SocketConfig struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration // must be shorter than PongWait
	MaxMessageBytes int64
	AllowedOrigins  []string
}

// SocketHandlerConfig holds the dependencies of a SocketHandler
type SocketHandlerConfig struct {
	Presence   *service.PresenceService
	Dispatcher *Dispatcher
	Limiter    *middleware.RateLimiter // Optional, inbound events are unlimited if nil
	Socket     SocketConfig
}

// SocketHandler upgrades GET /v1/socket and runs one connection per client.
// Authentication happens before the upgrade (see middleware.OptionalAuth);
// a request without a valid token becomes a guest connection.
type SocketHandler struct {
	presence   *service.PresenceService
	dispatcher *Dispatcher
	limiter    *middleware.RateLimiter
	cfg        SocketConfig
	upgrader   websocket.Upgrader
}

// NewSocketHandler creates a new socket handler
func NewSocketHandler(cfg SocketHandlerConfig) *SocketHandler {
	h := &SocketHandler{
		presence:   cfg.Presence,
		dispatcher: cfg.Dispatcher,
		limiter:    cfg.Limiter,
		cfg:        cfg.Socket,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *SocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients send no origin
		return true
	}
	return middleware.OriginAllowed(h.cfg.AllowedOrigins, origin)
}

// ServeHTTP handles GET /v1/socket. It blocks until the connection ends,
// then runs the disconnect cleanup.
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		slog.Debug("socket upgrade failed",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		return
	}

	conn := h.presence.Connect(middleware.GetAccountID(r.Context()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(ws, conn)
	}()

	h.readPump(context.WithoutCancel(r.Context()), ws, conn)

	h.presence.Disconnect(conn.ID)
	conn.Close()
	if h.limiter != nil {
		h.limiter.Forget(conn.ID)
	}
	<-done
}

// readPump reads frames until the client goes away, the pong deadline
// passes, or the connection is closed server side.
func (h *SocketHandler) readPump(ctx context.Context, ws *websocket.Conn, conn *service.Connection) {
	ws.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	// Unblock ReadMessage when the server closes the connection
	go func() {
		<-conn.Done
		_ = ws.SetReadDeadline(time.Now())
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !conn.Closed() {
				slog.Debug("socket read failed",
					slog.String("connection_id", conn.ID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		h.handleMessage(ctx, conn, message)
	}
}

func (h *SocketHandler) handleMessage(ctx context.Context, conn *service.Connection, message []byte) {
	var frame Frame
	if err := json.Unmarshal(message, &frame); err != nil || frame.Event == "" {
		if frame.Ack != "" {
			h.reply(conn, NewErrorAck(frame.Ack, model.NewInvalidInputError("malformed frame")))
			return
		}
		slog.Debug("malformed frame dropped", slog.String("connection_id", conn.ID))
		return
	}

	if h.limiter != nil {
		if allowed, _, reset := h.limiter.Allow(conn.ID); !allowed {
			slog.Debug("event rate limited",
				slog.String("connection_id", conn.ID),
				slog.String("event", frame.Event),
			)
			if frame.Ack != "" {
				h.reply(conn, NewErrorAck(frame.Ack, model.NewRateLimitError(h.limiter.RetryAfter(reset))))
			}
			return
		}
	}

	ack := h.dispatcher.Dispatch(ctx, conn, &frame)
	if frame.Ack != "" {
		h.reply(conn, ack)
	}
}

func (h *SocketHandler) reply(conn *service.Connection, ack *Ack) {
	payload, err := json.Marshal(ack)
	if err != nil {
		slog.Error("failed to encode ack",
			slog.String("connection_id", conn.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !conn.Enqueue(payload) && !conn.Closed() {
		slog.Warn("ack dropped, send buffer full", slog.String("connection_id", conn.ID))
	}
}

// writePump owns all writes to ws. It drains conn.Send, pings on
// PingPeriod and closes ws when the connection is done.
func (h *SocketHandler) writePump(ws *websocket.Conn, conn *service.Connection) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case frame := <-conn.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.writeFailed(conn, err)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.writeFailed(conn, err)
				return
			}
		case <-conn.Done:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteWait))
			return
		}
	}
}

func (h *SocketHandler) writeFailed(conn *service.Connection, err error) {
	if !errors.Is(err, websocket.ErrCloseSent) {
		slog.Debug("socket write failed",
			slog.String("connection_id", conn.ID),
			slog.String("error", err.Error()),
		)
	}
	conn.Close()
}
