package service

import (
	"log/slog"

	"github.com/forgo/saga/presence/internal/model"
	"github.com/google/uuid"
)

// PresenceServiceConfig holds the dependencies of a PresenceService
type PresenceServiceConfig struct {
	Hub        *ConnectionHub
	Rooms      *RoomService
	Layers     *LayerService
	SendBuffer int
}

// PresenceService owns the connection lifecycle across both presence axes
type PresenceService struct {
	hub        *ConnectionHub
	rooms      *RoomService
	layers     *LayerService
	sendBuffer int
}

// NewPresenceService creates a new presence service
func NewPresenceService(cfg PresenceServiceConfig) *PresenceService {
	return &PresenceService{
		hub:        cfg.Hub,
		rooms:      cfg.Rooms,
		layers:     cfg.Layers,
		sendBuffer: cfg.SendBuffer,
	}
}

// Connect registers a new connection and queues its connection.ready push.
// accountID is empty for guests.
func (s *PresenceService) Connect(accountID string) *Connection {
	conn := NewConnection(uuid.NewString(), accountID, s.sendBuffer)
	s.hub.Register(conn)

	ready := &model.ConnectionReadyEvent{ConnectionID: conn.ID}
	if accountID != "" {
		ready.AccountID = &accountID
	}
	s.hub.Send(conn.ID, EventConnectionReady, ready)

	slog.Info("connection opened",
		slog.String("connection_id", conn.ID),
		slog.String("account_id", accountID),
	)
	return conn
}

// Disconnect removes the connection from every room and layer and
// unregisters it. Idempotent; absence anywhere is a no-op.
func (s *PresenceService) Disconnect(connectionID string) {
	rooms := s.rooms.Disconnect(connectionID)
	layers := s.layers.Disconnect(connectionID)
	conn := s.hub.Unregister(connectionID)

	if conn == nil && len(rooms) == 0 && len(layers) == 0 {
		return
	}

	attrs := []any{
		slog.String("connection_id", connectionID),
		slog.Any("rooms", rooms),
		slog.Any("layers", layers),
	}
	if conn != nil {
		attrs = append(attrs, slog.String("account_id", conn.AccountID))
	}
	slog.Info("connection closed", attrs...)
}

// Stats summarises live presence state
func (s *PresenceService) Stats() *model.PresenceStats {
	return &model.PresenceStats{
		Connections:   s.hub.Count(),
		Rooms:         s.rooms.Counts(),
		Layers:        s.layers.Counts(),
		DroppedPushes: s.hub.Dropped(),
	}
}

// Close closes every live connection. Their transports then run Disconnect.
func (s *PresenceService) Close() {
	s.hub.Close()
}
