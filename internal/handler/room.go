package handler

import (
	"context"
	"encoding/json"

	"github.com/forgo/saga/presence/internal/model"
	"github.com/forgo/saga/presence/internal/service"
)

// Room event names
const (
	EventRoomEnter = "room.enter"
	EventRoomMove  = "room.move"
	EventRoomEmote = "room.emote"
	EventRoomLeave = "room.leave"
)

// RoomHandler handles room presence events
type RoomHandler struct {
	rooms *service.RoomService
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// Register adds the room events to a dispatcher
func (h *RoomHandler) Register(d *Dispatcher) {
	d.Handle(EventRoomEnter, h.Enter)
	d.Handle(EventRoomMove, h.Move)
	d.Handle(EventRoomEmote, h.Emote)
	d.Handle(EventRoomLeave, h.Leave)
}

// Enter handles room.enter and returns the other occupants
func (h *RoomHandler) Enter(_ context.Context, conn *service.Connection, data json.RawMessage) (interface{}, error) {
	var req model.RoomPositionRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	return h.rooms.Enter(conn, &req)
}

// Move handles room.move
func (h *RoomHandler) Move(_ context.Context, conn *service.Connection, data json.RawMessage) (interface{}, error) {
	var req model.RoomPositionRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	if err := h.rooms.Move(conn, &req); err != nil {
		return nil, err
	}
	return Empty{}, nil
}

// Emote handles room.emote
func (h *RoomHandler) Emote(_ context.Context, conn *service.Connection, data json.RawMessage) (interface{}, error) {
	var req model.RoomEmoteRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	if err := h.rooms.Emote(conn, &req); err != nil {
		return nil, err
	}
	return Empty{}, nil
}

// Leave handles room.leave
func (h *RoomHandler) Leave(_ context.Context, conn *service.Connection, data json.RawMessage) (interface{}, error) {
	var req model.RoomLeaveRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	if err := h.rooms.Leave(conn, req.RoomID); err != nil {
		return nil, err
	}
	return Empty{}, nil
}
