package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/forgo/saga/presence/internal/model"
	"github.com/forgo/saga/presence/internal/service"
)

// Layer event names
const (
	EventLayerList    = "layer.list"
	EventLayerGet     = "layer.get"
	EventLayerCreate  = "layer.create"
	EventLayerUpdate  = "layer.update"
	EventLayerJoin    = "layer.join"
	EventLayerLeave   = "layer.leave"
	EventLayerCurrent = "layer.current"
)

// LayerHandler handles layer directory and selection events
type LayerHandler struct {
	layers *service.LayerService
}

// NewLayerHandler creates a new layer handler
func NewLayerHandler(layers *service.LayerService) *LayerHandler {
	return &LayerHandler{layers: layers}
}

// Register adds the layer events to a dispatcher
func (h *LayerHandler) Register(d *Dispatcher) {
	d.Handle(EventLayerList, h.List)
	d.Handle(EventLayerGet, h.Get)
	d.Handle(EventLayerCreate, h.Create)
	d.Handle(EventLayerUpdate, h.Update)
	d.Handle(EventLayerJoin, h.Join)
	d.Handle(EventLayerLeave, h.Leave)
	d.Handle(EventLayerCurrent, h.Current)
}

// List handles layer.list
func (h *LayerHandler) List(ctx context.Context, _ *service.Connection, _ json.RawMessage) (interface{}, error) {
	layers, err := h.layers.List(ctx)
	if err != nil {
		return nil, err
	}
	return &model.LayerListResponse{Layers: layers}, nil
}

// Get handles layer.get
func (h *LayerHandler) Get(ctx context.Context, _ *service.Connection, data json.RawMessage) (interface{}, error) {
	var req model.LayerRef
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	layer, err := h.layers.Get(ctx, strings.TrimSpace(req.LayerID))
	if err != nil {
		return nil, err
	}
	return &model.LayerResponse{Layer: layer}, nil
}

// Create handles layer.create (admin only)
func (h *LayerHandler) Create(ctx context.Context, conn *service.Connection, data json.RawMessage) (interface{}, error) {
	var req model.CreateLayerRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	layer, err := h.layers.Create(ctx, conn.AccountID, &req)
	if err != nil {
		return nil, err
	}
	return &model.LayerResponse{Layer: layer}, nil
}

// Update handles layer.update (admin only)
func (h *LayerHandler) Update(ctx context.Context, conn *service.Connection, data json.RawMessage) (interface{}, error) {
	var req model.UpdateLayerRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	layer, err := h.layers.Update(ctx, conn.AccountID, &req)
	if err != nil {
		return nil, err
	}
	return &model.LayerResponse{Layer: layer}, nil
}

// Join handles layer.join
func (h *LayerHandler) Join(ctx context.Context, conn *service.Connection, data json.RawMessage) (interface{}, error) {
	var req model.LayerRef
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	layer, err := h.layers.Join(ctx, conn, strings.TrimSpace(req.LayerID))
	if err != nil {
		return nil, err
	}
	return &model.LayerResponse{Layer: layer}, nil
}

// Leave handles layer.leave. It always succeeds.
func (h *LayerHandler) Leave(_ context.Context, conn *service.Connection, _ json.RawMessage) (interface{}, error) {
	h.layers.Leave(conn)
	return Empty{}, nil
}

// Current handles layer.current. With no current layer the response carries
// a null layer and, when one is configured, the default layer.
func (h *LayerHandler) Current(ctx context.Context, conn *service.Connection, _ json.RawMessage) (interface{}, error) {
	layer, err := h.layers.Current(ctx, conn)
	if err != nil {
		return nil, err
	}
	if layer != nil {
		return &model.LayerResponse{Layer: layer}, nil
	}

	fallback, err := h.layers.Default(ctx)
	if err != nil {
		return nil, err
	}
	return &model.LayerResponse{DefaultLayer: fallback}, nil
}
