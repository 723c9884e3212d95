package service

import "errors"

// Centralized service layer errors.
// All errors returned by service methods are defined here so handlers can
// map them with errors.Is.

// ===== Layer Errors =====
var (
	ErrLayerNotFound   = errors.New("layer not found")
	ErrLayerNameExists = errors.New("a layer with this name already exists")
	ErrLayerInactive   = errors.New("Layer is not active")
	ErrLayerFull       = errors.New("Layer is full")
	ErrLayerIDRequired = errors.New("layerId is required")
	ErrNoLayerUpdates  = errors.New("no fields to update")
)

// ===== Room Errors =====
var (
	ErrRoomRequired  = errors.New("roomId is required")
	ErrEmoteRequired = errors.New("emote is required")
)

// ===== Authorization Errors =====
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrAuthRequired     = errors.New("authentication required")
)

// ===== Connection Errors =====
var (
	ErrConnectionClosed = errors.New("connection closed")
)
