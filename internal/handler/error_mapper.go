package handler

import (
	"errors"

	"github.com/forgo/saga/presence/internal/database"
	"github.com/forgo/saga/presence/internal/model"
	"github.com/forgo/saga/presence/internal/service"
)

// MapServiceError converts a service error to the error carried in a failed
// acknowledgement. Errors it does not recognise become a generic internal
// error; the caller logs the original.
func MapServiceError(err error) *model.AckError {
	if err == nil {
		return nil
	}

	var ackErr *model.AckError
	if errors.As(err, &ackErr) {
		return ackErr
	}

	switch {
	// ===== Not Found =====
	case errors.Is(err, service.ErrLayerNotFound):
		return model.NewNotFoundError("layer")

	// ===== Permission =====
	case errors.Is(err, service.ErrPermissionDenied):
		return model.NewPermissionDeniedError("Admin capability required")
	case errors.Is(err, service.ErrAuthRequired):
		return model.NewPermissionDeniedError("Authentication required")

	// ===== Conflict =====
	case errors.Is(err, service.ErrLayerNameExists),
		errors.Is(err, service.ErrLayerInactive),
		errors.Is(err, service.ErrLayerFull):
		return model.NewConflictError(err.Error())

	// ===== Invalid Input =====
	case errors.Is(err, service.ErrRoomRequired):
		return model.NewValidationError([]model.FieldError{{Field: "roomId", Message: err.Error()}})
	case errors.Is(err, service.ErrEmoteRequired):
		return model.NewValidationError([]model.FieldError{{Field: "emote", Message: err.Error()}})
	case errors.Is(err, service.ErrLayerIDRequired):
		return model.NewValidationError([]model.FieldError{{Field: "layerId", Message: err.Error()}})
	case errors.Is(err, service.ErrNoLayerUpdates):
		return model.NewInvalidInputError(err.Error())

	// ===== Store =====
	case errors.Is(err, database.ErrDuplicate):
		return model.NewConflictError("resource already exists")
	case errors.Is(err, database.ErrNotFound):
		return model.NewNotFoundError("resource")

	default:
		return model.NewInternalError("")
	}
}
