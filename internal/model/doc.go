// Package model defines the presence domain types shared across layers.
//
// The package contains layer and account records, room presence payloads,
// request/response types for socket events, and the acknowledgement error
// type returned to clients.
//
// # Domain Entities
//
//   - Layer: persistent world shard with ordering, default flag and capacity
//   - Account: authenticated player; only role and current layer are used
//   - RoomPresence: what a connection shows to others in a room
//
// # JSON Serialization
//
// Socket payloads use camelCase json tags:
//
//	type RoomPositionRequest struct {
//	    RoomID      string  `json:"roomId"`
//	    X           float64 `json:"x"`
//	    DisplayName string  `json:"displayName"`
//	}
//
// # Validation
//
// Requests follow a Normalize then Validate pattern. Validate returns a slice
// of FieldError which the handler wraps with NewValidationError.
package model
