package model

import (
	"strings"
	"time"
)

const (
	// EmoteFreshnessWindow is how long an emote is replayed to newcomers
	EmoteFreshnessWindow = 4200 * time.Millisecond

	MaxDisplayNameLength = 32
	MaxEmoteLength       = 64
)

// RoomPresence is what the room registry stores for one connection
type RoomPresence struct {
	X           float64
	Y           float64
	AvatarRef   string
	DisplayName string
	Emote       string
	EmoteAt     time.Time
}

// FreshEmote returns the emote if it was set less than window before now
func (p RoomPresence) FreshEmote(now time.Time, window time.Duration) (string, bool) {
	if p.Emote == "" || p.EmoteAt.IsZero() {
		return "", false
	}
	if now.Sub(p.EmoteAt) >= window {
		return "", false
	}
	return p.Emote, true
}

// LayerPresence marks membership in a layer; it carries nothing else
type LayerPresence struct{}

// Occupant is one entry of a room snapshot
type Occupant struct {
	ConnectionID string  `json:"connectionId"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	AvatarRef    string  `json:"avatarRef"`
	DisplayName  string  `json:"displayName"`
	Emote        string  `json:"emote,omitempty"`
}

// RoomPositionRequest is the payload of room.enter and room.move
type RoomPositionRequest struct {
	RoomID      string  `json:"roomId"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	AvatarRef   string  `json:"avatarRef"`
	DisplayName string  `json:"displayName"`
}

// Normalize trims identifiers and caps the display name
func (r *RoomPositionRequest) Normalize() {
	r.RoomID = strings.TrimSpace(r.RoomID)
	r.DisplayName = truncate(strings.TrimSpace(r.DisplayName), MaxDisplayNameLength)
}

// Validate validates the request. Positions are opaque and never checked.
func (r *RoomPositionRequest) Validate() []FieldError {
	var errors []FieldError
	if r.RoomID == "" {
		errors = append(errors, FieldError{Field: "roomId", Message: "roomId is required"})
	}
	return errors
}

// Presence converts the request to the registry payload
func (r *RoomPositionRequest) Presence() RoomPresence {
	return RoomPresence{
		X:           r.X,
		Y:           r.Y,
		AvatarRef:   r.AvatarRef,
		DisplayName: r.DisplayName,
	}
}

// RoomEmoteRequest is the payload of room.emote
type RoomEmoteRequest struct {
	RoomID      string  `json:"roomId"`
	Emote       string  `json:"emote"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	AvatarRef   string  `json:"avatarRef"`
	DisplayName string  `json:"displayName"`
}

// Normalize trims identifiers and caps free text
func (r *RoomEmoteRequest) Normalize() {
	r.RoomID = strings.TrimSpace(r.RoomID)
	r.Emote = truncate(strings.TrimSpace(r.Emote), MaxEmoteLength)
	r.DisplayName = truncate(strings.TrimSpace(r.DisplayName), MaxDisplayNameLength)
}

// Validate validates the request
func (r *RoomEmoteRequest) Validate() []FieldError {
	var errors []FieldError
	if r.RoomID == "" {
		errors = append(errors, FieldError{Field: "roomId", Message: "roomId is required"})
	}
	if r.Emote == "" {
		errors = append(errors, FieldError{Field: "emote", Message: "emote is required"})
	}
	return errors
}

// RoomLeaveRequest is the payload of room.leave
type RoomLeaveRequest struct {
	RoomID string `json:"roomId"`
}

// Normalize trims the room id so it matches the id stored on enter
func (r *RoomLeaveRequest) Normalize() {
	r.RoomID = strings.TrimSpace(r.RoomID)
}

// Validate validates the request
func (r *RoomLeaveRequest) Validate() []FieldError {
	if r.RoomID == "" {
		return []FieldError{{Field: "roomId", Message: "roomId is required"}}
	}
	return nil
}

// RoomEnterResponse is the acknowledgement data of room.enter
type RoomEnterResponse struct {
	ExistingOccupants []Occupant `json:"existingOccupants"`
}

// RoomPresenceEvent is pushed as room.entered, room.moved and room.emoted
type RoomPresenceEvent struct {
	ConnectionID string  `json:"connectionId"`
	RoomID       string  `json:"roomId"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	AvatarRef    string  `json:"avatarRef"`
	DisplayName  string  `json:"displayName"`
	Emote        string  `json:"emote,omitempty"`
}

// RoomLeftEvent is pushed as room.left
type RoomLeftEvent struct {
	ConnectionID string `json:"connectionId"`
	RoomID       string `json:"roomId"`
}

// ConnectionReadyEvent is pushed once after the socket upgrade
type ConnectionReadyEvent struct {
	ConnectionID string  `json:"connectionId"`
	AccountID    *string `json:"accountId"`
}

// PresenceStats summarises live registry state for operators
type PresenceStats struct {
	Connections   int            `json:"connections"`
	Rooms         map[string]int `json:"rooms"`
	Layers        map[string]int `json:"layers"`
	DroppedPushes uint64         `json:"droppedPushes"`
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
