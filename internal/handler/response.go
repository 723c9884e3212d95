package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/forgo/saga/presence/internal/model"
)

// Frame is an inbound socket message. Ack is the client's callback id; when
// it is empty the client does not want an acknowledgement.
type Frame struct {
	Event string          `json:"event"`
	Ack   string          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack answers one inbound frame
type Ack struct {
	Ack     string             `json:"ack"`
	Success bool               `json:"success"`
	Data    interface{}        `json:"data,omitempty"`
	Error   string             `json:"error,omitempty"`
	Code    model.ErrorCode    `json:"code,omitempty"`
	Errors  []model.FieldError `json:"errors,omitempty"`
}

// Empty is the success data of operations with nothing to report
type Empty struct{}

// NewAck builds a successful acknowledgement
func NewAck(ack string, data interface{}) *Ack {
	return &Ack{Ack: ack, Success: true, Data: data}
}

// NewErrorAck builds a failed acknowledgement
func NewErrorAck(ack string, err *model.AckError) *Ack {
	return &Ack{
		Ack:     ack,
		Success: false,
		Error:   err.Message,
		Code:    err.Code,
		Errors:  err.Errors,
	}
}

// DecodeData decodes an event payload. A missing or null payload leaves v
// at its zero value.
func DecodeData(data json.RawMessage, v interface{}) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(trimmed, v)
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
