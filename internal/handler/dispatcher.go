package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgo/saga/presence/internal/model"
	"github.com/forgo/saga/presence/internal/service"
)

// EventFunc handles one inbound event. The returned value becomes the
// acknowledgement data.
type EventFunc func(ctx context.Context, conn *service.Connection, data json.RawMessage) (interface{}, error)

// Dispatcher routes inbound events by name
type Dispatcher struct {
	handlers map[string]EventFunc
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher that records one span per event
func NewDispatcher(tracer trace.Tracer) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]EventFunc),
		tracer:   tracer,
	}
}

// Handle registers fn for an event name, replacing any earlier registration
func (d *Dispatcher) Handle(event string, fn EventFunc) {
	d.handlers[event] = fn
}

// Events returns the registered event names, sorted
func (d *Dispatcher) Events() []string {
	events := make([]string, 0, len(d.handlers))
	for event := range d.handlers {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// Dispatch runs the handler for frame.Event and builds its acknowledgement.
// Failures are reported in the acknowledgement and never escape.
func (d *Dispatcher) Dispatch(ctx context.Context, conn *service.Connection, frame *Frame) *Ack {
	fn, ok := d.handlers[frame.Event]
	if !ok {
		return NewErrorAck(frame.Ack, model.NewInvalidInputError("unknown event: "+frame.Event))
	}

	ctx, span := d.tracer.Start(ctx, frame.Event,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("presence.event", frame.Event),
			attribute.String("presence.connection_id", conn.ID),
			attribute.Bool("presence.guest", conn.IsGuest()),
		),
	)
	defer span.End()

	data, err := fn(ctx, conn, frame.Data)
	if err != nil {
		ackErr := MapServiceError(err)
		span.SetAttributes(attribute.String("presence.error_code", string(ackErr.Code)))
		if ackErr.Code == model.ErrCodeInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("event failed",
				slog.String("event", frame.Event),
				slog.String("connection_id", conn.ID),
				slog.String("account_id", conn.AccountID),
				slog.String("error", err.Error()),
			)
		}
		return NewErrorAck(frame.Ack, ackErr)
	}

	if data == nil {
		data = Empty{}
	}
	return NewAck(frame.Ack, data)
}

// decode wraps DecodeData so a malformed payload surfaces as invalid input
func decode(data json.RawMessage, v interface{}) error {
	if err := DecodeData(data, v); err != nil {
		return model.NewInvalidInputError("invalid event payload")
	}
	return nil
}
