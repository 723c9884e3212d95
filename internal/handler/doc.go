// Package handler is the transport edge of the presence server.
//
// Clients hold one websocket per session at GET /v1/socket. Every inbound
// text frame names an event and, optionally, an ack id:
//
//	{"event": "room.enter", "ack": "17", "data": {"roomId": "plaza", "x": 4, "y": 2}}
//
// The Dispatcher routes the event to a registered EventFunc and, when an ack
// id was given, the socket answers with exactly one acknowledgement:
//
//	{"ack": "17", "success": true, "data": {"existingOccupants": []}}
//	{"ack": "18", "success": false, "code": "conflict", "error": "Layer is full"}
//
// Server initiated pushes carry an event name and data but never an ack id.
//
// # Handler Pattern
//
//   - RoomHandler and LayerHandler register their events with Register(d)
//   - Room payloads are normalized and validated before the service call;
//     layer.create and layer.update are validated by the service after its
//     admin check
//   - MapServiceError turns service errors into acknowledgement errors
//
// A failed event never closes the connection. Only transport failures, the
// pong deadline or server shutdown end it, and every exit path runs the same
// disconnect cleanup.
//
// HealthHandler serves the plain HTTP operational endpoints.
package handler
