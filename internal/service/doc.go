// Package service implements presence for the Saga world server.
//
// Two independent axes track where each live connection is:
//
//   - Rooms: fine-grained spatial partitions (RoomService)
//   - Layers: persistent world shards from the layer directory (LayerService)
//
// Each axis owns a Registry, an in-memory map of group to member connections.
// A connection is in at most one group per axis. Registries are rebuilt empty
// on restart and never shared across processes.
//
// # Fan-out
//
// ConnectionHub tracks live connections and implements Broadcaster. A push is
// encoded once and queued on each recipient's bounded send buffer; full
// buffers and stale connections are skipped.
//
// # Lifecycle
//
// PresenceService creates connections and tears them down on disconnect,
// scanning every room and layer so no group keeps a departed connection.
//
// # Errors
//
// Sentinel errors live in errors.go and are mapped to acknowledgement errors
// by the handler package.
package service
