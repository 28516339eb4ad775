// Package server implements the pay-per-view chat relay: a WebSocket
// gateway that groups client connections into per-session rooms, fans chat
// events out to room members, and proxies message reads and writes to the
// upstream REST backend that owns the message store.
//
// The implementation is organized into specialized files for the room
// registry (hub), connection sessions (client), event dispatch, the backend
// client, configuration, and the HTTP surface to keep the codebase
// maintainable and testable as the project grows.
package server
