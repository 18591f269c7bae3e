// Package server implements the real-time connection gateway: WebSocket
// accept with a connection limit, per-connection pumps, frame routing,
// topic and room fan-out, heartbeats, and the HTTP surface around them.
//
// The implementation is organized into specialized files for the registry,
// indices, router, heartbeat monitor, publisher, and HTTP handlers.
package server
