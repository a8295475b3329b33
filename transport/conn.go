// Package transport provides one concrete client-proxy implementation for
// fonthandler.Proxy, plus the minimal session plumbing needed to keep a
// websocket connection alive long enough to carry it. The package is kept
// deliberately thin — a single real implementation and a single in-memory
// test double.
package transport

import "github.com/gorilla/websocket"

// Conn abstracts the websocket connection fonthandler's Proxy writes
// through. The real implementation is *websocket.Conn, which already
// satisfies this structurally; tests use an in-memory double instead.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// NewUpgrader builds the websocket.Upgrader cmd/fontserve's HTTP handler
// uses to accept client connections. Buffer sizes match gorilla's own
// defaults. CheckOrigin is left nil, so gorilla's default same-origin
// check applies; the configured server.allowed_origins list is not
// consulted.
func NewUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}
