package fonthandler

import (
	"context"

	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/logging"
	"github.com/fontserve/fontserve/pattern"
)

// Proxy is the asynchronous client-proxy contract a transport implements to
// deliver notifications to one connected client. Calls can arrive
// concurrently from several goroutines: broadcast deliveries are
// fire-and-forget goroutines, reloadData runs one goroutine per target and
// waits for them all, and a revert message is sent from the write
// scheduler's goroutine or, once the scheduler has terminated, from the
// goroutine that scheduled the write.
type Proxy interface {
	ExternalChange(ctx context.Context, c change.Change, isLive bool) error
	ReloadData(ctx context.Context, p pattern.Pattern) error
	MessageFromServer(ctx context.Context, title, body string) error
}

// Connection is a single client session: a stable identity plus the proxy
// used to reach it. Connections are compared by pointer identity; the
// connection itself is the set member and map key throughout fonthandler.
type Connection struct {
	ClientUUID string
	Proxy      Proxy
}

// NewConnection builds a Connection. clientUUID should be a fresh UUID per
// session (see cmd/fontserve, which uses github.com/google/uuid).
func NewConnection(clientUUID string, proxy Proxy) *Connection {
	return &Connection{ClientUUID: clientUUID, Proxy: proxy}
}

// AddConnection registers c as live.
func (h *Handler) AddConnection(c *Connection) {
	h.mu.Lock()
	h.connections[c] = struct{}{}
	h.mu.Unlock()
}

// RemoveConnection unregisters c. If the connection set becomes empty and a
// terminal callback is configured, it fires exactly once.
func (h *Handler) RemoveConnection(ctx context.Context, c *Connection) {
	h.mu.Lock()
	delete(h.connections, c)
	h.subs.remove(c)
	empty := len(h.connections) == 0
	h.mu.Unlock()

	if empty && h.allConnectionsClosedCallback != nil {
		if err := h.allConnectionsClosedCallback(ctx); err != nil {
			logging.Logger.Errorw("all-connections-closed callback failed", logging.FieldError, err)
		}
	}
}

// UseConnection is a scoped-acquisition helper: c is added on entry and
// removed on every exit path, normal or exceptional, exactly once.
func (h *Handler) UseConnection(ctx context.Context, c *Connection, fn func() error) error {
	h.AddConnection(c)
	defer h.RemoveConnection(ctx, c)
	return fn()
}
