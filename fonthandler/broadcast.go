package fonthandler

import (
	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/logging"
)

// broadcast fans c out to every subscribed connection other than source,
// fire-and-forget: each delivery runs on its own goroutine and its error is
// only logged, never propagated, so a slow or broken client proxy never
// blocks the editor that produced the change. Contrast reloadData, which
// awaits its notifications before returning. It always dispatches on the
// handler's own lifetime context, never the caller's request context,
// since the goroutines it starts outlive this call.
func (h *Handler) broadcast(c change.Change, source *Connection, isLive bool) {
	h.mu.Lock()
	targets := make([]*Connection, 0, len(h.connections))
	for conn := range h.connections {
		if conn == source {
			continue
		}
		if h.subs.matches(conn, c, isLive) {
			targets = append(targets, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range targets {
		conn := conn
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := conn.Proxy.ExternalChange(h.ctx, c, isLive); err != nil {
				logging.Logger.Errorw("external change delivery failed",
					logging.FieldClientUUID, conn.ClientUUID, logging.FieldError, err)
			}
		}()
	}
}
