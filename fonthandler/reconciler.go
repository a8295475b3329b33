package fonthandler

import (
	"context"

	"github.com/fontserve/fontserve/backend"
	"github.com/fontserve/fontserve/logging"
)

// runReconciler consumes the backend's external-change stream for the
// lifetime of ctx; the watcher channel closes when watching stops, which
// ends the loop. Each event is handled independently; an error handling
// one event is logged and the loop continues rather than tearing down the
// watcher.
func (h *Handler) runReconciler(ctx context.Context, watchable backend.Watchable) {
	events, err := watchable.WatchExternalChanges(ctx)
	if err != nil {
		logging.Logger.Errorw("failed to start external change watcher", logging.FieldError, err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.handleWatchEvent(ctx, ev)
		}
	}
}

func (h *Handler) handleWatchEvent(ctx context.Context, ev backend.WatchEvent) {
	if ev.Change != nil {
		applied, ok, err := h.updateLocalAndWrite(ctx, *ev.Change, nil, true)
		if err != nil {
			logging.Logger.Errorw("failed to apply external change", logging.FieldError, err)
		} else if ok {
			h.broadcast(applied, nil, false)
		}
	}
	if ev.ReloadPattern != nil {
		h.reloadData(ctx, *ev.ReloadPattern)
	}
}
