// Package fonthandler implements a single collaborative editing session
// over one font document: an in-memory cache in front of a backend, a
// subscription/broadcast engine fanning changes out to connected clients,
// a coalescing write scheduler, a reconciler for externally-originated
// changes, and a dependency tracker for glyph components.
package fonthandler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fontserve/fontserve/backend"
	"github.com/fontserve/fontserve/errors"
	"github.com/fontserve/fontserve/font"
	"github.com/fontserve/fontserve/logging"
	"github.com/fontserve/fontserve/pattern"
)

// Status reports the handler's current operating mode: whether it is
// currently accepting writes and whether it has entered the permanently
// degraded state.
type Status struct {
	ReadOnly bool
	Degraded bool
}

// Handler is one collaborative editing session bound to a single backend.
// All mutable state is guarded by mu; the write scheduler and
// external-change reconciler run on their own supervised goroutines.
type Handler struct {
	mu sync.Mutex

	backend *backend.Backend
	cache   *dataCache
	deps    *dependencyTracker
	subs    *subscriptionRegistry

	connections map[*Connection]struct{}
	cacheSize   int

	readOnly    bool
	dummyEditor bool
	degraded    bool

	allConnectionsClosedCallback func(ctx context.Context) error

	scheduler *writeScheduler

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	wg     sync.WaitGroup

	started bool
	closed  bool
}

// Option configures a Handler at construction time.
type Option func(*Handler)

// WithCacheSize overrides the default LRU capacity (entries, not bytes).
func WithCacheSize(maxEntries int) Option {
	return func(h *Handler) { h.cacheSize = maxEntries }
}

// WithReadOnly forces read-only mode even if the backend is writable.
func WithReadOnly(readOnly bool) Option {
	return func(h *Handler) { h.readOnly = readOnly }
}

// WithDummyEditor makes IsReadOnly report false even when the handler is
// read-only, so clients keep editing: edits are then accepted, cached and
// broadcast, and, because the handler is read-only, never written to the
// backend. It does not suppress writes on a handler that is not read-only.
func WithDummyEditor(dummyEditor bool) Option {
	return func(h *Handler) { h.dummyEditor = dummyEditor }
}

// WithAllConnectionsClosedCallback installs the callback fired exactly
// once each time the connection set transitions from non-empty to empty.
func WithAllConnectionsClosedCallback(fn func(ctx context.Context) error) Option {
	return func(h *Handler) { h.allConnectionsClosedCallback = fn }
}

const defaultCacheSize = 2048

// New builds a Handler bound to b. A backend with no Writable capability
// forces read-only mode regardless of WithReadOnly.
func New(b *backend.Backend, opts ...Option) (*Handler, error) {
	h := &Handler{
		backend:     b,
		deps:        newDependencyTracker(),
		subs:        newSubscriptionRegistry(),
		connections: map[*Connection]struct{}{},
		cacheSize:   defaultCacheSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	if _, writable := b.Writable(); !writable {
		h.readOnly = true
	}

	cache, err := newDataCache(h.cacheSize)
	if err != nil {
		return nil, err
	}
	h.cache = cache
	h.scheduler = newWriteScheduler(h.reloadOneKey, h.markDegraded)

	return h, nil
}

// Start launches the write scheduler and, if the backend is watchable, the
// external-change reconciler. Broadcast deliveries run as transient
// fire-and-forget goroutines on top of these two supervised background
// tasks.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return errors.New("fonthandler: already started")
	}
	h.started = true
	h.ctx, h.cancel = context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(h.ctx)
	h.group = group
	h.mu.Unlock()

	h.scheduler.start(h.ctx)

	if watchable, ok := h.backend.Watchable(); ok {
		group.Go(func() error {
			h.runReconciler(groupCtx, watchable)
			return nil
		})
	}

	return nil
}

// Close cancels background tasks, drains the scheduler, and closes the
// backend. Calls after the first are no-ops that return nil.
func (h *Handler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	started := h.started
	group := h.group
	cancel := h.cancel
	h.mu.Unlock()

	if !started {
		return h.backend.Close()
	}

	h.scheduler.stop()
	cancel()
	_ = group.Wait()
	h.wg.Wait()

	return h.backend.Close()
}

// Status reports whether the handler is currently read-only and whether it
// has entered the permanently degraded state.
func (h *Handler) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{ReadOnly: h.readOnly, Degraded: h.degraded}
}

// IsReadOnly is the isReadOnly remote method: true when the handler is
// read-only (WithReadOnly, or a backend without write capability) or
// degraded, unless a dummy editor is configured. A degraded handler
// reports read-only the same as one with no writable backend.
func (h *Handler) IsReadOnly(_ context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return (h.readOnly || h.degraded) && !h.dummyEditor, nil
}

// BackendInfo is the getBackEndInfo remote method.
func (h *Handler) BackendInfo(_ context.Context) (backend.Info, error) {
	return h.backend.Info(), nil
}

// GetGlyph is the getGlyph remote method: returns the cached glyph,
// loading and caching it from the backend on a miss.
func (h *Handler) GetGlyph(ctx context.Context, name font.GlyphName) (*font.VariableGlyph, error) {
	return h.getGlyph(ctx, name)
}

// getGlyph is the internal, lock-respecting counterpart GetGlyph and the
// edit coordinator both use. Backend I/O never runs with mu held: a cache
// miss is checked again after the fetch completes in case a concurrent
// call already populated it, so the second caller's result is discarded
// rather than double-counted against the dependency tracker.
func (h *Handler) getGlyph(ctx context.Context, name font.GlyphName) (*font.VariableGlyph, error) {
	key := font.GlyphKey(name)

	h.mu.Lock()
	if v, ok := h.cache.get(key); ok {
		h.mu.Unlock()
		g, _ := v.(*font.VariableGlyph)
		return g, nil
	}
	h.mu.Unlock()

	g, err := h.backend.GetGlyph(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "fonthandler: get glyph %q", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := h.cache.get(key); ok {
		return v.(*font.VariableGlyph), nil
	}
	h.cache.insert(key, g)
	if g != nil {
		h.deps.update(name, g.ComponentNames())
	}
	return g, nil
}

// getData is the internal getData(key) helper for the four non-glyph root
// values, used by both the remote getters below and the edit coordinator's
// prepareRootObject.
func (h *Handler) getData(ctx context.Context, key string) (any, error) {
	dataKey := font.RootKey(key)

	h.mu.Lock()
	if v, ok := h.cache.get(dataKey); ok {
		h.mu.Unlock()
		return v, nil
	}
	h.mu.Unlock()

	value, err := h.fetchRootData(ctx, key)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := h.cache.get(dataKey); ok {
		return v, nil
	}
	h.cache.insert(dataKey, value)
	return value, nil
}

func (h *Handler) fetchRootData(ctx context.Context, key string) (any, error) {
	switch key {
	case "axes":
		return h.backend.GetGlobalAxes(ctx)
	case "glyphMap":
		return h.backend.GetGlyphMap(ctx)
	case "customData":
		return h.backend.GetCustomData(ctx)
	case "unitsPerEm":
		return h.backend.GetUnitsPerEm(ctx)
	default:
		return nil, errors.Newf("fonthandler: unknown root key %q", key)
	}
}

func (h *Handler) putRootData(ctx context.Context, key string, value any) error {
	writable, ok := h.backend.Writable()
	if !ok {
		return errors.New("fonthandler: backend is not writable")
	}
	switch key {
	case "axes":
		axes, _ := value.(font.Axes)
		return writable.PutGlobalAxes(ctx, axes)
	case "glyphMap":
		gm, _ := value.(font.GlyphMap)
		return writable.PutGlyphMap(ctx, gm)
	case "customData":
		cd, _ := value.(font.CustomData)
		return writable.PutCustomData(ctx, cd)
	case "unitsPerEm":
		upm, _ := value.(int)
		return writable.PutUnitsPerEm(ctx, upm)
	default:
		return errors.Newf("fonthandler: unknown root key %q", key)
	}
}

// GetGlyphMap, GetGlobalAxes, GetUnitsPerEm, and GetCustomData are the
// remaining remote getters, each a thin getData call.
func (h *Handler) GetGlyphMap(ctx context.Context) (font.GlyphMap, error) {
	v, err := h.getData(ctx, "glyphMap")
	if err != nil {
		return nil, err
	}
	gm, _ := v.(font.GlyphMap)
	return gm, nil
}

func (h *Handler) GetGlobalAxes(ctx context.Context) (font.Axes, error) {
	v, err := h.getData(ctx, "axes")
	if err != nil {
		return nil, err
	}
	axes, _ := v.(font.Axes)
	return axes, nil
}

func (h *Handler) GetUnitsPerEm(ctx context.Context) (int, error) {
	v, err := h.getData(ctx, "unitsPerEm")
	if err != nil {
		return 0, err
	}
	upm, _ := v.(int)
	return upm, nil
}

func (h *Handler) GetCustomData(ctx context.Context) (font.CustomData, error) {
	v, err := h.getData(ctx, "customData")
	if err != nil {
		return nil, err
	}
	cd, _ := v.(font.CustomData)
	return cd, nil
}

// GetGlyphsUsedBy is the getGlyphsUsedBy remote method: it delegates to the
// backend's optional reverse-dependency capability if present, otherwise
// returns an empty list. The local dependency tracker is never consulted
// here; it exists to serve a backend implementing that capability, not to
// stand in for one that doesn't.
func (h *Handler) GetGlyphsUsedBy(ctx context.Context, name font.GlyphName) ([]font.GlyphName, error) {
	if provider, ok := h.backend.GlyphsUsedBy(); ok {
		return provider.GetGlyphsUsedBy(ctx, name)
	}
	return nil, nil
}

// SubscribeChanges is the subscribeChanges remote method.
func (h *Handler) SubscribeChanges(c *Connection, p pattern.Pattern, wantLive bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs.subscribe(c, p, wantLive)
}

// UnsubscribeChanges is the unsubscribeChanges remote method.
func (h *Handler) UnsubscribeChanges(c *Connection, p pattern.Pattern, wantLive bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs.unsubscribe(c, p, wantLive)
}

// reloadData invalidates every cache entry reloadPattern selects and
// informs each connection whose combined subscription pattern intersects
// it, awaiting every notification before returning (contrast broadcast,
// which never awaits its deliveries).
func (h *Handler) reloadData(ctx context.Context, reloadPattern pattern.Pattern) {
	h.mu.Lock()
	for _, key := range h.cache.keys() {
		if pattern.Contains(reloadPattern, key.Path()) {
			h.cache.remove(key)
		}
	}

	type target struct {
		conn *Connection
		p    pattern.Pattern
	}
	var targets []target
	for conn := range h.connections {
		combined := h.subs.combined(conn)
		intersection := pattern.Intersect(combined, reloadPattern)
		if len(intersection) > 0 {
			targets = append(targets, target{conn: conn, p: intersection})
		}
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, t := range targets {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.conn.Proxy.ReloadData(ctx, t.p); err != nil {
				logging.Logger.Errorw("reload-data delivery failed",
					logging.FieldClientUUID, t.conn.ClientUUID, logging.FieldError, err)
			}
		}()
	}
	wg.Wait()
}

// reloadOneKey is the write scheduler's reload callback: it rebuilds the
// single-key pattern a failed write invalidates and runs the same
// reload-and-notify path reloadData uses for externally-originated
// invalidations.
func (h *Handler) reloadOneKey(ctx context.Context, key font.DataKey) {
	h.reloadData(ctx, pattern.FromPath(key.Path()))
}

// markDegraded is invoked once, from the scheduler's goroutine, the first
// time an originless write failure permanently halts it.
func (h *Handler) markDegraded() {
	h.mu.Lock()
	h.degraded = true
	h.mu.Unlock()
}
