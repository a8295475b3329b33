package fonthandler

import (
	"context"
	"sort"

	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/errors"
	"github.com/fontserve/fontserve/font"
	"github.com/fontserve/fontserve/pattern"
)

// rootAssembly is a struct of optional root-value fields plus an
// "assigned" side-channel: each change.Container.Set call records which
// root key it touched, so the commit step knows which roots were
// reassigned wholesale versus merely attached for read access.
type rootAssembly struct {
	axes       *font.Axes
	glyphMap   *font.GlyphMap
	customData *font.CustomData
	unitsPerEm *int
	glyphs     *mutationTrackingGlyphs

	assigned map[string]bool
}

func newRootAssembly() *rootAssembly {
	return &rootAssembly{assigned: map[string]bool{}}
}

// attach loads key's current cached value without marking it assigned,
// prior to the change being applied.
func (r *rootAssembly) attach(key string, value any) {
	switch key {
	case "axes":
		v, _ := value.(font.Axes)
		r.axes = &v
	case "glyphMap":
		v, _ := value.(font.GlyphMap)
		r.glyphMap = &v
	case "customData":
		v, _ := value.(font.CustomData)
		r.customData = &v
	case "unitsPerEm":
		v, _ := value.(int)
		r.unitsPerEm = &v
	}
}

func (r *rootAssembly) attachGlyphs(g *mutationTrackingGlyphs) {
	r.glyphs = g
}

// Get satisfies change.Container, letting change.Apply navigate from the
// root into a specific field (and, for "glyphs", on into a named glyph).
func (r *rootAssembly) Get(key string) (any, bool) {
	switch key {
	case "axes":
		if r.axes == nil {
			return nil, false
		}
		return *r.axes, true
	case "glyphMap":
		if r.glyphMap == nil {
			return nil, false
		}
		return *r.glyphMap, true
	case "customData":
		if r.customData == nil {
			return nil, false
		}
		return *r.customData, true
	case "unitsPerEm":
		if r.unitsPerEm == nil {
			return nil, false
		}
		return *r.unitsPerEm, true
	case "glyphs":
		if r.glyphs == nil {
			return nil, false
		}
		return r.glyphs, true
	default:
		return nil, false
	}
}

// Set satisfies change.Container: a leaf Replace targeting the root itself
// (path length 1) reassigns the whole field and marks it assigned.
func (r *rootAssembly) Set(key string, value any) {
	r.assigned[key] = true
	switch key {
	case "axes":
		v, _ := value.(font.Axes)
		r.axes = &v
	case "glyphMap":
		v, _ := value.(font.GlyphMap)
		r.glyphMap = &v
	case "customData":
		v, _ := value.(font.CustomData)
		r.customData = &v
	case "unitsPerEm":
		v, _ := value.(int)
		r.unitsPerEm = &v
	case "glyphs":
		if g, ok := value.(*mutationTrackingGlyphs); ok {
			r.glyphs = g
		} else if m, ok := value.(map[string]any); ok {
			glyphs := map[font.GlyphName]*font.VariableGlyph{}
			for k, v := range m {
				glyphs[k] = coerceGlyph(v)
			}
			r.glyphs = newMutationTrackingGlyphs(glyphs)
		}
	}
}

func (r *rootAssembly) Delete(key string) {
	r.assigned[key] = true
	switch key {
	case "axes":
		r.axes = nil
	case "glyphMap":
		r.glyphMap = nil
	case "customData":
		r.customData = nil
	case "unitsPerEm":
		r.unitsPerEm = nil
	case "glyphs":
		r.glyphs = nil
	}
}

// sortedAssigned returns the keys Set/Delete touched directly on the
// root, sorted lexically.
func (r *rootAssembly) sortedAssigned() []string {
	out := make([]string, 0, len(r.assigned))
	for k := range r.assigned {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// prepareRootObject builds the sparse root assembly for change c: the set
// of root keys it touches (depth-1 paths), each populated from the cache
// (glyphs individually via getGlyph, everything else via getData) and
// wrapped for assignment tracking.
func (h *Handler) prepareRootObject(ctx context.Context, c change.Change) ([]string, *rootAssembly, error) {
	touchedPaths := change.CollectPaths(c, 1)
	root := newRootAssembly()
	rootKeys := make([]string, 0, len(touchedPaths))

	for _, p := range touchedPaths {
		if len(p) == 0 {
			continue
		}
		key := p[0].String()
		rootKeys = append(rootKeys, key)

		if key == "glyphs" {
			names := glyphNamesTouched(c)
			glyphs := map[font.GlyphName]*font.VariableGlyph{}
			for _, name := range names {
				g, err := h.getGlyph(ctx, name)
				if err != nil {
					return nil, nil, err
				}
				glyphs[name] = g
			}
			root.attachGlyphs(newMutationTrackingGlyphs(glyphs))
			continue
		}

		value, err := h.getData(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		root.attach(key, value)
	}

	return rootKeys, root, nil
}

func glyphNamesTouched(c change.Change) []font.GlyphName {
	var names []font.GlyphName
	for _, p := range change.CollectPaths(c, 2) {
		if len(p) < 2 || p[0].String() != "glyphs" {
			continue
		}
		names = append(names, p[1].String())
	}
	return names
}

// EditIncremental broadcasts a live, in-progress edit to subscribers on
// the live tier. It never touches the cache or the write queue.
func (h *Handler) EditIncremental(_ context.Context, liveChange change.Change, conn *Connection) error {
	h.broadcast(liveChange, conn, true)
	return nil
}

// EditFinal commits a finished edit: it runs the update pipeline and, if
// broadcast is requested, notifies committed-tier subscribers once the
// cache reflects the change.
func (h *Handler) EditFinal(ctx context.Context, finalChange, rollback change.Change, label string, doBroadcast bool, conn *Connection) error {
	_ = rollback // no server-side history; kept for call-site API parity
	_ = label
	applied, _, err := h.updateLocalAndWrite(ctx, finalChange, conn, false)
	if err != nil {
		return err
	}
	if doBroadcast {
		h.broadcast(applied, conn, false)
	}
	return nil
}

// updateLocalAndWrite is the update pipeline shared by EditFinal and the
// external-change reconciler. When external is true (the change
// originated from the backend watcher) it is first restricted to the
// locally-cached pattern; ok reports whether anything survived that
// restriction (always true for non-external calls).
func (h *Handler) updateLocalAndWrite(ctx context.Context, c change.Change, source *Connection, external bool) (change.Change, bool, error) {
	if external {
		h.mu.Lock()
		localPattern := h.localDataPatternLocked()
		h.mu.Unlock()

		filtered, ok := change.Filter(c, localPattern)
		if !ok {
			return change.Change{}, false, nil
		}
		c = filtered
	}

	rootKeys, root, err := h.prepareRootObject(ctx, c)
	if err != nil {
		return change.Change{}, false, errors.Wrap(err, "fonthandler: prepare root object")
	}

	if err := change.Apply(root, c); err != nil {
		return change.Change{}, false, errors.Wrap(err, "fonthandler: apply change")
	}

	h.mu.Lock()
	writeEnabled := !external && !h.readOnly && !h.degraded
	h.mu.Unlock()
	if err := h.commit(ctx, rootKeys, root, source, writeEnabled); err != nil {
		return change.Change{}, false, err
	}

	return c, true, nil
}

// commit writes the assembly back to the cache in a deterministic order:
// originally touched root keys, then the roots the change assigned to,
// sorted. Duplicates between the two lists are processed twice, which is
// harmless because both the cache write and the scheduler enqueue are
// idempotent/coalescing.
func (h *Handler) commit(ctx context.Context, touchedRootKeys []string, root *rootAssembly, source *Connection, writeEnabled bool) error {
	order := make([]string, 0, len(touchedRootKeys)+len(root.assigned))
	order = append(order, touchedRootKeys...)
	order = append(order, root.sortedAssigned()...)

	for _, rootKey := range order {
		if rootKey == "glyphs" {
			if err := h.commitGlyphs(ctx, root.glyphs, source, writeEnabled); err != nil {
				return err
			}
			continue
		}
		if err := h.commitRoot(ctx, rootKey, root, source, writeEnabled); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) commitGlyphs(ctx context.Context, glyphs *mutationTrackingGlyphs, source *Connection, writeEnabled bool) error {
	if glyphs == nil {
		return nil
	}

	var glyphMap font.GlyphMap
	if gm, err := h.getData(ctx, "glyphMap"); err == nil {
		glyphMap, _ = gm.(font.GlyphMap)
	}

	for _, name := range glyphs.names() {
		glyph, _ := glyphs.Get(name)
		g, _ := glyph.(*font.VariableGlyph)
		writeKey := font.GlyphKey(name)

		h.mu.Lock()
		if glyphs.isNew(name) {
			h.cache.insert(writeKey, g)
		}
		if g != nil {
			h.deps.update(name, g.ComponentNames())
		}
		h.mu.Unlock()

		if !writeEnabled {
			continue
		}
		writable, ok := h.backend.Writable()
		if !ok {
			continue
		}
		copyGlyph, err := g.Clone()
		if err != nil {
			return errors.Wrapf(err, "fonthandler: clone glyph %q for write", name)
		}
		codepoints := glyphMap[name]
		h.scheduler.schedule(ctx, writeKey, func(ctx context.Context) error {
			return writable.PutGlyph(ctx, name, copyGlyph, codepoints)
		}, source)
	}

	for _, name := range glyphs.deletedSorted() {
		writeKey := font.GlyphKey(name)
		h.mu.Lock()
		h.cache.remove(writeKey)
		h.mu.Unlock()

		if !writeEnabled {
			continue
		}
		writable, ok := h.backend.Writable()
		if !ok {
			continue
		}
		h.scheduler.schedule(ctx, writeKey, func(ctx context.Context) error {
			return writable.DeleteGlyph(ctx, name)
		}, source)
	}

	return nil
}

func (h *Handler) commitRoot(ctx context.Context, rootKey string, root *rootAssembly, source *Connection, writeEnabled bool) error {
	dataKey := font.RootKey(rootKey)

	if root.assigned[rootKey] {
		value, _ := root.Get(rootKey)
		h.mu.Lock()
		h.cache.insert(dataKey, value)
		h.mu.Unlock()
	}

	if !writeEnabled {
		return nil
	}
	if _, ok := h.backend.Writable(); !ok {
		return nil
	}

	h.mu.Lock()
	current, _ := h.cache.get(dataKey)
	h.mu.Unlock()

	valueCopy, err := font.CloneAny(current)
	if err != nil {
		return errors.Wrapf(err, "fonthandler: clone %s for write", rootKey)
	}
	h.scheduler.schedule(ctx, dataKey, func(ctx context.Context) error {
		return h.putRootData(ctx, rootKey, valueCopy)
	}, source)
	return nil
}

// localDataPatternLocked derives the pattern covering every DataKey
// currently in the cache. Callers must hold h.mu.
func (h *Handler) localDataPatternLocked() pattern.Pattern {
	out := pattern.Empty()
	for _, k := range h.cache.keys() {
		out = pattern.Union(out, pattern.FromPath(k.Path()))
	}
	return out
}
