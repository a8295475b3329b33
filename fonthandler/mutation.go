package fonthandler

import (
	"sort"

	"github.com/fontserve/fontserve/font"
)

// mutationTrackingGlyphs wraps a glyph-name→VariableGlyph mapping: it
// tracks which keys were inserted or deleted after it was wrapped, so the
// edit coordinator's commit step can tell a whole-glyph reassignment
// (which needs an explicit cache write) from an in-place mutation of an
// already-cached glyph (whose pointer the cache already holds, per
// font.VariableGlyph's Container implementation reaching into Layers).
//
// It implements change.Container so change.Apply can navigate directly
// into "glyphs/<name>" and beyond.
type mutationTrackingGlyphs struct {
	data        map[font.GlyphName]*font.VariableGlyph
	newKeys     map[font.GlyphName]struct{}
	deletedKeys map[font.GlyphName]struct{}
}

func newMutationTrackingGlyphs(initial map[font.GlyphName]*font.VariableGlyph) *mutationTrackingGlyphs {
	data := make(map[font.GlyphName]*font.VariableGlyph, len(initial))
	for k, v := range initial {
		data[k] = v
	}
	return &mutationTrackingGlyphs{
		data:        data,
		newKeys:     map[font.GlyphName]struct{}{},
		deletedKeys: map[font.GlyphName]struct{}{},
	}
}

// Get satisfies change.Container.
func (g *mutationTrackingGlyphs) Get(key string) (any, bool) {
	v, ok := g.data[key]
	if !ok {
		return nil, false
	}
	return v, true
}

// Set satisfies change.Container: an insert of a key already present does
// nothing to the tracking sets; a fresh key is recorded in newKeys and
// cleared from deletedKeys (a reassignment of a previously deleted key
// un-deletes it).
func (g *mutationTrackingGlyphs) Set(key string, value any) {
	isNew := !g.has(key)
	g.data[key] = coerceGlyph(value)
	if isNew {
		g.newKeys[key] = struct{}{}
		delete(g.deletedKeys, key)
	}
}

// Delete satisfies change.Container: records key in deletedKeys and clears
// it from newKeys.
func (g *mutationTrackingGlyphs) Delete(key string) {
	delete(g.data, key)
	g.deletedKeys[key] = struct{}{}
	delete(g.newKeys, key)
}

// has reports whether key already names a real glyph. A key present in data
// with a nil value is the placeholder prepareRootObject leaves for a name
// that does not yet exist in the backend, and counts as absent: assigning
// it is a creation, not a carry-over of an existing glyph.
func (g *mutationTrackingGlyphs) has(key string) bool {
	v, ok := g.data[key]
	return ok && v != nil
}

// coerceGlyph accepts either an already-typed *font.VariableGlyph (the
// common case: the change's leaf value is a whole glyph) or a bare
// map[string]any (produced when change.Apply auto-creates an intermediate
// container for a brand-new glyph reached via a deep path before any
// top-level Replace has assigned it a value).
func coerceGlyph(value any) *font.VariableGlyph {
	switch v := value.(type) {
	case *font.VariableGlyph:
		return v
	case map[string]any:
		return &font.VariableGlyph{Layers: v}
	case nil:
		return nil
	default:
		return font.NewVariableGlyph()
	}
}

// names returns every glyph name currently present, sorted.
func (g *mutationTrackingGlyphs) names() []font.GlyphName {
	out := make([]font.GlyphName, 0, len(g.data))
	for k := range g.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// isNew reports whether name was (re)assigned after wrap, as opposed to
// being an unmodified glyph carried over from the initial set.
func (g *mutationTrackingGlyphs) isNew(name font.GlyphName) bool {
	_, ok := g.newKeys[name]
	return ok
}

// deletedSorted returns the names deleted after wrap, sorted.
func (g *mutationTrackingGlyphs) deletedSorted() []font.GlyphName {
	out := make([]font.GlyphName, 0, len(g.deletedKeys))
	for k := range g.deletedKeys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
