package fonthandler

import "github.com/fontserve/fontserve/font"

// dependencyTracker is a bidirectional glyph-component index: madeOf maps
// a glyph to the components it references, usedBy is its mirror. Callers
// hold Handler.mu while using this type; it does no locking of its own.
type dependencyTracker struct {
	madeOf map[font.GlyphName]map[font.GlyphName]struct{}
	usedBy map[font.GlyphName]map[font.GlyphName]struct{}
}

func newDependencyTracker() *dependencyTracker {
	return &dependencyTracker{
		madeOf: map[font.GlyphName]map[font.GlyphName]struct{}{},
		usedBy: map[font.GlyphName]map[font.GlyphName]struct{}{},
	}
}

// update reconciles the tracker for glyph g now referencing exactly
// components: drop g from every component it no longer uses, update (or
// clear) g's own made-of entry, then add g to every component it now
// uses.
func (t *dependencyTracker) update(g font.GlyphName, components []font.GlyphName) {
	for c := range t.madeOf[g] {
		if users, ok := t.usedBy[c]; ok {
			delete(users, g)
			if len(users) == 0 {
				delete(t.usedBy, c)
			}
		}
	}

	if len(components) == 0 {
		delete(t.madeOf, g)
	} else {
		set := make(map[font.GlyphName]struct{}, len(components))
		for _, c := range components {
			set[c] = struct{}{}
		}
		t.madeOf[g] = set
	}

	for _, c := range components {
		users, ok := t.usedBy[c]
		if !ok {
			users = map[font.GlyphName]struct{}{}
			t.usedBy[c] = users
		}
		users[g] = struct{}{}
	}
}

// usedByNames returns the names of glyphs that reference name as a
// component, sorted. The getGlyphsUsedBy remote method does not call it:
// that method answers only from the backend's GlyphsUsedByProvider.
func (t *dependencyTracker) usedByNames(name font.GlyphName) []font.GlyphName {
	users := t.usedBy[name]
	if len(users) == 0 {
		return nil
	}
	out := make([]font.GlyphName, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	sortStrings(out)
	return out
}
