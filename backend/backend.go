// Package backend defines the capability sets fonthandler requires of a
// persistence backend, plus a small wiring layer for composing
// independently-sourced read, write, and watch capabilities into one
// backend value, so cmd/fontserve and tests don't each reinvent it.
package backend

import (
	"context"

	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/font"
	"github.com/fontserve/fontserve/pattern"
)

// Readable is the minimum capability every backend must provide.
type Readable interface {
	GetGlyph(ctx context.Context, name font.GlyphName) (*font.VariableGlyph, error)
	GetGlobalAxes(ctx context.Context) (font.Axes, error)
	GetGlyphMap(ctx context.Context) (font.GlyphMap, error)
	GetCustomData(ctx context.Context) (font.CustomData, error)
	GetUnitsPerEm(ctx context.Context) (int, error)
	Close() error
}

// Writable extends Readable with mutation. A backend that does not
// implement Writable forces the handler into read-only mode.
type Writable interface {
	Readable
	PutGlyph(ctx context.Context, name font.GlyphName, glyph *font.VariableGlyph, codepoints []int) error
	DeleteGlyph(ctx context.Context, name font.GlyphName) error
	PutGlobalAxes(ctx context.Context, axes font.Axes) error
	PutGlyphMap(ctx context.Context, m font.GlyphMap) error
	PutCustomData(ctx context.Context, cd font.CustomData) error
	PutUnitsPerEm(ctx context.Context, upm int) error
}

// WatchEvent is one element of the external-change stream: either a change
// to apply (restricted to the cached subset by the reconciler), a pattern
// to invalidate and reload, or both. At least one field is non-nil.
type WatchEvent struct {
	Change        *change.Change
	ReloadPattern *pattern.Pattern
}

// Watchable extends Readable with a stream of externally-originated
// changes. WatchExternalChanges returns a channel the caller ranges over;
// the channel is closed when watching stops (error or ctx cancellation).
// The returned error reports only a failure to start watching; a later
// close carries no error.
type Watchable interface {
	Readable
	WatchExternalChanges(ctx context.Context) (<-chan WatchEvent, error)
}

// GlyphsUsedByProvider is the optional capability a backend can expose to
// short-circuit the local Dependency Tracker for reverse-lookup queries.
type GlyphsUsedByProvider interface {
	GetGlyphsUsedBy(ctx context.Context, name font.GlyphName) ([]font.GlyphName, error)
}

// Info describes a composed backend's identity and capabilities, returned
// by the handler's getBackEndInfo remote method.
type Info struct {
	Name     string
	Features map[string]bool
}

// Backend bundles a Readable with whichever optional capabilities it also
// happens to satisfy. fonthandler only ever talks to this type, never to
// the concrete backend implementation, so optional capabilities are
// discovered once at composition time rather than probed with a runtime
// type assertion on every call.
type Backend struct {
	Readable
	name         string
	writable     Writable
	watchable    Watchable
	glyphsUsedBy GlyphsUsedByProvider
}

// Compose builds a Backend named name around read, attaching write, watch,
// and usedBy only when non-nil, so each capability can come from a
// different concrete source (e.g. a read-through cache in front of a
// remote store, with local filesystem watching layered on top).
func Compose(name string, read Readable, write Writable, watch Watchable, usedBy GlyphsUsedByProvider) *Backend {
	return &Backend{
		Readable:     read,
		name:         name,
		writable:     write,
		watchable:    watch,
		glyphsUsedBy: usedBy,
	}
}

// Writable returns the write capability and whether it is present.
func (b *Backend) Writable() (Writable, bool) {
	return b.writable, b.writable != nil
}

// Watchable returns the watch capability and whether it is present.
func (b *Backend) Watchable() (Watchable, bool) {
	return b.watchable, b.watchable != nil
}

// GlyphsUsedBy returns the optional reverse-dependency capability and
// whether it is present.
func (b *Backend) GlyphsUsedBy() (GlyphsUsedByProvider, bool) {
	return b.glyphsUsedBy, b.glyphsUsedBy != nil
}

// Info reports the backend's name and advertised features.
func (b *Backend) Info() Info {
	return Info{
		Name: b.name,
		Features: map[string]bool{
			"glyphs-used-by": b.glyphsUsedBy != nil,
		},
	}
}
