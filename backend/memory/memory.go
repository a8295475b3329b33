// Package memory is an in-memory backend.Backend implementation: a test
// and demo fixture satisfying Readable, Writable, Watchable, and
// GlyphsUsedByProvider, with hooks to inject external changes and simulate
// write failures for exercising fonthandler's failure-recovery paths.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fontserve/fontserve/backend"
	"github.com/fontserve/fontserve/font"
)

// Store is an in-memory font backend. The zero value is not usable; build
// one with New.
type Store struct {
	mu sync.Mutex

	axes       font.Axes
	glyphMap   font.GlyphMap
	customData font.CustomData
	unitsPerEm int
	glyphs     map[font.GlyphName]*font.VariableGlyph

	putGlyphErr map[font.GlyphName]error

	watchCh chan backend.WatchEvent
	closed  bool
}

// New returns an empty Store with unitsPerEm defaulted to 1000.
func New() *Store {
	return &Store{
		glyphMap:   font.GlyphMap{},
		customData: font.CustomData{},
		unitsPerEm: 1000,
		glyphs:     map[font.GlyphName]*font.VariableGlyph{},
		watchCh:    make(chan backend.WatchEvent, 64),
	}
}

// SeedGlyph installs a glyph directly into the store's backing data,
// bypassing PutGlyph, for test setup.
func (s *Store) SeedGlyph(name font.GlyphName, glyph *font.VariableGlyph, codepoints []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.glyphs[name] = glyph
	s.glyphMap[name] = codepoints
}

// FailNextPut arranges for the next PutGlyph call on name to return err,
// then clears the failure — used to exercise the write-scheduler's
// backend-failure recovery path.
func (s *Store) FailNextPut(name font.GlyphName, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putGlyphErr == nil {
		s.putGlyphErr = map[font.GlyphName]error{}
	}
	s.putGlyphErr[name] = err
}

// PushExternalChange injects a WatchEvent as if it came from outside the
// process — the reconciler under test observes it on the channel returned
// by WatchExternalChanges.
func (s *Store) PushExternalChange(evt backend.WatchEvent) {
	s.watchCh <- evt
}

func (s *Store) GetGlyph(_ context.Context, name font.GlyphName) (*font.VariableGlyph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.glyphs[name]
	if !ok {
		// A missing glyph is not an error: callers distinguish absence
		// from failure by the nil return, not by err.
		return nil, nil
	}
	return g.Clone()
}

func (s *Store) GetGlobalAxes(_ context.Context) (font.Axes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone, err := font.CloneAny(s.axes)
	if err != nil {
		return nil, err
	}
	if clone == nil {
		return nil, nil
	}
	return clone.(font.Axes), nil
}

func (s *Store) GetGlyphMap(_ context.Context) (font.GlyphMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone, err := font.CloneAny(s.glyphMap)
	if err != nil {
		return nil, err
	}
	return clone.(font.GlyphMap), nil
}

func (s *Store) GetCustomData(_ context.Context) (font.CustomData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone, err := font.CloneAny(s.customData)
	if err != nil {
		return nil, err
	}
	return clone.(font.CustomData), nil
}

func (s *Store) GetUnitsPerEm(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unitsPerEm, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.watchCh)
	return nil
}

func (s *Store) PutGlyph(_ context.Context, name font.GlyphName, glyph *font.VariableGlyph, codepoints []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putGlyphErr[name]; err != nil {
		delete(s.putGlyphErr, name)
		return err
	}
	s.glyphs[name] = glyph
	s.glyphMap[name] = codepoints
	return nil
}

func (s *Store) DeleteGlyph(_ context.Context, name font.GlyphName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.glyphs, name)
	delete(s.glyphMap, name)
	return nil
}

func (s *Store) PutGlobalAxes(_ context.Context, axes font.Axes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.axes = axes
	return nil
}

func (s *Store) PutGlyphMap(_ context.Context, m font.GlyphMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.glyphMap = m
	return nil
}

func (s *Store) PutCustomData(_ context.Context, cd font.CustomData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customData = cd
	return nil
}

func (s *Store) PutUnitsPerEm(_ context.Context, upm int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unitsPerEm = upm
	return nil
}

func (s *Store) WatchExternalChanges(ctx context.Context) (<-chan backend.WatchEvent, error) {
	out := make(chan backend.WatchEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-s.watchCh:
				if !ok {
					return
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// GetGlyphsUsedBy walks every stored glyph's component references,
// returning those referencing name. A real backend with an index would do
// this in O(1); this one is a test fixture, so a linear scan is fine.
func (s *Store) GetGlyphsUsedBy(_ context.Context, name font.GlyphName) ([]font.GlyphName, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []font.GlyphName
	for candidate, g := range s.glyphs {
		for _, comp := range g.ComponentNames() {
			if comp == name {
				out = append(out, candidate)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ backend.Readable             = (*Store)(nil)
	_ backend.Writable             = (*Store)(nil)
	_ backend.Watchable            = (*Store)(nil)
	_ backend.GlyphsUsedByProvider = (*Store)(nil)
)
