package fonthandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fontserve/fontserve/backend"
	"github.com/fontserve/fontserve/backend/memory"
	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/font"
	"github.com/fontserve/fontserve/pattern"
)

func patternForGlyph(name string) pattern.Pattern {
	return pattern.FromPath(pattern.FromStrings("glyphs", name))
}

func TestGetGlyphCachesAfterBackendFetch(t *testing.T) {
	store := memory.New()
	store.SeedGlyph("A", font.NewVariableGlyph(), []int{65})
	h := newTestHandler(t, store)

	g, err := h.GetGlyph(context.Background(), "A")
	require.NoError(t, err)
	require.NotNil(t, g)

	h.mu.Lock()
	_, cached := h.cache.get(font.GlyphKey("A"))
	h.mu.Unlock()
	assert.True(t, cached)
}

func TestGetGlyphMissingReturnsNilWithoutError(t *testing.T) {
	h := newTestHandler(t, memory.New())
	g, err := h.GetGlyph(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestEditFinalWritesThroughToBackendAndCache(t *testing.T) {
	store := memory.New()
	h := newTestHandler(t, store)
	require.NoError(t, h.Start(context.Background()))

	c := change.Change{
		Path: pattern.FromStrings("glyphs"),
		Children: []change.Change{
			change.Replace(pattern.FromStrings("A"), font.NewVariableGlyph()),
		},
	}
	require.NoError(t, h.EditFinal(context.Background(), c, change.Change{}, "add A", true, nil))

	require.Eventually(t, func() bool {
		g, err := store.GetGlyph(context.Background(), "A")
		return err == nil && g != nil
	}, 2*time.Second, 10*time.Millisecond)

	h.mu.Lock()
	_, cached := h.cache.get(font.GlyphKey("A"))
	h.mu.Unlock()
	assert.True(t, cached)
}

func TestEditFinalBroadcastsToCommittedSubscribersNotSource(t *testing.T) {
	h := newTestHandler(t, memory.New())
	require.NoError(t, h.Start(context.Background()))

	editorProxy := &fakeProxy{}
	editor := NewConnection("editor", editorProxy)
	watcherProxy := &fakeProxy{}
	delivered := make(chan struct{})
	watcherProxy.onExternalChange = func() { close(delivered) }
	watcher := NewConnection("watcher", watcherProxy)

	h.AddConnection(editor)
	h.AddConnection(watcher)
	h.SubscribeChanges(watcher, patternForGlyph("A"), false)

	c := change.Change{
		Path: pattern.FromStrings("glyphs"),
		Children: []change.Change{
			change.Replace(pattern.FromStrings("A"), font.NewVariableGlyph()),
		},
	}
	require.NoError(t, h.EditFinal(context.Background(), c, change.Change{}, "add A", true, editor))

	waitFor(t, delivered, "committed-tier broadcast to a subscribed connection")
	assert.Equal(t, 0, editorProxy.externalChangeCount(), "the originating connection must not hear its own edit")
}

func TestEditIncrementalNeverTouchesCacheOrBackend(t *testing.T) {
	store := memory.New()
	h := newTestHandler(t, store)
	require.NoError(t, h.Start(context.Background()))

	watcherProxy := &fakeProxy{}
	delivered := make(chan struct{})
	watcherProxy.onExternalChange = func() { close(delivered) }
	watcher := NewConnection("watcher", watcherProxy)
	h.AddConnection(watcher)
	h.SubscribeChanges(watcher, patternForGlyph("A"), true)

	c := change.Change{
		Path: pattern.FromStrings("glyphs"),
		Children: []change.Change{
			change.Replace(pattern.FromStrings("A"), font.NewVariableGlyph()),
		},
	}
	require.NoError(t, h.EditIncremental(context.Background(), c, nil))
	waitFor(t, delivered, "live broadcast of an incremental edit")

	h.mu.Lock()
	_, cached := h.cache.get(font.GlyphKey("A"))
	h.mu.Unlock()
	assert.False(t, cached)

	g, err := store.GetGlyph(context.Background(), "A")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestReconcilerAppliesExternalChangeRestrictedToCachedSubset(t *testing.T) {
	store := memory.New()
	store.SeedGlyph("A", font.NewVariableGlyph(), nil)
	h := newTestHandler(t, store)

	// Prime the cache for "A" only, so the external change's touch on "B"
	// (never fetched locally) is filtered out by the local-data pattern.
	_, err := h.GetGlyph(context.Background(), "A")
	require.NoError(t, err)

	require.NoError(t, h.Start(context.Background()))

	watcherProxy := &fakeProxy{}
	delivered := make(chan struct{})
	watcherProxy.onExternalChange = func() { close(delivered) }
	watcher := NewConnection("watcher", watcherProxy)
	h.AddConnection(watcher)
	h.SubscribeChanges(watcher, patternForGlyph("A"), false)

	updated := font.NewVariableGlyph()
	updated.Layers["foreground"] = map[string]any{"glyph": map[string]any{}}
	ext := change.Change{
		Path: pattern.FromStrings("glyphs"),
		Children: []change.Change{
			change.Replace(pattern.FromStrings("A"), updated),
			change.Replace(pattern.FromStrings("B"), font.NewVariableGlyph()),
		},
	}
	store.PushExternalChange(backend.WatchEvent{Change: &ext})

	waitFor(t, delivered, "broadcast of the externally-originated change restricted to A")

	h.mu.Lock()
	_, bCached := h.cache.get(font.GlyphKey("B"))
	h.mu.Unlock()
	assert.False(t, bCached, "B was never locally cached, so the external change must not have touched it")
}

func TestIsReadOnlyReflectsBackendAndDegradedState(t *testing.T) {
	h := newTestHandler(t, memory.New())
	readOnly, err := h.IsReadOnly(context.Background())
	require.NoError(t, err)
	assert.False(t, readOnly)

	h.markDegraded()
	readOnly, err = h.IsReadOnly(context.Background())
	require.NoError(t, err)
	assert.True(t, readOnly)
	assert.True(t, h.Status().Degraded)
}

func TestIsReadOnlyForcedByNonWritableBackend(t *testing.T) {
	b := backend.Compose("read-only", memory.New(), nil, nil, nil)
	h, err := New(b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	readOnly, err := h.IsReadOnly(context.Background())
	require.NoError(t, err)
	assert.True(t, readOnly)
}

func TestIsReadOnlyDummyEditorSuppressesReadOnlyReport(t *testing.T) {
	b := backend.Compose("read-only", memory.New(), nil, nil, nil)
	h, err := New(b, WithDummyEditor(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	readOnly, err := h.IsReadOnly(context.Background())
	require.NoError(t, err)
	assert.False(t, readOnly)
}

func TestGetGlyphsUsedByDelegatesToBackendProvider(t *testing.T) {
	store := memory.New()
	base := font.NewVariableGlyph()
	composite := &font.VariableGlyph{Layers: map[string]any{
		"foreground": map[string]any{
			"glyph": map[string]any{
				"components": []any{map[string]any{"name": "base"}},
			},
		},
	}}
	store.SeedGlyph("base", base, nil)
	store.SeedGlyph("composite", composite, nil)
	h := newTestHandler(t, store)

	users, err := h.GetGlyphsUsedBy(context.Background(), "base")
	require.NoError(t, err)
	assert.Equal(t, []string{"composite"}, users)
}

func TestGetGlyphsUsedByReturnsEmptyWithoutBackendProvider(t *testing.T) {
	b := backend.Compose("no-index", memory.New(), nil, nil, nil)
	h, err := New(b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	users, err := h.GetGlyphsUsedBy(context.Background(), "base")
	require.NoError(t, err)
	assert.Nil(t, users, "the local dependency tracker must never be consulted as a fallback")
}

func TestCloseBeforeStartStillClosesBackend(t *testing.T) {
	store := memory.New()
	b := backend.Compose("test", store, store, store, store)
	h, err := New(b)
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close(), "Close must be idempotent")
}
