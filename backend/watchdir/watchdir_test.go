package watchdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fontserve/fontserve/backend/memory"
	"github.com/fontserve/fontserve/font"
	"github.com/fontserve/fontserve/pattern"
)

func TestWrapDebouncesIntoOneReloadPattern(t *testing.T) {
	dir := t.TempDir()
	store := memory.New()

	w, err := Wrap(store, dir, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := w.WatchExternalChanges(ctx)
	require.NoError(t, err)

	path := filepath.Join(dir, "A.glyph")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("2"), 0o644)) // coalesced by debounce

	select {
	case evt := <-events:
		require.NotNil(t, evt.ReloadPattern)
		assert.True(t, pattern.Contains(*evt.ReloadPattern, font.GlyphKey("A").Path()))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload pattern")
	}
}

func TestGlyphNameForPath(t *testing.T) {
	assert.Equal(t, "A", glyphNameForPath("/fonts/x", "/fonts/x/A.glyph"))
	assert.Equal(t, "", glyphNameForPath("/fonts/x", "/fonts/x/metadata"))
	assert.Equal(t, "", glyphNameForPath("/fonts/x", "/other/A.glyph"))
}
