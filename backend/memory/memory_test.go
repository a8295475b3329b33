package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fontserve/fontserve/backend"
	"github.com/fontserve/fontserve/font"
)

func TestPutThenGetGlyphRoundTrips(t *testing.T) {
	s := New()
	ctx := context.Background()

	g := font.NewVariableGlyph()
	require.NoError(t, s.PutGlyph(ctx, "A", g, []int{65}))

	got, err := s.GetGlyph(ctx, "A")
	require.NoError(t, err)
	assert.NotNil(t, got)

	gm, err := s.GetGlyphMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{65}, gm["A"])
}

func TestGetGlyphMissingReturnsNilWithoutError(t *testing.T) {
	s := New()
	g, err := s.GetGlyph(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestFailNextPutFiresOnceThenClears(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := assert.AnError
	s.FailNextPut("A", boom)

	err := s.PutGlyph(ctx, "A", font.NewVariableGlyph(), nil)
	assert.ErrorIs(t, err, boom)

	err = s.PutGlyph(ctx, "A", font.NewVariableGlyph(), nil)
	assert.NoError(t, err)
}

func TestGetGlyphsUsedByScansComponents(t *testing.T) {
	s := New()
	base := font.NewVariableGlyph()
	composite := &font.VariableGlyph{Layers: map[string]any{
		"foreground": map[string]any{
			"glyph": map[string]any{
				"components": []any{map[string]any{"name": "base"}},
			},
		},
	}}
	s.SeedGlyph("base", base, nil)
	s.SeedGlyph("composite", composite, nil)

	users, err := s.GetGlyphsUsedBy(context.Background(), "base")
	require.NoError(t, err)
	assert.Equal(t, []string{"composite"}, users)
}

func TestWatchExternalChangesDeliversPushedEvents(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.WatchExternalChanges(ctx)
	require.NoError(t, err)

	s.PushExternalChange(backend.WatchEvent{})

	select {
	case evt := <-ch:
		assert.Nil(t, evt.Change)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}
