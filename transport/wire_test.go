package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/font"
	"github.com/fontserve/fontserve/pattern"
)

func TestWireChangeRoundTripsThroughJSON(t *testing.T) {
	c := change.Change{
		Path: pattern.FromStrings("glyphs"),
		Children: []change.Change{
			change.Replace(pattern.FromStrings("A"), font.NewVariableGlyph()),
			change.Delete(pattern.Path{pattern.Key("B"), pattern.Index(2)}),
		},
	}

	raw, err := json.Marshal(toWireChange(c))
	require.NoError(t, err)

	var w wireChange
	require.NoError(t, json.Unmarshal(raw, &w))
	got := fromWireChange(&w)

	require.Len(t, got.Children, 2)
	assert.Equal(t, pattern.FromStrings("glyphs"), got.Path)
	assert.Equal(t, change.OpDelete, got.Children[1].Op)
	assert.True(t, got.Children[1].Path[1].IsIndex())
	assert.Equal(t, 2, got.Children[1].Path[1].Index())
}

func TestWirePatternRoundTripsSentinelAndNarrowedChildDistinctly(t *testing.T) {
	wholeGlyph := pattern.FromPath(pattern.FromStrings("glyphs", "A"))
	raw, err := json.Marshal(toWirePattern(wholeGlyph))
	require.NoError(t, err)
	var w wirePattern
	require.NoError(t, json.Unmarshal(raw, &w))
	got := fromWirePattern(w)
	assert.True(t, pattern.Contains(got, pattern.FromStrings("glyphs", "A")))
	assert.False(t, pattern.Contains(got, pattern.FromStrings("glyphs", "B")))

	narrowed := pattern.Pattern{
		pattern.Key("glyphs"): &pattern.Pattern{pattern.Key("A"): nil},
	}
	raw, err = json.Marshal(toWirePattern(narrowed))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &w))
	got = fromWirePattern(w)
	assert.True(t, pattern.Contains(got, pattern.FromStrings("glyphs", "A")))
	assert.False(t, pattern.Contains(got, pattern.FromStrings("glyphs", "B")))
}
