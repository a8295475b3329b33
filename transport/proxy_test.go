package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/font"
	"github.com/fontserve/fontserve/pattern"
)

func TestWSProxyExternalChangeDeliversDecodableEnvelope(t *testing.T) {
	client, server := connPair()
	defer client.Close()
	defer server.Close()

	p := NewWSProxy(server)
	c := change.Replace(pattern.FromStrings("glyphs", "A"), font.NewVariableGlyph())
	require.NoError(t, p.ExternalChange(context.Background(), c, true))

	var e envelope
	require.NoError(t, client.ReadJSON(&e))
	assert.Equal(t, envelopeExternalChange, e.Type)
	assert.True(t, e.Live)
	require.NotNil(t, e.Change)
	assert.Equal(t, change.OpReplace, e.Change.Op)
}

func TestWSProxyReloadDataDeliversPattern(t *testing.T) {
	client, server := connPair()
	defer client.Close()
	defer server.Close()

	p := NewWSProxy(server)
	pat := pattern.FromPath(pattern.FromStrings("glyphs", "A"))
	require.NoError(t, p.ReloadData(context.Background(), pat))

	var e envelope
	require.NoError(t, client.ReadJSON(&e))
	assert.Equal(t, envelopeReloadData, e.Type)
	assert.True(t, pattern.Contains(fromWirePattern(e.Pattern), pattern.FromStrings("glyphs", "A")))
}

func TestWSProxyMessageFromServerDeliversTitleAndBody(t *testing.T) {
	client, server := connPair()
	defer client.Close()
	defer server.Close()

	p := NewWSProxy(server)
	require.NoError(t, p.MessageFromServer(context.Background(), "write failed", "reverted"))

	var e envelope
	require.NoError(t, client.ReadJSON(&e))
	assert.Equal(t, envelopeMessageFromServer, e.Type)
	assert.Equal(t, "write failed", e.Title)
	assert.Equal(t, "reverted", e.Body)
}

func TestWSProxyClosedConnectionReturnsError(t *testing.T) {
	_, server := connPair()
	require.NoError(t, server.Close())

	p := NewWSProxy(server)
	err := p.MessageFromServer(context.Background(), "t", "b")
	assert.Error(t, err)
}
