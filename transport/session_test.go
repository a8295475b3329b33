package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/fontserve/fontserve/backend"
	"github.com/fontserve/fontserve/backend/memory"
	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/font"
	"github.com/fontserve/fontserve/fonthandler"
	"github.com/fontserve/fontserve/pattern"
)

var upgrader = websocket.Upgrader{}

// newSessionTestServer returns the server, a channel yielding the Session
// built for the first client once it dials, and a channel yielding that
// Session's Serve result.
func newSessionTestServer(t *testing.T, h *fonthandler.Handler) (*httptest.Server, <-chan *Session, chan error) {
	t.Helper()
	sessionCh := make(chan *Session, 1)
	done := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := NewSession(wsConn, "client-1")
		sessionCh <- s
		done <- s.Serve(context.Background(), h)
	}))

	return srv, sessionCh, done
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestSessionDeregistersConnectionOnClientClose(t *testing.T) {
	store := memory.New()
	b := backend.Compose("test", store, store, store, store)
	allClosed := make(chan struct{}, 1)
	h, err := fonthandler.New(b, fonthandler.WithAllConnectionsClosedCallback(func(context.Context) error {
		allClosed <- struct{}{}
		return nil
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	require.NoError(t, h.Start(context.Background()))

	srv, sessionCh, done := newSessionTestServer(t, h)
	defer srv.Close()

	client := dial(t, srv.URL)
	session := <-sessionCh
	_ = client.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not return after client closed")
	}

	select {
	case <-allClosed:
	case <-time.After(time.Second):
		t.Fatal("all-connections-closed callback never fired")
	}

	require.NoError(t, session.Close())
}

func TestSessionDeliversBroadcastToClient(t *testing.T) {
	store := memory.New()
	b := backend.Compose("test", store, store, store, store)
	h, err := fonthandler.New(b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	require.NoError(t, h.Start(context.Background()))

	srv, sessionCh, done := newSessionTestServer(t, h)
	defer srv.Close()
	defer func() { <-done }()

	client := dial(t, srv.URL)
	defer client.Close()
	session := <-sessionCh

	h.SubscribeChanges(session.Connection(), pattern.FromPath(pattern.FromStrings("glyphs", "A")), true)

	c := change.Change{
		Path: pattern.FromStrings("glyphs"),
		Children: []change.Change{
			change.Replace(pattern.FromStrings("A"), font.NewVariableGlyph()),
		},
	}
	require.NoError(t, h.EditIncremental(context.Background(), c, nil))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e envelope
	require.NoError(t, client.ReadJSON(&e))
	require.Equal(t, envelopeExternalChange, e.Type)
	require.True(t, e.Live)
}
