package transport

import (
	"context"
	"sync"

	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/errors"
	"github.com/fontserve/fontserve/fonthandler"
	"github.com/fontserve/fontserve/pattern"
)

var _ fonthandler.Proxy = (*WSProxy)(nil)

// WSProxy implements fonthandler.Proxy by writing wire envelopes to a Conn.
// fonthandler makes Proxy calls from several goroutines (broadcast, reload,
// a write's revert notification), so concurrent calls against the same
// connection are expected; writeMu
// serializes them the way a single websocket connection requires (gorilla
// does not allow concurrent writers).
type WSProxy struct {
	writeMu sync.Mutex
	conn    Conn
}

// NewWSProxy wraps conn as a fonthandler.Proxy.
func NewWSProxy(conn Conn) *WSProxy {
	return &WSProxy{conn: conn}
}

func (p *WSProxy) write(e envelope) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.WriteJSON(e); err != nil {
		return errors.Wrapf(err, "transport: write %s envelope", e.Type)
	}
	return nil
}

// ExternalChange is the externalChange client-proxy method.
func (p *WSProxy) ExternalChange(_ context.Context, c change.Change, isLive bool) error {
	return p.write(envelope{
		Type:   envelopeExternalChange,
		Change: toWireChange(c),
		Live:   isLive,
	})
}

// ReloadData is the reloadData client-proxy method.
func (p *WSProxy) ReloadData(_ context.Context, pat pattern.Pattern) error {
	return p.write(envelope{
		Type:    envelopeReloadData,
		Pattern: toWirePattern(pat),
	})
}

// MessageFromServer is the messageFromServer client-proxy method.
func (p *WSProxy) MessageFromServer(_ context.Context, title, body string) error {
	return p.write(envelope{
		Type:  envelopeMessageFromServer,
		Title: title,
		Body:  body,
	})
}
