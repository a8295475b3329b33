package fonthandler

import (
	"context"
	"sync"

	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/pattern"
)

// fakeProxy is an in-memory Proxy recording every call it receives, used
// across this package's tests instead of a real transport.
type fakeProxy struct {
	mu sync.Mutex

	externalChanges []change.Change
	liveFlags       []bool
	reloads         []pattern.Pattern
	messages        []fakeMessage

	onExternalChange func()
	onReloadData     func()
	onMessage        func()
}

type fakeMessage struct {
	title string
	body  string
}

func (f *fakeProxy) ExternalChange(_ context.Context, c change.Change, isLive bool) error {
	f.mu.Lock()
	f.externalChanges = append(f.externalChanges, c)
	f.liveFlags = append(f.liveFlags, isLive)
	f.mu.Unlock()
	if f.onExternalChange != nil {
		f.onExternalChange()
	}
	return nil
}

func (f *fakeProxy) ReloadData(_ context.Context, p pattern.Pattern) error {
	f.mu.Lock()
	f.reloads = append(f.reloads, p)
	f.mu.Unlock()
	if f.onReloadData != nil {
		f.onReloadData()
	}
	return nil
}

func (f *fakeProxy) MessageFromServer(_ context.Context, title, body string) error {
	f.mu.Lock()
	f.messages = append(f.messages, fakeMessage{title: title, body: body})
	f.mu.Unlock()
	if f.onMessage != nil {
		f.onMessage()
	}
	return nil
}

func (f *fakeProxy) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeProxy) reloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reloads)
}

func (f *fakeProxy) externalChangeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.externalChanges)
}

var _ Proxy = (*fakeProxy)(nil)
