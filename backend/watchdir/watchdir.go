// Package watchdir adds the Watchable capability to any Readable backend
// by watching a directory of on-disk glyph/font files with fsnotify and
// translating filesystem events into reload patterns. It follows the same
// debounce-and-callback shape as a config-file watcher, generalized from
// "reload one file" to "reload the font-relative path a touched file
// corresponds to".
package watchdir

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fontserve/fontserve/backend"
	"github.com/fontserve/fontserve/errors"
	"github.com/fontserve/fontserve/font"
	"github.com/fontserve/fontserve/logging"
	"github.com/fontserve/fontserve/pattern"
)

// DefaultDebounce coalesces bursts of filesystem events (editors routinely
// write a file multiple times in quick succession) into one reload.
const DefaultDebounce = 300 * time.Millisecond

// Watcher wraps a Readable backend, adding Watchable by observing a
// directory tree. A file named "<glyphName>.<ext>" under dir maps to the
// glyph DataKey; any other file maps to a reload of every non-glyph root
// value (axes, glyphMap, customData, unitsPerEm). Cached glyphs are not
// invalidated by such a file.
type Watcher struct {
	backend.Readable

	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]bool // glyph names (or "" for a root-level touch) pending reload
	timer   *time.Timer
	flushCh chan struct{}
}

// Wrap starts watching dir and returns a Watchable backed by read.
func Wrap(read backend.Readable, dir string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "watchdir: create fsnotify watcher")
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watchdir: watch directory %s", dir)
	}

	return &Watcher{
		Readable: read,
		dir:      dir,
		debounce: debounce,
		watcher:  fw,
		pending:  map[string]bool{},
		flushCh:  make(chan struct{}, 1),
	}, nil
}

// WatchExternalChanges satisfies backend.Watchable. Each event carries only
// a ReloadPattern: a bare filesystem touch can't describe the field-level
// diff a Change requires, so the reconciler invalidates and re-fetches
// instead.
func (w *Watcher) WatchExternalChanges(ctx context.Context) (<-chan backend.WatchEvent, error) {
	out := make(chan backend.WatchEvent)
	go w.loop(ctx, out)
	return out, nil
}

func (w *Watcher) loop(ctx context.Context, out chan<- backend.WatchEvent) {
	defer close(out)
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleFlush(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Logger.Errorw("watchdir: fsnotify error", logging.FieldError, err)

		case <-w.flushCh:
			evt := w.drain()
			if evt == nil {
				continue
			}
			select {
			case out <- *evt:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Watcher) scheduleFlush(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[glyphNameForPath(w.dir, path)] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) drain() *backend.WatchEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return nil
	}

	p := pattern.Empty()
	for name := range w.pending {
		if name == "" {
			// A non-glyph file touch invalidates every non-glyph root value.
			p = pattern.Union(p, pattern.FromPath(pattern.FromStrings("axes")))
			p = pattern.Union(p, pattern.FromPath(pattern.FromStrings("glyphMap")))
			p = pattern.Union(p, pattern.FromPath(pattern.FromStrings("customData")))
			p = pattern.Union(p, pattern.FromPath(pattern.FromStrings("unitsPerEm")))
			continue
		}
		p = pattern.Union(p, pattern.FromPath(font.GlyphKey(name).Path()))
	}
	w.pending = map[string]bool{}

	return &backend.WatchEvent{ReloadPattern: &p}
}

// glyphNameForPath maps a touched file back to the glyph name it encodes,
// or "" if it doesn't look like a per-glyph file.
func glyphNameForPath(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	base := filepath.Base(rel)
	ext := filepath.Ext(base)
	if ext == "" {
		return ""
	}
	return strings.TrimSuffix(base, ext)
}

var _ backend.Watchable = (*Watcher)(nil)
