package fonthandler

import (
	"context"
	"sync"

	"github.com/fontserve/fontserve/font"
	"github.com/fontserve/fontserve/logging"
)

// writeTask is one pending backend write: fn performs the write, source is
// the connection whose edit produced it (nil when nothing should be told
// if the write fails — e.g. a write scheduled with no client attached).
type writeTask struct {
	fn     func(ctx context.Context) error
	source *Connection
}

// writeScheduler is a coalescing FIFO write queue: scheduling a key
// already queued replaces its writer in place, leaving its position
// untouched, so a burst of edits to the same glyph collapses into a
// single backend write of the latest value. It runs its own mutex,
// deliberately decoupled from Handler.mu, because a failed write reloads
// data and messages a client from the scheduler's own goroutine, and must
// never risk deadlocking against a caller still holding Handler.mu.
//
// Every failed write reloads the affected key first. If the write had an
// originating connection, that connection alone is told the edit was
// reverted and the scheduler keeps running — the failure is attributed to
// one client's edit, not a backend outage. If the write had no
// originating connection, the scheduler terminates permanently; every
// write still queued at that moment is silently abandoned, and any write
// scheduled afterward short-circuits: it reloads its own key and messages
// its own connection (if any) without ever queuing.
type writeScheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	order   []font.DataKey
	pending map[font.DataKey]writeTask
	dead    bool
	closing bool
	done    chan struct{}

	reload    func(ctx context.Context, key font.DataKey)
	onDegrade func()
}

func newWriteScheduler(reload func(ctx context.Context, key font.DataKey), onDegrade func()) *writeScheduler {
	s := &writeScheduler{
		pending:   map[font.DataKey]writeTask{},
		done:      make(chan struct{}),
		reload:    reload,
		onDegrade: onDegrade,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// start launches the scheduler's single consumer goroutine. It runs until
// ctx is done, stop is called, or the scheduler terminates from a write
// failure with no originating connection.
func (s *writeScheduler) start(ctx context.Context) {
	go s.run(ctx)
}

const writeFailureTitle = "The data could not be saved."

func revertedMessage(detail string) string {
	return "The edit has been reverted.\n\n" + detail
}

// schedule enqueues fn to write key's current value, replacing any writer
// already queued for key without changing its position. Once the
// scheduler has terminated, schedule degrades to the same immediate
// reload-and-notify sequence a failed in-flight write would have
// triggered.
func (s *writeScheduler) schedule(ctx context.Context, key font.DataKey, fn func(ctx context.Context) error, source *Connection) {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		s.reload(ctx, key)
		notifySource(ctx, source, revertedMessage(
			"The Fontra server got itself into trouble, please contact an admin."))
		return
	}
	if s.closing {
		s.mu.Unlock()
		return
	}
	if _, exists := s.pending[key]; !exists {
		s.order = append(s.order, key)
	}
	s.pending[key] = writeTask{fn: fn, source: source}
	s.cond.Signal()
	s.mu.Unlock()
}

// stop requests ordinary shutdown (Handler.Close): no further schedule
// calls are accepted, but every write already queued is still processed
// before the consumer goroutine exits. A scheduler already dead from a
// write failure has nothing to drain.
func (s *writeScheduler) stop() {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.done
}

func (s *writeScheduler) run(ctx context.Context) {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.order) == 0 && !s.closing {
			s.cond.Wait()
		}
		if len(s.order) == 0 {
			// closing with nothing left queued: drained, stop.
			s.mu.Unlock()
			return
		}
		key := s.order[0]
		s.order = s.order[1:]
		task := s.pending[key]
		delete(s.pending, key)
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		if err := task.fn(ctx); err != nil {
			logging.Logger.Errorw("write to backend failed", logging.FieldDataKey, key.String(), logging.FieldError, err)
			s.reload(ctx, key)
			if task.source != nil {
				notifySource(ctx, task.source, revertedMessage(err.Error()))
				continue
			}
			s.mu.Lock()
			s.dead = true
			s.order = nil
			s.pending = map[font.DataKey]writeTask{}
			s.mu.Unlock()
			if s.onDegrade != nil {
				s.onDegrade()
			}
			return
		}
	}
}

func notifySource(ctx context.Context, source *Connection, body string) {
	if source == nil {
		return
	}
	if err := source.Proxy.MessageFromServer(ctx, writeFailureTitle, body); err != nil {
		logging.Logger.Errorw("message-from-server delivery failed",
			logging.FieldClientUUID, source.ClientUUID, logging.FieldError, err)
	}
}
