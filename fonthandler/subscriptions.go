package fonthandler

import (
	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/pattern"
)

// subscriptionRegistry holds the per-connection live and committed
// subscription patterns. Both tiers default to the empty pattern (matches
// nothing). Callers hold Handler.mu while using this type; it does no
// locking of its own.
type subscriptionRegistry struct {
	live      map[*Connection]pattern.Pattern
	committed map[*Connection]pattern.Pattern
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		live:      map[*Connection]pattern.Pattern{},
		committed: map[*Connection]pattern.Pattern{},
	}
}

func (r *subscriptionRegistry) tier(c *Connection, live bool) map[*Connection]pattern.Pattern {
	if live {
		return r.live
	}
	return r.committed
}

// subscribe unions p into the connection's stored pattern for the given
// tier.
func (r *subscriptionRegistry) subscribe(c *Connection, p pattern.Pattern, live bool) {
	m := r.tier(c, live)
	m[c] = pattern.Union(m[c], p)
}

// unsubscribe carves p out of the connection's stored pattern.
func (r *subscriptionRegistry) unsubscribe(c *Connection, p pattern.Pattern, live bool) {
	m := r.tier(c, live)
	m[c] = pattern.Difference(m[c], p)
}

// combined returns the union of both tiers for c, the pattern used to
// decide whether a reload notification is relevant to this connection.
func (r *subscriptionRegistry) combined(c *Connection) pattern.Pattern {
	return pattern.Union(r.live[c], r.committed[c])
}

// matches reports whether c should hear about a change: for a live change
// only the live tier is consulted, otherwise both tiers are.
func (r *subscriptionRegistry) matches(c *Connection, chg change.Change, isLive bool) bool {
	if change.Match(chg, r.live[c]) {
		return true
	}
	if isLive {
		return false
	}
	return change.Match(chg, r.committed[c])
}

// remove drops all subscription state for c, called when the connection
// leaves.
func (r *subscriptionRegistry) remove(c *Connection) {
	delete(r.live, c)
	delete(r.committed, c)
}
