// Package discovery polls the upstream discovery source and feeds
// fresh candidates into the backfill queue.
package discovery

import "sync"

// DefaultGateCap bounds the dedup gate's memory.
const DefaultGateCap = 10000

// Gate is a bounded set of previously observed candidate addresses.
// When the set grows past its cap the whole set is cleared rather than
// evicted entry by entry; the one-time burst of reprocessing right
// after a reset is absorbed by the queue's insert-if-absent semantics.
type Gate struct {
	mu   sync.Mutex
	seen map[string]struct{}
	cap  int
}

// NewGate creates a gate with the given cap (DefaultGateCap if <= 0).
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		capacity = DefaultGateCap
	}
	return &Gate{
		seen: make(map[string]struct{}),
		cap:  capacity,
	}
}

// Seen marks the address as observed and reports whether it had been
// observed before. Crossing the cap clears the entire set.
func (g *Gate) Seen(address string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[address]; ok {
		return true
	}

	g.seen[address] = struct{}{}
	if len(g.seen) > g.cap {
		g.seen = make(map[string]struct{})
	}
	return false
}

// Len returns the current set size.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
