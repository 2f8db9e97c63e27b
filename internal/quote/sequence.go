package quote

import "sync"

// SlotGuard implements latest-request-wins for a named slot such as a quote's
// discount. Each Begin hands out a larger ticket; a response whose ticket is no
// longer current is discarded instead of applied. The underlying I/O is not
// cancelled.
type SlotGuard struct {
	mu     sync.Mutex
	next   uint64
	latest map[string]uint64
}

// NewSlotGuard returns an empty guard.
func NewSlotGuard() *SlotGuard {
	return &SlotGuard{latest: map[string]uint64{}}
}

// Begin registers a new request for slot and returns its ticket.
func (g *SlotGuard) Begin(slot string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	g.latest[slot] = g.next
	return g.next
}

// IsCurrent reports whether ticket is still the latest for slot.
func (g *SlotGuard) IsCurrent(slot string, ticket uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest[slot] == ticket
}

// Done forgets slot if ticket is still the latest, keeping the map bounded
// by in-flight requests.
func (g *SlotGuard) Done(slot string, ticket uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.latest[slot] == ticket {
		delete(g.latest, slot)
	}
}
