package dispatch

import "sync"

// ring is a fixed-capacity FIFO of recently dispatched events. Once full,
// each append evicts the oldest entry.
type ring struct {
	mu    sync.Mutex
	items []any
	cap   int
}

const defaultRingCapacity = 50

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &ring{cap: capacity}
}

func (r *ring) add(item any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == r.cap {
		copy(r.items, r.items[1:])
		r.items[len(r.items)-1] = item
		return
	}
	r.items = append(r.items, item)
}

// snapshot returns the buffered items oldest first.
func (r *ring) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.items))
	copy(out, r.items)
	return out
}
