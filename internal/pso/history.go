package pso

import "rdpso/simulator/internal/space"

// History is a fixed capacity ring buffer of positions. Pushing past capacity
// evicts the oldest entry.
type History struct {
	entries []space.Vector
	next    int
	full    bool
}

// NewHistory allocates a buffer holding up to capacity positions.
func NewHistory(capacity int) *History {
	if capacity < 0 {
		capacity = 0
	}
	return &History{entries: make([]space.Vector, capacity)}
}

// Cap returns the buffer capacity.
func (h *History) Cap() int { return len(h.entries) }

// Len returns how many positions are stored.
func (h *History) Len() int {
	if h.full {
		return len(h.entries)
	}
	return h.next
}

// Push records a position.
func (h *History) Push(v space.Vector) {
	if len(h.entries) == 0 {
		return
	}
	h.entries[h.next] = v
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
}

// Latest returns the most recent position.
func (h *History) Latest() (space.Vector, bool) {
	if h.Len() == 0 {
		return space.Vector{}, false
	}
	idx := (h.next - 1 + len(h.entries)) % len(h.entries)
	return h.entries[idx], true
}

// Positions copies the stored positions ordered oldest to newest.
func (h *History) Positions() []space.Vector {
	n := h.Len()
	out := make([]space.Vector, 0, n)
	start := 0
	if h.full {
		start = h.next
	}
	for i := 0; i < n; i++ {
		out = append(out, h.entries[(start+i)%len(h.entries)])
	}
	return out
}
