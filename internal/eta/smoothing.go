package eta

import "sort"

// history is a fixed-capacity trailing queue of raw ETA values for
// one (vehicle, stop) pair. Pushing past capacity evicts the oldest.
type history struct {
	vals []int
	cap  int
}

func newHistory(capacity int) *history {
	if capacity < 1 {
		capacity = 1
	}
	return &history{vals: make([]int, 0, capacity), cap: capacity}
}

func (h *history) push(v int) {
	if len(h.vals) == h.cap {
		copy(h.vals, h.vals[1:])
		h.vals = h.vals[:len(h.vals)-1]
	}
	h.vals = append(h.vals, v)
}

// median returns the upper median of the stored values.
func (h *history) median() int {
	if len(h.vals) == 0 {
		return 0
	}
	sorted := make([]int, len(h.vals))
	copy(sorted, h.vals)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}

// snapshot returns the queue contents oldest-first.
func (h *history) snapshot() []int {
	out := make([]int, len(h.vals))
	copy(out, h.vals)
	return out
}
