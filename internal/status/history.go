package status

// history is a FIFO-capped slice; the oldest entries are dropped first.
type history[T any] struct {
	items    []T
	capacity int
}

func newHistory[T any](capacity int) history[T] {
	return history[T]{items: make([]T, 0, capacity), capacity: capacity}
}

func (h *history[T]) push(v T) {
	h.items = append(h.items, v)
	if over := len(h.items) - h.capacity; over > 0 {
		n := copy(h.items, h.items[over:])
		clear(h.items[n:])
		h.items = h.items[:n]
	}
}

func (h *history[T]) snapshot() []T {
	out := make([]T, len(h.items))
	copy(out, h.items)
	return out
}

func (h *history[T]) len() int {
	return len(h.items)
}
