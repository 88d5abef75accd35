package state

// ring is a fixed-capacity append-only buffer that drops the oldest entry
// when full.
type ring[T any] struct {
	buf   []T
	start int
	count int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	idx := (r.start + r.count) % len(r.buf)
	r.buf[idx] = v
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}
}

// newestFirst returns up to limit entries, most recent first. limit <= 0
// means all.
func (r *ring[T]) newestFirst(limit int) []T {
	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := (r.start + r.count - 1 - i) % len(r.buf)
		out[i] = r.buf[idx]
	}
	return out
}

// update walks entries newest first, calling fn on each until fn reports
// it is done.
func (r *ring[T]) update(fn func(v *T) (done bool)) {
	for i := r.count - 1; i >= 0; i-- {
		idx := (r.start + i) % len(r.buf)
		if fn(&r.buf[idx]) {
			return
		}
	}
}
