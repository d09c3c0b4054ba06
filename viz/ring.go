package viz

// Ring is a capped FIFO. Pushing onto a full ring evicts the oldest item.
type Ring[T any] struct {
	buf   []T
	start int
	n     int
}

// NewRing creates a ring holding at most capacity items (minimum one).
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, max(capacity, 1))}
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int {
	return r.n
}

// Push appends v, evicting the oldest item when full.
func (r *Ring[T]) Push(v T) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++

		return
	}

	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// At returns the i-th item, oldest first.
func (r *Ring[T]) At(i int) T {
	return r.buf[(r.start+i)%len(r.buf)]
}

// Items copies the contents, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.n)
	for i := range out {
		out[i] = r.At(i)
	}

	return out
}

// Last copies up to n of the newest items, oldest first.
func (r *Ring[T]) Last(n int) []T {
	n = min(max(n, 0), r.n)
	out := make([]T, n)

	for i := range out {
		out[i] = r.At(r.n - n + i)
	}

	return out
}

// Update calls fn on every item in place and drops the ones for which it
// returns false. Order is preserved.
func (r *Ring[T]) Update(fn func(*T) bool) {
	kept := 0

	for i := range r.n {
		idx := (r.start + i) % len(r.buf)
		if !fn(&r.buf[idx]) {
			continue
		}

		r.buf[(r.start+kept)%len(r.buf)] = r.buf[idx]
		kept++
	}

	var zero T
	for i := kept; i < r.n; i++ {
		r.buf[(r.start+i)%len(r.buf)] = zero
	}

	r.n = kept
}

// Clear removes every item.
func (r *Ring[T]) Clear() {
	clear(r.buf)
	r.start, r.n = 0, 0
}
