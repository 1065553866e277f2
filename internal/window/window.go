// Package window provides the bounded price window that feeds every
// indicator calculation. It is a fixed-capacity circular buffer: appending
// to a full window overwrites the oldest sample.
//
// A Window is owned by a single writer (the engine) and is not safe for
// concurrent use on its own.
package window

// DefaultCapacity is the number of samples retained by the engine.
const DefaultCapacity = 50

// Window is a FIFO-bounded buffer of price samples in arrival order.
type Window struct {
	buf  []float64
	pos  int // next write position
	full bool
}

// New creates a window holding at most capacity samples.
// Non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{buf: make([]float64, capacity)}
}

// Append adds a sample at the newest end, evicting the oldest when full.
// Returns true if a sample was evicted.
func (w *Window) Append(price float64) bool {
	evicted := w.full
	w.buf[w.pos] = price
	w.pos = (w.pos + 1) % len(w.buf)
	if w.pos == 0 && !w.full {
		w.full = true
	}
	return evicted
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	if w.full {
		return len(w.buf)
	}
	return w.pos
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Last returns the newest sample. ok is false on an empty window.
func (w *Window) Last() (price float64, ok bool) {
	n := w.Len()
	if n == 0 {
		return 0, false
	}
	return w.buf[w.index(n-1)], true
}

// Values returns a copy of the samples, oldest first.
func (w *Window) Values() []float64 {
	n := w.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = w.buf[w.index(i)]
	}
	return out
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (w *Window) index(logical int) int {
	if w.full {
		return (w.pos + logical) % len(w.buf)
	}
	return logical
}
