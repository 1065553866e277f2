package bus

import (
	"context"
	"sync"
	"time"
)

// Latest holds the most recently offered value and hands it to a consumer
// at most once per interval. Intermediate values are overwritten.
type Latest[T any] struct {
	mu    sync.Mutex
	v     T
	dirty bool
	wake  chan struct{}
}

// NewLatest creates an empty Latest.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{wake: make(chan struct{}, 1)}
}

// Offer replaces the pending value. It never blocks.
func (l *Latest[T]) Offer(v T) {
	l.mu.Lock()
	l.v = v
	l.dirty = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run calls fn with the pending value whenever one exists, spacing calls at
// least interval apart. Blocks until ctx is cancelled.
func (l *Latest[T]) Run(ctx context.Context, interval time.Duration, fn func(T)) {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}

		if wait := interval - time.Since(last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		l.mu.Lock()
		v, ok := l.v, l.dirty
		l.dirty = false
		l.mu.Unlock()

		if ok {
			fn(v)
			last = time.Now()
		}
	}
}
