package bus

import (
	"context"

	"trading-signalsv1/internal/strategy"
)

// Handoff returns a signal callback that queues each signal on ch, blocking
// while ch is full. It gives up only when ctx is done, so a lagging sink
// slows the producer instead of losing signals.
func Handoff(ctx context.Context, ch chan<- strategy.Signal) func(strategy.Signal) {
	return func(sig strategy.Signal) {
		select {
		case ch <- sig:
		case <-ctx.Done():
		}
	}
}
