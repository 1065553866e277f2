// Package bus moves accepted signals and state snapshots from the engine to
// its sinks. FanOut serves best-effort sinks (gateway, publisher) where a
// slow consumer loses signals rather than stalling the others. Handoff
// serves sinks that must see every signal (journal, notifier). Latest
// conflates state snapshots.
package bus

import (
	"context"
	"log"
	"sync"
	"time"

	"trading-signalsv1/internal/strategy"
)

// FanOut broadcasts signals from a single input channel to N named output
// channels. If an output channel is full, the signal is dropped for that
// consumer only.
type FanOut struct {
	mu      sync.RWMutex
	outputs []output
	bufSize int

	// OnDrop is called when a signal is dropped for a subscriber.
	OnDrop func(subscriber string)
}

type output struct {
	name string
	ch   chan strategy.Signal
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	if outputBufferSize <= 0 {
		outputBufferSize = 16
	}
	return &FanOut{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new output channel. Subscribe must be
// called before Run.
func (f *FanOut) Subscribe(name string) <-chan strategy.Signal {
	ch := make(chan strategy.Signal, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, output{name: name, ch: ch})
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed, then closes every
// output channel.
func (f *FanOut) Run(ctx context.Context, input <-chan strategy.Signal) {
	defer func() {
		f.mu.RLock()
		for _, o := range f.outputs {
			close(o.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for _, o := range f.outputs {
				select {
				case o.ch <- sig:
				default:
					if f.OnDrop != nil {
						f.OnDrop(o.name)
					} else {
						log.Printf("[bus] subscriber %s full, dropping signal %s", o.name, sig.ID)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat reports saturation of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats returns (length, capacity) for each subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, o := range f.outputs {
		stats[i] = ChannelStat{Name: o.name, Len: len(o.ch), Cap: cap(o.ch)}
	}
	return stats
}

// ReportDepth calls report with every subscriber's queue stats once per
// interval until ctx is cancelled.
func (f *FanOut) ReportDepth(ctx context.Context, interval time.Duration, report func(ChannelStat)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, st := range f.ChannelStats() {
				report(st)
			}
		}
	}
}
