package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"trading-signalsv1/internal/logger"
	"trading-signalsv1/internal/strategy"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultStateTTL  = 30 * time.Minute
	defaultMaxBuffer = 1000
)

// Cmdable is the subset of the Redis client used by Publisher.
type Cmdable interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
}

// Publisher writes accepted signals and state snapshots to Redis through a
// circuit breaker. Signals rejected while the breaker is open are buffered
// (oldest dropped first) and replayed once it closes.
type Publisher struct {
	client     Cmdable
	cb         *CircuitBreaker
	instrument string
	stateTTL   time.Duration

	mu      sync.Mutex
	pending []strategy.Signal
	maxBuf  int

	// OnError is called for failed writes (optional, for metrics).
	OnError func(err error)
}

// NewPublisher creates a publisher for instrument. stateTTL <= 0 uses 30m.
func NewPublisher(client Cmdable, cb *CircuitBreaker, instrument string, stateTTL time.Duration) *Publisher {
	if stateTTL <= 0 {
		stateTTL = defaultStateTTL
	}
	p := &Publisher{
		client:     client,
		cb:         cb,
		instrument: instrument,
		stateTTL:   stateTTL,
		maxBuf:     defaultMaxBuffer,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go p.flush(context.Background())
		}
	}
	return p
}

// PublishSignal publishes sig as JSON on the instrument's signal channel.
// An open breaker buffers the signal and returns nil.
func (p *Publisher) PublishSignal(ctx context.Context, sig strategy.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	err = p.cb.Execute(func() error {
		return p.client.Publish(ctx, SignalChannel(p.instrument), payload).Err()
	})
	switch {
	case err == ErrCircuitOpen:
		p.buffer(sig)
		return nil
	case err != nil:
		p.reportError(err)
		return fmt.Errorf("publish %s: %w", sig.ID, err)
	}
	return nil
}

// WriteState caches the latest engine snapshot under the state key.
// Snapshots are superseded by the next one, so an open breaker drops them.
func (p *Publisher) WriteState(ctx context.Context, state any) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	err = p.cb.Execute(func() error {
		return p.client.Set(ctx, StateKey(p.instrument), payload, p.stateTTL).Err()
	})
	if err != nil && err != ErrCircuitOpen {
		p.reportError(err)
		return fmt.Errorf("set %s: %w", StateKey(p.instrument), err)
	}
	return err
}

// Run publishes every signal from sigCh until ctx is cancelled or sigCh is
// closed. Each publish carries the signal's trace ID in its context.
func (p *Publisher) Run(ctx context.Context, sigCh <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			sigCtx := logger.SignalContext(ctx, p.instrument, sig.Timestamp)
			if err := p.PublishSignal(sigCtx, sig); err != nil {
				slog.Error("redis publish failed", append(logger.LogWithTrace(sigCtx), slog.Any("error", err))...)
			}
		}
	}
}

// Pending returns the number of buffered signals.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Publisher) buffer(sig strategy.Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) >= p.maxBuf {
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, sig)
}

// flush replays buffered signals in arrival order. Anything that fails is
// put back at the front of the buffer.
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	for i, sig := range batch {
		payload, _ := json.Marshal(sig)
		err := p.cb.Execute(func() error {
			return p.client.Publish(ctx, SignalChannel(p.instrument), payload).Err()
		})
		if err != nil {
			p.mu.Lock()
			p.pending = append(append([]strategy.Signal(nil), batch[i:]...), p.pending...)
			p.mu.Unlock()
			log.Printf("[redis] flush stopped after %d/%d signals: %v", i, len(batch), err)
			return
		}
	}
	log.Printf("[redis] flushed %d buffered signals", len(batch))
}

func (p *Publisher) reportError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}
