// Package engine is the stateful analysis service for a single instrument.
//
// Each submitted price sample is processed to completion before the next:
// the window is updated, indicators and levels are recomputed from scratch,
// sentiment is derived, the rule policy is evaluated, and any resulting
// signal is offered to the deduplicating stream. Accepted signals are pushed
// to registered callbacks and to the Signals() channel exactly once.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"trading-signalsv1/internal/indicator"
	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/sentiment"
	"trading-signalsv1/internal/strategy"
	"trading-signalsv1/internal/stream"
	"trading-signalsv1/internal/window"
)

// ErrInvalidInput is returned for zero, negative or non-finite prices.
var ErrInvalidInput = errors.New("invalid input")

// State is a consistent snapshot of the engine's pull-side outputs.
type State struct {
	Samples   int                      `json:"samples"`
	LastPrice float64                  `json:"last_price"`
	Technical indicator.TechnicalState `json:"technical"`
	Levels    indicator.Levels         `json:"levels"`
	Sentiment sentiment.Sentiment      `json:"sentiment"`
	Active    *strategy.Signal         `json:"active_signal,omitempty"`
	History   []strategy.Signal        `json:"history"`
	UpdatedAt time.Time                `json:"updated_at"`

	// SignalsAccepted and DuplicatesDropped count stream offers since start.
	SignalsAccepted   uint64 `json:"signals_accepted"`
	DuplicatesDropped uint64 `json:"duplicates_dropped"`
}

// Engine owns the price window and signal stream.
type Engine struct {
	// submitMu serializes whole updates, including notification, so
	// callbacks observe signals in acceptance order.
	submitMu sync.Mutex

	mu        sync.RWMutex
	window    *window.Window
	policy    *strategy.Policy
	stream    *stream.Stream
	technical indicator.TechnicalState
	levels    indicator.Levels
	mood      sentiment.Sentiment
	lastPrice float64
	updatedAt time.Time

	cbMu       sync.RWMutex
	callbacks  []func(strategy.Signal)
	sampleHook []func(State)
	signalCh   chan strategy.Signal

	capacity    int
	historySize int
	granularity time.Duration
	signalBuf   int
	now         func() time.Time
	log         *slog.Logger
	prom        *metrics.Metrics
}

// New creates an engine with the given options applied over the defaults.
func New(opts ...Option) *Engine {
	e := &Engine{
		capacity:    window.DefaultCapacity,
		historySize: stream.DefaultHistorySize,
		granularity: time.Second,
		signalBuf:   64,
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.window = window.New(e.capacity)
	e.stream = stream.New(e.historySize)
	e.policy = strategy.NewPolicy()
	e.signalCh = make(chan strategy.Signal, e.signalBuf)
	e.technical = indicator.Analyze(nil)
	e.mood = sentiment.Estimate(e.technical.Trend, e.technical.RSI)
	return e
}

// OnSignal registers a callback invoked once per accepted signal, after the
// engine state has been updated. Callbacks run on the submitting goroutine
// and must not call SubmitSample.
func (e *Engine) OnSignal(fn func(strategy.Signal)) {
	if fn == nil {
		return
	}
	e.cbMu.Lock()
	e.callbacks = append(e.callbacks, fn)
	e.cbMu.Unlock()
}

// OnSample registers a callback invoked with a fresh snapshot after every
// valid sample, once any accepted signal has been delivered. Callbacks run
// on the submitting goroutine and must not call SubmitSample.
func (e *Engine) OnSample(fn func(State)) {
	if fn == nil {
		return
	}
	e.cbMu.Lock()
	e.sampleHook = append(e.sampleHook, fn)
	e.cbMu.Unlock()
}

// Signals returns the channel of accepted signals. Sends are non-blocking;
// signals are dropped when the channel is full.
func (e *Engine) Signals() <-chan strategy.Signal {
	return e.signalCh
}

// SubmitSample processes a price observed now.
func (e *Engine) SubmitSample(price float64) error {
	return e.SubmitSampleAt(price, e.now())
}

// SubmitSampleAt processes a price observed at ts.
func (e *Engine) SubmitSampleAt(price float64, ts time.Time) error {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		if e.prom != nil {
			e.prom.InvalidSamples.Inc()
		}
		e.log.Warn("rejected price sample", slog.Float64("price", price))
		return fmt.Errorf("%w: price %v must be positive and finite", ErrInvalidInput, price)
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	start := time.Now()
	sig, accepted, evicted := e.update(price, ts)
	defer e.sampled()

	if e.prom != nil {
		e.prom.EvalDur.Observe(time.Since(start).Seconds())
		e.prom.SamplesTotal.Inc()
		e.prom.LastPrice.Set(price)
		if evicted {
			e.prom.WindowEvicted.Inc()
		}
		e.mu.RLock()
		e.prom.RSI.Set(e.technical.RSI)
		e.prom.EMA.Set(e.technical.EMA)
		e.mu.RUnlock()
	}

	if sig == nil {
		return nil
	}
	if !accepted {
		if e.prom != nil {
			e.prom.SignalsDuplicate.Inc()
		}
		e.log.Debug("dropped duplicate signal",
			slog.String("strategy", sig.StrategyName),
			slog.Time("timestamp", sig.Timestamp),
		)
		return nil
	}

	if e.prom != nil {
		e.prom.SignalsAccepted.WithLabelValues(string(sig.Type), sig.StrategyName).Inc()
	}
	e.log.Info("signal accepted",
		slog.String("id", sig.ID),
		slog.String("type", string(sig.Type)),
		slog.String("strategy", sig.StrategyName),
		slog.Float64("entry", sig.Entry),
		slog.Float64("stop_loss", sig.StopLoss),
		slog.Float64("take_profit", sig.TakeProfit),
		slog.String("reason", sig.Reason),
	)
	e.notify(*sig)
	return nil
}

// update runs one full evaluation under the state lock.
func (e *Engine) update(price float64, ts time.Time) (sig *strategy.Signal, accepted, evicted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Levels come from the samples preceding this one: the new price is
	// the one that breaks them.
	prior := e.window.Values()
	evicted = e.window.Append(price)
	prices := append(prior, price)
	if len(prices) > e.window.Cap() {
		prices = prices[len(prices)-e.window.Cap():]
	}

	levels := indicator.Levels{Support: price, Resistance: price}
	if len(prior) > 0 {
		levels = indicator.SupportResistance(prior)
	}
	tech := indicator.Analyze(prices)
	mood := sentiment.Estimate(tech.Trend, tech.RSI)

	e.technical = tech
	e.levels = levels
	e.mood = mood
	e.lastPrice = price
	e.updatedAt = ts

	if e.granularity > 0 {
		ts = ts.Truncate(e.granularity)
	}
	sig = e.policy.Evaluate(strategy.Input{
		Price:     price,
		Samples:   len(prices),
		Levels:    levels,
		Technical: tech,
		Sentiment: mood,
		Timestamp: ts,
	})
	if sig == nil {
		return nil, false, evicted
	}
	return sig, e.stream.Offer(*sig), evicted
}

func (e *Engine) sampled() {
	e.cbMu.RLock()
	hooks := make([]func(State), len(e.sampleHook))
	copy(hooks, e.sampleHook)
	e.cbMu.RUnlock()
	if len(hooks) == 0 {
		return
	}

	st := e.Snapshot()
	for _, fn := range hooks {
		fn(st)
	}
}

func (e *Engine) notify(sig strategy.Signal) {
	e.cbMu.RLock()
	callbacks := make([]func(strategy.Signal), len(e.callbacks))
	copy(callbacks, e.callbacks)
	e.cbMu.RUnlock()

	for _, fn := range callbacks {
		fn(sig)
	}

	select {
	case e.signalCh <- sig:
	default:
		if e.prom != nil {
			e.prom.SignalChanDropped.Inc()
		}
	}
}
