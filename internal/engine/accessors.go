package engine

import (
	"trading-signalsv1/internal/indicator"
	"trading-signalsv1/internal/sentiment"
	"trading-signalsv1/internal/strategy"
)

// CurrentTechnical returns the latest RSI, EMA and trend.
func (e *Engine) CurrentTechnical() indicator.TechnicalState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.technical
}

// CurrentLevels returns the latest support/resistance.
func (e *Engine) CurrentLevels() indicator.Levels {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.levels
}

// CurrentSentiment returns the latest derived sentiment.
func (e *Engine) CurrentSentiment() sentiment.Sentiment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mood
}

// ActiveSignal returns the active signal, if any.
func (e *Engine) ActiveSignal() (strategy.Signal, bool) {
	return e.stream.Active()
}

// SignalHistory returns the retained accepted signals, newest first.
func (e *Engine) SignalHistory() []strategy.Signal {
	return e.stream.History()
}

// Samples returns a copy of the price window, oldest first.
func (e *Engine) Samples() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.window.Values()
}

// Snapshot returns all pull-side outputs from one consistent read.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := State{
		Samples:   e.window.Len(),
		LastPrice: e.lastPrice,
		Technical: e.technical,
		Levels:    e.levels,
		Sentiment: e.mood,
		History:   e.stream.History(),
		UpdatedAt: e.updatedAt,
	}
	st.SignalsAccepted, st.DuplicatesDropped = e.stream.Stats()
	if sig, ok := e.stream.Active(); ok {
		st.Active = &sig
	}
	return st
}
