package engine

import (
	"log/slog"
	"time"

	"trading-signalsv1/internal/metrics"
)

// Option configures an Engine.
type Option func(*Engine)

// WithCapacity sets the price window capacity (default 50).
func WithCapacity(n int) Option {
	return func(e *Engine) { e.capacity = n }
}

// WithHistorySize sets how many accepted signals are retained (default 5).
func WithHistorySize(n int) Option {
	return func(e *Engine) { e.historySize = n }
}

// WithGranularity sets the resolution signal timestamps are truncated to.
// Signals are deduplicated by timestamp, so this is also the dedup window.
// Zero disables truncation.
func WithGranularity(d time.Duration) Option {
	return func(e *Engine) { e.granularity = d }
}

// WithClock overrides the time source used by SubmitSample.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics attaches Prometheus metrics. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.prom = m }
}

// WithSignalBuffer sets the capacity of the Signals() event channel.
func WithSignalBuffer(n int) Option {
	return func(e *Engine) { e.signalBuf = n }
}
