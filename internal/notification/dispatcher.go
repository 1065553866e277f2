package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trading-signalsv1/internal/logger"
	"trading-signalsv1/internal/strategy"
)

// Dispatcher delivers every accepted signal to each configured notifier
// exactly once. A failing notifier does not block the others.
type Dispatcher struct {
	instrument string
	notifiers  map[string]Notifier
	timeout    time.Duration

	// OnError is called when a notifier fails (optional).
	OnError func(name string, err error)
}

// NewDispatcher creates a dispatcher for instrument.
func NewDispatcher(instrument string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		instrument: instrument,
		notifiers:  make(map[string]Notifier),
		timeout:    timeout,
	}
}

// Add registers a notifier under name.
func (d *Dispatcher) Add(name string, n Notifier) {
	d.notifiers[name] = n
}

// Len returns the number of registered notifiers.
func (d *Dispatcher) Len() int { return len(d.notifiers) }

// Dispatch sends the alert for sig to all notifiers and joins their errors.
// ctx is tagged with the signal's trace ID unless it already carries one.
func (d *Dispatcher) Dispatch(ctx context.Context, sig strategy.Signal) error {
	if logger.TraceID(ctx) == "" {
		ctx = logger.SignalContext(ctx, d.instrument, sig.Timestamp)
	}
	alert := AlertFromSignal(d.instrument, sig)

	var errs []error
	for name, n := range d.notifiers {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := n.Send(sendCtx, alert)
		cancel()
		if err != nil {
			slog.Warn("notifier failed", append(logger.LogWithTrace(ctx),
				slog.String("notifier", name), slog.Any("error", err))...)
			if d.OnError != nil {
				d.OnError(name, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Run dispatches signals from sigCh until ctx is cancelled or the channel
// is closed.
func (d *Dispatcher) Run(ctx context.Context, sigCh <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			// Per-notifier failures are logged by Dispatch.
			_ = d.Dispatch(ctx, sig)
		}
	}
}
