// Package notification provides alert delivery to external channels
// (Telegram, webhooks, logs) for accepted trade signals.
package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"trading-signalsv1/internal/strategy"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level      AlertLevel       `json:"level"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Instrument string           `json:"instrument,omitempty"`
	Signal     *strategy.Signal `json:"signal,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// AlertFromSignal builds the alert sent for an accepted signal.
func AlertFromSignal(instrument string, sig strategy.Signal) Alert {
	return Alert{
		Level:      AlertInfo,
		Instrument: instrument,
		Title: fmt.Sprintf("%s %s @ %.2f", instrument, sig.Type, sig.Entry),
		Message: fmt.Sprintf("%s: %s\nSL %.2f | TP %.2f\n%s",
			sig.StrategyName, sig.Reason, sig.StopLoss, sig.TakeProfit,
			sig.Timestamp.UTC().Format(time.RFC3339)),
		Signal: &sig,
	}
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}
