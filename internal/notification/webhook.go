package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"trading-signalsv1/internal/logger"
)

// TraceHeader carries the signal trace ID on webhook requests.
const TraceHeader = "X-Trace-Id"

// WebhookNotifier POSTs signal alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// webhookPayload is the request body. Signal is nil for non-signal alerts.
type webhookPayload struct {
	Level      AlertLevel     `json:"level"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Instrument string         `json:"instrument,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
	SentAt     time.Time      `json:"sent_at"`
	Signal     *webhookSignal `json:"signal,omitempty"`
}

type webhookSignal struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Timestamp  time.Time `json:"timestamp"`
	Strategy   string    `json:"strategy"`
	Reason     string    `json:"reason"`
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) payload(ctx context.Context, alert Alert) webhookPayload {
	p := webhookPayload{
		Level:      alert.Level,
		Title:      alert.Title,
		Message:    alert.Message,
		Instrument: alert.Instrument,
		TraceID:    logger.TraceID(ctx),
		SentAt:     w.now().UTC(),
	}
	if sig := alert.Signal; sig != nil {
		p.Signal = &webhookSignal{
			ID:         sig.ID,
			Type:       string(sig.Type),
			Entry:      sig.Entry,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit,
			Timestamp:  sig.Timestamp.UTC(),
			Strategy:   sig.StrategyName,
			Reason:     sig.Reason,
		}
	}
	return p
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(w.payload(ctx, alert))
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tid := logger.TraceID(ctx); tid != "" {
		req.Header.Set(TraceHeader, tid)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	slog.Debug("webhook alert delivered", append(logger.LogWithTrace(ctx), slog.String("title", alert.Title))...)
	return nil
}
