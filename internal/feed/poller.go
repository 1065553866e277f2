// Package feed pulls prices from external sources (HTTP polling or a
// websocket stream) and submits them to the engine.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SubmitFunc receives each fetched price with its fetch time.
type SubmitFunc func(price float64, ts time.Time) error

// Config configures an HTTPPoller.
type Config struct {
	URL string
	// Field is a dot-separated path to the price in the JSON response,
	// e.g. "price" or "data.last". Empty means the body is a bare number.
	Field string
	// Interval between successful polls. Defaults to 1s.
	Interval time.Duration
	// MaxBackoff caps the exponential retry delay. Defaults to 30s.
	MaxBackoff time.Duration
	// Timeout per request. Defaults to 5s.
	Timeout time.Duration
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.Interval {
		c.MaxBackoff = c.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// HTTPPoller polls Config.URL and forwards prices to a SubmitFunc.
type HTTPPoller struct {
	cfg    Config
	client *http.Client
	submit SubmitFunc
	now    func() time.Time

	// OnError is called for every failed poll (optional, for metrics).
	OnError func(err error)
}

// NewHTTPPoller creates a poller. submit must not be nil.
func NewHTTPPoller(cfg Config, submit SubmitFunc) *HTTPPoller {
	cfg.defaults()
	return &HTTPPoller{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		submit: submit,
		now:    time.Now,
	}
}

// Run polls until ctx is cancelled. Failures back off exponentially up to
// MaxBackoff; the first success resets the delay to Interval.
func (p *HTTPPoller) Run(ctx context.Context) error {
	log.Printf("[feed] polling %s every %v", p.cfg.URL, p.cfg.Interval)
	backoff := p.cfg.Interval

	for {
		wait := p.cfg.Interval
		if err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p.OnError != nil {
				p.OnError(err)
			}
			log.Printf("[feed] poll failed, retrying in %v: %v", backoff, err)
			wait = backoff
			backoff = nextBackoff(backoff, p.cfg.MaxBackoff)
		} else {
			backoff = p.cfg.Interval
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Poll fetches one price and submits it.
func (p *HTTPPoller) Poll(ctx context.Context) error {
	price, err := p.Fetch(ctx)
	if err != nil {
		return err
	}
	if err := p.submit(price, p.now()); err != nil {
		return fmt.Errorf("submit %v: %w", price, err)
	}
	return nil
}

// Fetch performs one GET and extracts the price.
func (p *HTTPPoller) Fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("feed: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("feed: get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("feed: read body: %w", err)
	}
	return ExtractPrice(body, p.cfg.Field)
}

// ErrFieldNotFound is returned when the configured field path is missing.
var ErrFieldNotFound = errors.New("feed: price field not found")

// ExtractPrice decodes body and walks the dot-separated field path. The
// value may be a JSON number or a numeric string.
func ExtractPrice(body []byte, field string) (float64, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return 0, fmt.Errorf("feed: decode: %w", err)
	}

	if field != "" {
		for _, key := range strings.Split(field, ".") {
			obj, ok := v.(map[string]any)
			if !ok {
				return 0, fmt.Errorf("%w: %q", ErrFieldNotFound, field)
			}
			if v, ok = obj[key]; !ok {
				return 0, fmt.Errorf("%w: %q", ErrFieldNotFound, field)
			}
		}
	}

	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("feed: price %q is not numeric", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("feed: price has type %T", v)
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}
