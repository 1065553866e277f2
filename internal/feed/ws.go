package feed

import (
	"context"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures a WSFeed.
type WSConfig struct {
	// URL of the price stream, e.g. "ws://localhost:9001/ws".
	URL string

	// ReconnectDelay is the initial delay before reconnecting. Defaults to 2s.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *WSConfig) defaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// WSFeed reads prices pushed over a websocket. Each text message is either
// a bare number or {"price": x, "ts": <unix millis>}.
type WSFeed struct {
	cfg    WSConfig
	submit SubmitFunc
	now    func() time.Time

	// OnError is called for messages that fail to parse or submit (optional).
	OnError func(err error)
	// OnReconnect is called after every dropped connection (optional).
	OnReconnect func()
}

// NewWSFeed validates the URL and creates a feed.
func NewWSFeed(cfg WSConfig, submit SubmitFunc) (*WSFeed, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.New("feed: websocket url must use ws or wss")
	}
	return &WSFeed{cfg: cfg, submit: submit, now: time.Now}, nil
}

// Run connects and streams prices until ctx is cancelled, reconnecting with
// exponential backoff on disconnect.
func (f *WSFeed) Run(ctx context.Context) error {
	delay := f.cfg.ReconnectDelay

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		connected, err := f.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = f.cfg.ReconnectDelay
		}

		log.Printf("[feed-ws] disconnected (%v), reconnecting in %s", err, delay)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = nextBackoff(delay, f.cfg.MaxReconnectDelay)
	}
}

// runOnce makes one connection and reads until it drops. connected reports
// whether the dial succeeded.
func (f *WSFeed) runOnce(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	log.Printf("[feed-ws] connected to %s", f.cfg.URL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if err := f.handle(string(raw)); err != nil {
			log.Printf("[feed-ws] %v", err)
			if f.OnError != nil {
				f.OnError(err)
			}
		}
	}
}

func (f *WSFeed) handle(payload string) error {
	msg, err := ParsePriceMessage(payload)
	if err != nil {
		return err
	}
	ts := msg.Time
	if ts.IsZero() {
		ts = f.now()
	}
	return f.submit(msg.Price, ts)
}
