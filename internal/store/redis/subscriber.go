package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-signalsv1/internal/feed"
)

// Subscriber feeds prices published on the instrument's price channel into
// a submit function.
type Subscriber struct {
	client     *goredis.Client
	instrument string

	// OnError is called for messages that fail to parse or submit (optional).
	OnError func(err error)
}

// NewSubscriber creates a price subscriber for instrument.
func NewSubscriber(client *goredis.Client, instrument string) *Subscriber {
	return &Subscriber{client: client, instrument: instrument}
}

// Run subscribes and forwards prices to submit until ctx is cancelled.
// Messages without a timestamp are stamped with the receive time.
func (s *Subscriber) Run(ctx context.Context, submit func(price float64, ts time.Time) error) error {
	channel := PriceChannel(s.instrument)
	pubsub := s.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	log.Printf("[redis-sub] listening on %s", channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			if err := Forward(m.Payload, submit); err != nil {
				log.Printf("[redis-sub] %v", err)
				if s.OnError != nil {
					s.OnError(err)
				}
			}
		}
	}
}

// Forward parses payload and hands it to submit.
func Forward(payload string, submit func(price float64, ts time.Time) error) error {
	msg, err := feed.ParsePriceMessage(payload)
	if err != nil {
		return err
	}
	ts := msg.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return submit(msg.Price, ts)
}
