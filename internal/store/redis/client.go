// Package redis connects the signal engine to Redis: accepted signals are
// published on a per-instrument channel, the latest engine state is cached
// under a TTL key, and prices can be consumed from a pub/sub feed.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// SignalChannel is the pub/sub channel accepted signals are published on.
func SignalChannel(instrument string) string { return "pub:signal:" + instrument }

// StateKey holds the latest engine snapshot for instrument.
func StateKey(instrument string) string { return "state:" + instrument }

// PriceChannel is the pub/sub channel the price subscriber listens on.
func PriceChannel(instrument string) string { return "pub:price:" + instrument }

// NewClient creates a Redis client and pings the server.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}
