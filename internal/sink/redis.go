package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "quote:"
	channelPrefix = "quotes."
)

// Key returns the Redis key holding a symbol's latest quote.
func Key(symbol string) string { return keyPrefix + symbol }

// Channel returns the pub/sub channel announcing a symbol's changes.
func Channel(symbol string) string { return channelPrefix + symbol }

// RedisSink stores each quote under quote:<symbol> and publishes it on
// quotes.<symbol>.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSink creates a sink. A ttl of zero keeps keys without expiry.
func NewRedisSink(client *redis.Client, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, ttl: ttl}
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Write sends SET and PUBLISH for every symbol in one pipeline.
func (s *RedisSink) Write(ctx context.Context, b Batch) error {
	payloads := make(map[string][]byte, len(b.Snapshots))
	for sym := range b.Snapshots {
		doc, err := encodeQuote(b, sym)
		if err != nil {
			return err
		}
		payloads[sym] = doc
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sym := range b.Symbols() {
			pipe.Set(ctx, Key(sym), payloads[sym], s.ttl)
			pipe.Publish(ctx, Channel(sym), payloads[sym])
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}
