package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Client struct {
	*redis.Client
}

// NewClient parses redisURL and pings until the server answers or
// maxElapsed passes.
func NewClient(redisURL string, maxElapsed time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed

	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}

	notify := func(err error, next time.Duration) {
		log.Warn().Err(err).Dur("retryIn", next).Msg("redis not reachable yet")
	}

	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}
