// Package redis wraps go-redis with the small surface the query cache needs.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/resilience"
)

// Nil is returned by Get for a missing key.
const Nil = redis.Nil

const scanBatch = 100

type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings the server, retrying with backoff. The client
// is closed again if no ping succeeds.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	c := &Client{rdb: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})}
	err := resilience.Retry(ctx, "redis-connect", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return resilience.WithTimeout(ctx, 2*time.Second, "redis-ping", c.Ping)
	})
	if err != nil {
		c.rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return c, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// FlushByPattern removes every key matching the glob pattern. Keys are
// collected with SCAN and unlinked one pipeline per page, so the server is
// never blocked by a single large command. The count covers only keys that
// existed when they were unlinked.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var removed int64
	iter := c.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	page := make([]string, 0, scanBatch)
	flush := func() error {
		if len(page) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, page...).Result()
		removed += n
		page = page[:0]
		return err
	}
	for iter.Next(ctx) {
		page = append(page, iter.Val())
		if len(page) == scanBatch {
			if err := flush(); err != nil {
				return removed, fmt.Errorf("unlinking keys matching %s: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scanning keys matching %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return removed, fmt.Errorf("unlinking keys matching %s: %w", pattern, err)
	}
	return removed, nil
}

// IsNilError reports whether err means the key does not exist.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
