// Package redisclient constructs the shared Redis handle used by the
// feature cache, passed explicitly into every component at startup
// rather than held as a package-level singleton.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northstar-retail/feedcore/config"
)

// Client wraps a connected *redis.Client.
type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config, sized for the
// feature cache's read-heavy hot path. Returns an error if the Redis
// URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opt.PoolSize = 64
	opt.MinIdleConns = 8
	opt.ConnMaxIdleTime = 30 * time.Minute
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

// Raw returns the underlying *redis.Client for handing to
// featurecache.NewRedisCache.
func (r *Client) Raw() *redis.Client {
	return r.c
}

// Ping verifies connectivity at startup.
func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Client) Close() error {
	return r.c.Close()
}
