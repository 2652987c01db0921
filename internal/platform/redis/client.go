package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/ragpipe/internal/cache"
	"github.com/phrazzld/ragpipe/internal/config"
	"github.com/phrazzld/ragpipe/internal/events"
)

// Client wraps a go-redis client.
type Client struct {
	rdb    *goredis.Client
	logger *slog.Logger
}

var (
	_ cache.KV           = (*Client)(nil)
	_ events.Broadcaster = (*Client)(nil)
)

// Options converts the cache configuration into go-redis options.
func Options(cfg config.CacheConfig) *goredis.Options {
	return &goredis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// New creates a client and verifies the server answers a PING.
func New(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (*Client, error) {
	opts := Options(cfg)
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", cache.ErrUnavailable, opts.Addr, err)
	}

	logger.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return &Client{rdb: rdb, logger: logger.With("component", "redis")}, nil
}

// Get implements cache.KV.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set implements cache.KV.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Publish implements events.Broadcaster.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	receivers, err := c.rdb.Publish(ctx, channel, payload).Result()
	if err != nil {
		return err
	}
	c.logger.Debug("published", "channel", channel, "receivers", receivers)
	return nil
}

// Ping reports whether the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connections.
func (c *Client) Close() error {
	return c.rdb.Close()
}
