// Package redis connects the job queues to Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	pingTimeout = 5 * time.Second
	// dialTimeout bounds connection setup; blocking pops extend read deadlines themselves.
	dialTimeout = 5 * time.Second
)

// Client embeds the go-redis client used by pkg/queue.
type Client struct {
	*redis.Client
	addr   string
	logger *zap.Logger
}

// NewClient connects to addr and fails unless a PING succeeds within pingTimeout.
func NewClient(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: dialTimeout,
	})
	c := &Client{Client: rdb, addr: addr, logger: logger}
	if err := c.Healthy(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	logger.Info("redis connected", zap.String("addr", addr), zap.Int("db", db))
	return c, nil
}

// Healthy pings Redis, used at startup and by /health.
func (c *Client) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", c.addr, err)
	}
	return nil
}
