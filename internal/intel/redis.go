// Package intel holds the IP reputation state shared by the pipeline: the
// ingress blocklist and the known-malicious IP set used by the risk engine.
// Redis is the backing store so the remediator's BLOCK_IP action is visible
// to the ingress within one refresh interval.
package intel

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	OpTimeout   time.Duration `yaml:"op_timeout"`
}

// DefaultConfig returns the default Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		DialTimeout: 5 * time.Second,
		OpTimeout:   3 * time.Second,
	}
}

// Client wraps the Redis connection used for intel sets.
type Client struct {
	rdb       *redis.Client
	opTimeout time.Duration
}

// NewClient connects to Redis and verifies the connection.
func NewClient(cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("intel: redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, opTimeout: cfg.OpTimeout}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.opTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// SetStore is the subset of Redis set operations the intel types need.
// Satisfied by *Client and by in-memory fakes in tests.
type SetStore interface {
	IsMember(ctx context.Context, key, member string) (bool, error)
	Add(ctx context.Context, key string, members ...string) error
	Members(ctx context.Context, key string) ([]string, error)
}

// IsMember reports set membership.
func (c *Client) IsMember(ctx context.Context, key, member string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.rdb.SIsMember(ctx, key, member).Result()
}

// Add inserts members into a set.
func (c *Client) Add(ctx context.Context, key string, members ...string) error {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.SAdd(ctx, key, args...).Err()
}

// Members returns all members of a set.
func (c *Client) Members(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.rdb.SMembers(ctx, key).Result()
}
