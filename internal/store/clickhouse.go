// Package store provides the durable ClickHouse event store shared by all
// pipeline stages. It is the single source of truth for event state; no
// stage caches counts or records across invocations.
package store

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config holds the ClickHouse connection settings.
type Config struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// DefaultConfig returns the default ClickHouse configuration.
func DefaultConfig() Config {
	return Config{
		Hosts:           []string{"localhost:9000"},
		Database:        "soar",
		Username:        "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		DialTimeout:     10 * time.Second,
		QueryTimeout:    10 * time.Second,
	}
}

// Client wraps the ClickHouse connection.
type Client struct {
	conn   driver.Conn
	config Config
}

// NewClient connects to ClickHouse and verifies the connection.
func NewClient(cfg Config) (*Client, error) {
	opts := &clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionZSTD,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	if cfg.TLSEnabled {
		opts.TLS = &tls.Config{InsecureSkipVerify: false}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, wrapConnectionError("Open", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, wrapConnectionError("Ping", err)
	}

	return &Client{conn: conn, config: cfg}, nil
}

// Ping checks if the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Exec executes a statement without returning rows.
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

// Query executes a query and returns rows.
func (c *Client) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

// QueryRow executes a query expected to return at most one row.
func (c *Client) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return c.conn.QueryRow(ctx, query, args...)
}

// PrepareBatch prepares a batch insert.
func (c *Client) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.conn.PrepareBatch(ctx, query)
}

// Database returns the configured database name.
func (c *Client) Database() string {
	return c.config.Database
}

// QueryTimeout returns the configured per-query timeout.
func (c *Client) QueryTimeout() time.Duration {
	if c.config.QueryTimeout <= 0 {
		return 10 * time.Second
	}
	return c.config.QueryTimeout
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
