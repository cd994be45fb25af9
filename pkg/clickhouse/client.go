package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PortfolioHistory/pkg/util"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Client owns a database/sql pool backed by clickhouse-go.
type Client struct {
	db *sql.DB
}

// NewClient opens a pool on the native protocol unless WithHTTP is set. The
// first ping is retried so the service can start alongside the database.
func NewClient(opts ...ClientOption) (*Client, error) {
	s := defaultClientSettings()
	for _, opt := range opts {
		opt(s)
	}
	if s.host == "" {
		return nil, fmt.Errorf("host is required")
	}

	db := clickhouse.OpenDB(s.resolve())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	policy := util.RetryPolicy{Attempts: s.pingAttempts, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
	err := util.Retry(ctx, policy, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, s.options.DialTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s:%d: %w", s.host, s.port, err)
	}
	return &Client{db: db}, nil
}

// DB returns *sql.DB for direct use.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Health performs health check.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes connection pool.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema statement %d: %w", i, err)
		}
	}
	return nil
}
