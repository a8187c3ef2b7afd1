// Package redis mirrors quote decisions into Redis and guards a market against
// concurrent quoters, using go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// clientName shows up in CLIENT LIST on the server.
const clientName = "polyquoter"

const (
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 3 * time.Second
	checkTimeout       = 2 * time.Second
)

// Config is the connection part of the [redis] config section.
type Config struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLS        bool

	// Zero means the package defaults.
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// Client owns the connection pool shared by QuoteMirror and MarketLock.
type Client struct {
	rdb  *redis.Client
	addr string
}

// Dial opens the pool and fails unless the server answers a PING.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: dial: empty address")
	}
	c := &Client{rdb: redis.NewClient(newOptions(cfg)), addr: cfg.Addr}
	if err := c.Check(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}
	return c, nil
}

// newOptions translates Config into driver options. With TLS on, the
// certificate is verified against the host part of Addr.
func newOptions(cfg Config) *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		ClientName:   clientName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.IOTimeout,
		WriteTimeout: cfg.IOTimeout,
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultIOTimeout
		opts.WriteTimeout = defaultIOTimeout
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: hostOf(cfg.Addr),
		}
	}
	return opts
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Check pings the server for the health endpoint. It never waits longer than
// checkTimeout regardless of ctx.
func (c *Client) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s: %w", c.addr, err)
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis: close: %w", err)
	}
	return nil
}
