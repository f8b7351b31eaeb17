// Package redis implements the storage contracts on Redis via rueidis.
// Entities are stored as JSON strings under prefixed keys; listing
// walks SCAN over a per-kind key pattern.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// Config holds connection parameters.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// Client wraps a rueidis connection with the small KV surface the
// repositories consume.
type Client struct {
	client rueidis.Client
	prefix string
}

// NewClient connects to Redis.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "gridbase:"
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &Client{client: client, prefix: prefix}, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Do(ctx, c.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the connection.
func (c *Client) Close() {
	c.client.Close()
}

// WaitForReady polls Ping until the store responds or the timeout
// expires.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for redis: %w", ctx.Err())
		case <-ticker.C:
			if err := c.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Set stores a value under a prefixed key.
func (c *Client) Set(ctx context.Context, key, value string) error {
	cmd := c.client.B().Set().Key(c.prefix + key).Value(value).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get returns a value, with ok=false for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	cmd := c.client.B().Get().Key(c.prefix + key).Build()
	res := c.client.Do(ctx, cmd)
	if err := res.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	val, err := res.ToString()
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return val, true, nil
}

// Del removes a key.
func (c *Client) Del(ctx context.Context, key string) error {
	cmd := c.client.B().Del().Key(c.prefix + key).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Scan returns every value whose key matches the prefixed pattern.
func (c *Client) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	cursor := uint64(0)
	for {
		cmd := c.client.B().Scan().Cursor(cursor).Match(c.prefix + pattern).Count(256).Build()
		entry, err := c.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		keys = append(keys, entry.Elements...)
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmd := c.client.B().Mget().Key(keys...).Build()
	rows, err := c.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.IsNil() {
			continue
		}
		val, err := row.ToString()
		if err != nil {
			return nil, fmt.Errorf("mget value: %w", err)
		}
		out = append(out, val)
	}
	return out, nil
}
