// Package redisstore holds the Redis-backed pieces that must be shared
// between server instances.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrEmptyConnectionURL = errors.New("empty redis connection URL")
	ErrParseURL           = errors.New("failed to parse redis connection string")
	ErrNotReady           = errors.New("redis did not answer ping")
)

// Config selects the Redis deployment. An empty URL disables Redis.
type Config struct {
	URL            string        `env:"FUMO_REDIS_URL"`
	KeyPrefix      string        `env:"FUMO_REDIS_PREFIX" envDefault:"fumohouse:"`
	ConnectTimeout time.Duration `env:"FUMO_REDIS_CONNECT_TIMEOUT" envDefault:"5s"`
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

// Validate checks the URL shape without dialing.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if _, err := redis.ParseURL(c.URL); err != nil {
		return fmt.Errorf("%w: %v", ErrParseURL, err)
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("FUMO_REDIS_CONNECT_TIMEOUT must be positive")
	}
	return nil
}

// Connect opens a client and verifies it answers PING within the timeout.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, ErrEmptyConnectionURL
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseURL, err)
	}

	client := redis.NewClient(opts)
	if err := Ping(ctx, client, cfg.ConnectTimeout); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Ping checks connectivity within timeout.
func Ping(parent context.Context, client redis.Cmdable, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return nil
}
