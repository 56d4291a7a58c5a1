// Package cache provides a Redis-backed key/value component.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bft-labs/stagehand/pkg/lifecycle"
	"github.com/bft-labs/stagehand/pkg/log"
)

// ErrNotStarted is returned by data operations outside Start/Stop.
var ErrNotStarted = errors.New("cache: not started")

// ErrMiss is returned by Get for an absent key.
var ErrMiss = errors.New("cache: miss")

// Config configures a Cache.
type Config struct {
	Name string
	Addr string
	DB   int

	// PingAttempts is how many times Start pings before giving up. Default: 3.
	PingAttempts int
	// PingBackoff is the initial delay between pings. Default: 200ms.
	PingBackoff time.Duration

	Logger log.Logger
}

// Cache owns a Redis client. The client is created on Start and closed on Stop.
type Cache struct {
	*lifecycle.Base
	cfg Config

	mu     sync.RWMutex
	client *redis.Client
}

// New creates a cache component.
func New(cfg Config, opts ...lifecycle.Option) *Cache {
	if cfg.Name == "" {
		cfg.Name = "cache"
	}
	if cfg.PingAttempts <= 0 {
		cfg.PingAttempts = 3
	}
	if cfg.PingBackoff <= 0 {
		cfg.PingBackoff = 200 * time.Millisecond
	}
	c := &Cache{cfg: cfg}
	opts = append([]lifecycle.Option{lifecycle.WithLogger(cfg.Logger)}, opts...)
	c.Base = lifecycle.NewBase(cfg.Name, lifecycle.Hooks{
		Initialize: c.initialize,
		Start:      c.start,
		Stop:       c.stop,
		Terminate:  c.stop,
	}, opts...)
	return c
}

func (c *Cache) initialize(context.Context, *lifecycle.Monitor) error {
	if c.cfg.Addr == "" {
		return errors.New("redis address is required")
	}
	return nil
}

func (c *Cache) start(ctx context.Context, _ *lifecycle.Monitor) error {
	client := redis.NewClient(&redis.Options{
		Addr: c.cfg.Addr,
		DB:   c.cfg.DB,
		// Pings are retried below with our own backoff.
		MaxRetries: -1,
	})

	b := lifecycle.NewBackoff(c.cfg.PingBackoff, 4*c.cfg.PingBackoff)
	err := lifecycle.Retry(ctx, c.cfg.PingAttempts, b, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis at %s: %w", c.cfg.Addr, err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	c.Logger().Info("connected to redis", log.String("addr", c.cfg.Addr), log.Int("db", c.cfg.DB))
	return nil
}

func (c *Cache) stop(context.Context, *lifecycle.Monitor) error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

func (c *Cache) get() (*redis.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, ErrNotStarted
	}
	return c.client, nil
}

// Get returns the value stored at key.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	client, err := c.get()
	if err != nil {
		return "", err
	}
	v, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

// Set stores value at key. A zero ttl means no expiry.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	client, err := c.get()
	if err != nil {
		return err
	}
	return client.Set(ctx, key, value, ttl).Err()
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	client, err := c.get()
	if err != nil {
		return err
	}
	return client.Del(ctx, keys...).Err()
}

var _ lifecycle.Component = (*Cache)(nil)
