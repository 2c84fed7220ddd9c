// Package reportcache keeps encoded overlap reports in Redis.
//
// Keys are namespaced by a generation counter. Invalidation bumps the
// counter, so every report computed before a layer change becomes
// unreachable at once and expires through its TTL.
package reportcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"
)

const (
	genKey    = "overlap:report:gen"
	keyPrefix = "overlap:report:"
)

// DefaultTTL applies when New is given a non-positive ttl.
const DefaultTTL = time.Hour

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

// Cache stores reports keyed by normalized target WKT.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to addr and pings it.
func New(ctx context.Context, addr string, ttl time.Duration, opts ...Option) (*Cache, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{rdb: rdb, ttl: ttl}, nil
}

// Key returns the cache key of wkt under generation gen.
func Key(gen int64, wkt string) string {
	return fmt.Sprintf("%s%d:%016x", keyPrefix, gen, xxhash.Sum64String(wkt))
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis GET %q: %w", genKey, err)
	}
	return gen, nil
}

// Get returns the report stored for wkt. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, wkt string) ([]byte, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, false, err
	}
	key := Key(gen, wkt)
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	return val, true, nil
}

// Put stores report for wkt under the current generation.
func (c *Cache) Put(ctx context.Context, wkt string, report []byte) error {
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}
	key := Key(gen, wkt)
	if err := c.rdb.Set(ctx, key, report, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

// Invalidate drops every cached report. Reports depend on all layers, so
// the layer argument is only informative.
func (c *Cache) Invalidate(ctx context.Context, _ string) error {
	if err := c.rdb.Incr(ctx, genKey).Err(); err != nil {
		return fmt.Errorf("redis INCR %q: %w", genKey, err)
	}
	return nil
}

// Generation returns the current generation.
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	return c.generation(ctx)
}

func (c *Cache) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
