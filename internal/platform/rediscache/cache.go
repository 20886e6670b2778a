// Package rediscache is a read-through JSON cache over go-redis used to
// decorate the registry and shift lookups. Cache failures never fail the
// caller: a broken cache behaves like a miss and is guarded by the "cache"
// resilience stack so a dead Redis is skipped fast.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"timekeep/pkg/platform/resilience"
)

type Cache[T any] struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	pipeline *resilience.Pipeline
	logger   *slog.Logger
}

type Option func(*options)

type options struct {
	pipeline *resilience.Pipeline
	logger   *slog.Logger
}

func WithPipeline(p *resilience.Pipeline) Option {
	return func(o *options) {
		o.pipeline = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New caches values under prefix for ttl.
func New[T any](client *redis.Client, prefix string, ttl time.Duration, opts ...Option) *Cache[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		pipeline: o.pipeline,
		logger:   o.logger,
	}
}

// Get returns the cached value and whether it was present.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, err := resilience.Do(ctx, c.pipeline, func(ctx context.Context) ([]byte, error) {
		b, err := c.client.Get(ctx, c.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		c.logger.WarnContext(ctx, "cache read failed", "prefix", c.prefix, "error", err)
		return zero, false
	}
	if raw == nil {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.WarnContext(ctx, "cache entry undecodable", "prefix", c.prefix, "error", err)
		return zero, false
	}
	return v, true
}

// Set stores v; failures are logged only.
func (c *Cache[T]) Set(ctx context.Context, key string, v T) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "cache entry unencodable", "prefix", c.prefix, "error", err)
		return
	}
	err = c.pipeline.Execute(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err()
	})
	if err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "prefix", c.prefix, "error", err)
	}
}

// Delete evicts key.
func (c *Cache[T]) Delete(ctx context.Context, key string) {
	err := c.pipeline.Execute(ctx, func(ctx context.Context) error {
		return c.client.Del(ctx, c.prefix+key).Err()
	})
	if err != nil {
		c.logger.WarnContext(ctx, "cache delete failed", "prefix", c.prefix, "error", err)
	}
}
