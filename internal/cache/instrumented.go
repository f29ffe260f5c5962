package cache

import (
	"context"
	"time"

	"github.com/omutucat/reading-counter-dc/internal/metrics"
	"go.uber.org/zap"
)

// Instrumented counts hits and misses and logs backend errors.
type Instrumented struct {
	next    Cache
	metrics *metrics.Collector
	log     *zap.Logger
}

// WithMetrics wraps next.
func WithMetrics(next Cache, m *metrics.Collector, log *zap.Logger) *Instrumented {
	return &Instrumented{next: next, metrics: m, log: log}
}

func (c *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := c.next.Get(ctx, key)
	if err != nil {
		c.log.Warn("Cache read failed, recomputing", zap.String("key", key), zap.Error(err))
	}
	if ok {
		c.metrics.CacheHit(key)
	} else {
		c.metrics.CacheMiss(key)
	}
	return value, ok, err
}

func (c *Instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.next.Set(ctx, key, value, ttl)
	if err != nil {
		c.log.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

func (c *Instrumented) Delete(ctx context.Context, key string) error {
	err := c.next.Delete(ctx, key)
	if err != nil {
		c.log.Warn("Cache delete failed", zap.String("key", key), zap.Error(err))
	} else {
		c.log.Debug("Cache entry invalidated", zap.String("key", key))
	}
	return err
}
