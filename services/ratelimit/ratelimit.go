// Package ratelimit throttles requests per key (typically a user ID).
package ratelimit

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/trezcool/campus/core"
)

// Limiter decides whether one more request for key is allowed now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New returns a Redis sliding window limiter when Redis is configured, an in-memory token bucket otherwise.
// The in-memory janitor stops when ctx is done.
func New(ctx context.Context, conf *core.Config) (Limiter, func() error) {
	if conf.Redis.Addr == "" {
		store := NewMemoryStore(conf.RateLimit.RPS, conf.RateLimit.Burst)
		store.StartJanitor(ctx)
		return store, func() error { return nil }
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	return NewRedisStore(rdb, conf.RateLimit.Burst, conf.RateLimit.Window), rdb.Close
}
