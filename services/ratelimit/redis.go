package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// RedisStore is a sliding window log shared by every API instance: at most limit requests per window.
type RedisStore struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

var _ Limiter = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, limit int, window time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, limit: limit, window: window}
}

func (s *RedisStore) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	k := keyPrefix + key
	start := strconv.FormatInt(now.Add(-s.window).UnixNano(), 10)

	var count *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", start)
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: uuid.New().String()})
		count = pipe.ZCard(ctx, k)
		pipe.Expire(ctx, k, s.window)
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "updating rate limit window")
	}
	return count.Val() <= int64(s.limit), nil
}
