package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared-store variant of the counter, for
// deployments with more than one API process. Same sliding-window
// semantics as MemoryStore, held in a sorted set per key.
type RedisStore struct {
	client *redis.Client
	window time.Duration
	max    int
}

func NewRedisStore(client *redis.Client, window time.Duration, max int) *RedisStore {
	return &RedisStore{client: client, window: window, max: max}
}

func (s *RedisStore) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	now := time.Now()
	windowStart := now.Add(-s.window)
	rkey := "ratelimit:" + key

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open on store errors, matching the middleware's
		// best-effort contract.
		return true, 0, err
	}

	if countCmd.Val() >= int64(s.max) {
		oldest, err := s.client.ZRangeWithScores(ctx, rkey, 0, 0).Result()
		retry := s.window
		if err == nil && len(oldest) == 1 {
			retry = s.window - now.Sub(time.Unix(0, int64(oldest[0].Score)))
			if retry < 0 {
				retry = 0
			}
		}
		return false, retry, nil
	}

	pipe = s.client.TxPipeline()
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, rkey, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, err
	}

	return true, 0, nil
}

var _ Store = (*RedisStore)(nil)
