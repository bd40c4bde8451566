package lockout

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore 在多个实例之间共享失败计数。Redis 不可用时放行，不阻断登录。
type RedisStore struct {
	client   *redis.Client
	prefix   string
	max      int
	cooldown time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, maxAttempts int, cooldown time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "lockout"
	}
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	return &RedisStore{client: client, prefix: prefix, max: maxAttempts, cooldown: cooldown}
}

func (s *RedisStore) failKey(email string) string { return s.prefix + ":fail:" + normalize(email) }
func (s *RedisStore) lockKey(email string) string { return s.prefix + ":lock:" + normalize(email) }

func (s *RedisStore) IsLocked(ctx context.Context, email string) (bool, time.Duration) {
	if s.max <= 0 {
		return false, 0
	}
	ttl, err := s.client.PTTL(ctx, s.lockKey(email)).Result()
	if err != nil {
		log.Warn().Err(err).Msg("lockout lookup failed")
		return false, 0
	}
	if ttl <= 0 {
		return false, 0
	}
	return true, ttl
}

func (s *RedisStore) RecordFailure(ctx context.Context, email string) {
	if s.max <= 0 {
		return
	}
	key := s.failKey(email)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		log.Warn().Err(err).Msg("lockout record failure failed")
		return
	}
	if n == 1 {
		s.client.Expire(ctx, key, s.cooldown)
	}
	if n < int64(s.max) {
		return
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.lockKey(email), 1, s.cooldown)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Msg("lockout lock failed")
	}
}

func (s *RedisStore) RecordSuccess(ctx context.Context, email string) {
	if s.max <= 0 {
		return
	}
	if err := s.client.Del(ctx, s.failKey(email), s.lockKey(email)).Err(); err != nil {
		log.Warn().Err(err).Msg("lockout reset failed")
	}
}

var _ Store = (*RedisStore)(nil)
