package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// attemptScript checks and increments in one round trip so two concurrent
// requests cannot both take the last slot. Returns {allowed, count, pttl}.
var attemptScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
	return {0, count, redis.call('PTTL', KEYS[1])}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, count, redis.call('PTTL', KEYS[1])}
`)

type RedisStore struct {
	client redis.UniversalClient
	prefix string
	clock  func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		clock:  time.Now,
	}
}

func (s *RedisStore) Attempt(ctx context.Context, key string, max int, decay time.Duration) (Attempt, error) {
	res, err := attemptScript.Run(ctx, s.client, []string{s.prefix + key}, max, decay.Milliseconds()).Int64Slice()
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 3 {
		return Attempt{}, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, res)
	}

	ttl := time.Duration(res[2]) * time.Millisecond
	if ttl < 0 {
		// key without expiry (-1) or vanished between calls (-2)
		ttl = decay
	}

	return Attempt{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		ResetAt: s.clock().Add(ttl),
	}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
