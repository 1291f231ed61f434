package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitScript は固定ウィンドウカウンタをアトミックに進めるLuaスクリプト。
// ウィンドウ最初のリクエストで有効期限を設定し、カウントと残りTTLを返す。
var rateLimitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisRateLimitStore は複数レプリカでカウンタを共有するレート制限ストア。
// 固定ウィンドウ方式で、ウィンドウはキーのTTLとして表現される。
type RedisRateLimitStore struct {
	client *redis.Client
	prefix string
}

// NewRedisRateLimitStore はRedisRateLimitStoreを生成する。
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, prefix: "ratelimit:"}
}

// Allow はキーのウィンドウ内カウントを進め、上限超過を判定する。
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	result, err := rateLimitScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return Decision{}, fmt.Errorf("unexpected rate limit script result: %v", result)
	}
	count, ok1 := values[0].(int64)
	ttlMs, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return Decision{}, fmt.Errorf("unexpected rate limit script result types: %v", result)
	}

	retryAfter := time.Duration(ttlMs) * time.Millisecond
	if retryAfter < 0 {
		retryAfter = window
	}

	if count > int64(limit) {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}
	return Decision{Allowed: true, Remaining: limit - int(count)}, nil
}

var _ RateLimitStore = (*RedisRateLimitStore)(nil)
