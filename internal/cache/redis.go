package cache

import (
	"context"
	"math"
	"time"

	"github.com/zeromicro/go-zero/core/stores/redis"
)

// RedisBackend stores values as plain strings with SETEX.
type RedisBackend struct {
	client *redis.Redis
}

func NewRedisBackend(addr, password string) *RedisBackend {
	opts := []redis.Option{}
	if password != "" {
		opts = append(opts, redis.WithPass(password))
	}
	return &RedisBackend{client: redis.New(addr, opts...)}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.GetCtx(ctx, key)
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	// go-zero maps redis.Nil to "" on GET
	if val == "" {
		return nil, false, nil
	}
	return []byte(val), true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return r.client.SetCtx(ctx, key, string(val))
	}
	return r.client.SetexCtx(ctx, key, string(val), durationToSeconds(ttl))
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	_, err := r.client.DelCtx(ctx, key)
	return err
}

func (r *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	return r.client.ExistsCtx(ctx, key)
}

// Ping reports whether the server answers.
func (r *RedisBackend) Ping(ctx context.Context) bool {
	return r.client.PingCtx(ctx)
}

func durationToSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
