package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/config"
)

// Cache is a best-effort typed view over a Backend. Backend and codec
// failures are logged and reported as a miss (or false) and never returned.
type Cache struct {
	backend Backend
}

func New(backend Backend) *Cache {
	return &Cache{backend: backend}
}

// NewFromConfig selects the backend named by cfg.CacheBackend. The file
// backend under DataCacheDir is shared by every process on the host; memory
// is private to the process that fills it.
func NewFromConfig(cfg *config.Config) *Cache {
	switch cfg.CacheBackend {
	case "redis":
		return New(NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword))
	case "memory":
		return New(NewMemoryBackend())
	}
	fb, err := NewFileBackend(filepath.Join(cfg.DataCacheDir, "kv"))
	if err != nil {
		logx.Errorf("cache: file backend unavailable, using memory: %v", err)
		return New(NewMemoryBackend())
	}
	return New(fb)
}

// Sweep drops expired keys when the backend needs it; ok is false for
// backends that expire keys on their own.
func (c *Cache) Sweep() (n int, ok bool) {
	s, ok := c.backend.(Sweeper)
	if !ok {
		return 0, false
	}
	return s.Sweep(), true
}

func (c *Cache) Backend() Backend { return c.backend }

// Get decodes the value under key into out and reports whether it did.
func (c *Cache) Get(ctx context.Context, key string, out any) bool {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		logx.WithContext(ctx).Errorf("cache: get key=%s err=%v", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		logx.WithContext(ctx).Errorf("cache: decode key=%s err=%v", key, err)
		return false
	}
	return true
}

func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) bool {
	raw, err := sonic.Marshal(v)
	if err != nil {
		logx.WithContext(ctx).Errorf("cache: encode key=%s err=%v", key, err)
		return false
	}
	if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
		logx.WithContext(ctx).Errorf("cache: set key=%s err=%v", key, err)
		return false
	}
	return true
}

func (c *Cache) Delete(ctx context.Context, key string) bool {
	if err := c.backend.Delete(ctx, key); err != nil {
		logx.WithContext(ctx).Errorf("cache: delete key=%s err=%v", key, err)
		return false
	}
	return true
}

func (c *Cache) Exists(ctx context.Context, key string) bool {
	ok, err := c.backend.Exists(ctx, key)
	if err != nil {
		logx.WithContext(ctx).Errorf("cache: exists key=%s err=%v", key, err)
		return false
	}
	return ok
}

// Key joins a prefix, an operation and its arguments as prefix:op:args.
// Empty parts are skipped.
func Key(prefix string, parts ...any) string {
	segs := make([]string, 0, len(parts)+1)
	segs = append(segs, prefix)
	for _, p := range parts {
		s := strings.TrimSpace(fmt.Sprint(p))
		if s == "" {
			continue
		}
		segs = append(segs, s)
	}
	return strings.Join(segs, ":")
}
