package cache

import (
	"context"
	"time"
)

// Backend stores raw bytes under string keys with a per-key TTL.
// A miss is (nil, false, nil); errors are transport failures only.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Sweeper is implemented by backends that keep expired keys until swept.
type Sweeper interface {
	Sweep() int
}
