package cache

import (
	"context"
	"time"
)

// BytesCache is a byte-oriented key/value cache with TTLs. A miss is
// reported as ok == false, never as an error.
type BytesCache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
