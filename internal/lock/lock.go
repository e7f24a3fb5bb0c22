package lock

import (
	"context"
	"time"
)

// Locker serialises work on a key across concurrent requests.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}
