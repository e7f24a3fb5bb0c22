package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/lock"
)

func newRedisLocker(t *testing.T) (lock.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Redis{R: client, Prefix: "test:", RetryBackoff: 5 * time.Millisecond}, mr
}

func assertSerialised(t *testing.T, locker lock.Locker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, "demo", 200*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()

	<-firstDone

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, "demo", 200*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"first"}, order)
	mu.Unlock()

	close(releaseFirst)
	wg.Wait()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestRedisWithLockSerialises(t *testing.T) {
	locker, _ := newRedisLocker(t)
	assertSerialised(t, locker)
}

func TestRedisWithLockReleasesKey(t *testing.T) {
	locker, mr := newRedisLocker(t)
	err := locker.WithLock(context.Background(), "session", time.Second, func(context.Context) error {
		require.True(t, mr.Exists("test:session"))
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists("test:session"))
}

func TestRedisWithLockHonoursContext(t *testing.T) {
	locker, mr := newRedisLocker(t)
	require.NoError(t, mr.Set("test:busy", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "busy", time.Second, func(context.Context) error {
		t.Fatal("callback must not run")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalWithLockSerialises(t *testing.T) {
	assertSerialised(t, &lock.Local{})
}

func TestLocalDistinctKeysRunConcurrently(t *testing.T) {
	var l lock.Local
	ctx := context.Background()
	inside := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(ctx, "a", 0, func(context.Context) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	var ran atomic.Bool
	require.NoError(t, l.WithLock(ctx, "b", 0, func(context.Context) error {
		ran.Store(true)
		return nil
	}))
	require.True(t, ran.Load())
	close(release)
}
