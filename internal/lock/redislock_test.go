package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLocker(t *testing.T) Locker {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return Locker{R: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
}

func TestTryWithLockRunsCallback(t *testing.T) {
	l := newLocker(t)
	ran := false
	err := l.TryWithLock(context.Background(), "k", time.Second, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !ran {
		t.Fatal("callback did not run")
	}
}

func TestTryWithLockRejectsConcurrentHolder(t *testing.T) {
	l := newLocker(t)
	inner := errors.New("sentinel")
	err := l.TryWithLock(context.Background(), "k", time.Minute, func(ctx context.Context) error {
		if err := l.TryWithLock(ctx, "k", time.Minute, func(context.Context) error { return nil }); !errors.Is(err, ErrNotAcquired) {
			t.Fatalf("expected ErrNotAcquired, got %v", err)
		}
		return inner
	})
	if !errors.Is(err, inner) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestLockReleasedAfterCallback(t *testing.T) {
	l := newLocker(t)
	if err := l.TryWithLock(context.Background(), "k", time.Minute, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := l.TryWithLock(context.Background(), "k", time.Minute, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("second acquire after release: %v", err)
	}
}
