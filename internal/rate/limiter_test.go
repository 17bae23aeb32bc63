package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestFailExhaustsBudget(t *testing.T) {
	l, _ := newLimiter(t, Config{MaxAttempts: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Fail(ctx, "a@b.com"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := l.Check(ctx, "a@b.com"); err != nil {
		t.Fatalf("expected budget left, got %v", err)
	}
	if err := l.Fail(ctx, "A@B.com "); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on third failure, got %v", err)
	}
	if err := l.Check(ctx, "a@b.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected Check to refuse, got %v", err)
	}
}

func TestWindowExpires(t *testing.T) {
	l, mr := newLimiter(t, Config{MaxAttempts: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = l.Fail(ctx, "a@b.com")
	if err := l.Check(ctx, "a@b.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.Check(ctx, "a@b.com"); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestResetClearsCounter(t *testing.T) {
	l, _ := newLimiter(t, Config{MaxAttempts: 5})
	ctx := context.Background()

	_ = l.Fail(ctx, "a@b.com")
	_ = l.Fail(ctx, "a@b.com")
	if n, _ := l.Attempts(ctx, "a@b.com"); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
	if err := l.Reset(ctx, "a@b.com"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := l.Attempts(ctx, "a@b.com"); n != 0 {
		t.Fatalf("expected 0 attempts, got %d", n)
	}
}

func TestRedisDown(t *testing.T) {
	l, mr := newLimiter(t, Config{})
	mr.Close()

	if err := l.Fail(context.Background(), "a@b.com"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := l.Check(context.Background(), "a@b.com"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
