package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestMailLimiterTake(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_000, 0)
	limiter, err := newMailLimiter(rdb, 2, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newMailLimiter() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := limiter.Take(context.Background(), "promotion")
		if err != nil {
			t.Fatalf("Take() error = %v", err)
		}
		if !ok {
			t.Fatalf("send %d should fit in the window", i+1)
		}
	}

	ok, err := limiter.Take(context.Background(), "promotion")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if ok {
		t.Fatal("third send should be rejected within the same second")
	}

	now = now.Add(time.Second)
	ok, err = limiter.Take(context.Background(), "promotion")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if !ok {
		t.Fatal("next second should open a fresh window")
	}
}

func TestMailLimiterTakePerStream(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_100, 0)
	limiter, err := newMailLimiter(rdb, 1, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newMailLimiter() error = %v", err)
	}

	ok, err := limiter.Take(context.Background(), "promotion")
	if err != nil {
		t.Fatalf("Take(promotion) error = %v", err)
	}
	if !ok {
		t.Fatal("promotion should be allowed on first send")
	}

	ok, err = limiter.Take(context.Background(), "recommendation")
	if err != nil {
		t.Fatalf("Take(recommendation) error = %v", err)
	}
	if !ok {
		t.Fatal("recommendation budget is independent of promotion")
	}

	ok, err = limiter.Take(context.Background(), "promotion")
	if err != nil {
		t.Fatalf("Take(promotion) error = %v", err)
	}
	if ok {
		t.Fatal("second promotion send should be rejected")
	}
}

func TestMailLimiterWait(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_200, 0)
	sleepCalls := 0
	limiter, err := newMailLimiter(
		rdb,
		1,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			sleepCalls++
			if sleepCalls == 1 {
				now = now.Add(time.Second)
			}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("newMailLimiter() error = %v", err)
	}

	ok, err := limiter.Take(context.Background(), "order_update")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if !ok {
		t.Fatal("expected the first send to fit")
	}

	if err := limiter.Wait(context.Background(), "order_update"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if sleepCalls == 0 {
		t.Fatal("expected Wait() to back off at least once")
	}
}

func TestMailLimiterWaitContextDeadline(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_300, 0)
	limiter, err := newMailLimiter(rdb, 1, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newMailLimiter() error = %v", err)
	}

	ok, err := limiter.Take(context.Background(), "promotion")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if !ok {
		t.Fatal("expected the first send to fit")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err = limiter.Wait(ctx, "promotion")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}
