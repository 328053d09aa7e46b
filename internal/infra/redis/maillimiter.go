package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultMailPerSec int64 = 50
	waitStep                = 20 * time.Millisecond
	waitMax                 = 100 * time.Millisecond
	windowSeconds           = 1
)

// The counter key rolls over every second, so a plain INCR with a short
// expiry gives a fixed-window limit that is shared by every pipeline
// instance pointing at the same Redis.
var takeScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

// MailLimiter throttles outbound email across all pipeline instances to a
// shared sends-per-second budget, tracked separately per notification stream.
type MailLimiter struct {
	client *goredis.Client
	perSec int64
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewMailLimiter(client *goredis.Client, perSec int) (*MailLimiter, error) {
	return newMailLimiter(client, int64(perSec), time.Now, sleepWithContext)
}

func newMailLimiter(
	client *goredis.Client,
	perSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*MailLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if perSec <= 0 {
		perSec = defaultMailPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &MailLimiter{
		client: client,
		perSec: perSec,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

// Take reports whether one send fits in the current one-second window for
// the given stream.
func (l *MailLimiter) Take(ctx context.Context, stream string) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("mail limiter is not initialized")
	}

	stream = strings.ToLower(strings.TrimSpace(stream))
	if stream == "" {
		return false, fmt.Errorf("stream is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key := fmt.Sprintf("mailrate:%s:%d", stream, l.now().UTC().Unix())
	result, err := takeScript.Run(ctx, l.client, []string{key}, l.perSec, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate mail rate limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until a send slot opens or the context ends.
func (l *MailLimiter) Wait(ctx context.Context, stream string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := waitStep
	for {
		ok, err := l.Take(ctx, stream)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if err := l.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff += waitStep
		if backoff > waitMax {
			backoff = waitMax
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
