package processor

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"go.uber.org/zap"
)

// RetryPolicy drives exponential backoff. Attempt n sleeps BaseDelay * 2^n
// before the next try, and attempt MaxRetries is the last one.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return p.BaseDelay << retryCount
}

type retrier struct {
	policy    RetryPolicy
	escalator Escalator
	metrics   *observability.Metrics
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func newRetrier(
	policy RetryPolicy,
	escalator Escalator,
	metrics *observability.Metrics,
	logger *zap.Logger,
) retrier {
	return retrier{
		policy:    policy,
		escalator: escalator,
		metrics:   metrics,
		logger:    logger,
		sleep:     sleepWithContext,
	}
}

// run drives attempt until it succeeds, skips, fails validation, or exhausts
// the policy. On exhaustion the event is escalated exactly once, with the
// last attempt's error as the reason.
func (r retrier) run(
	ctx context.Context,
	coords domain.Coordinates,
	raw []byte,
	attempt func(ctx context.Context, retryCount int) error,
) Result {
	for retryCount := 0; ; retryCount++ {
		err := attempt(ctx, retryCount)
		if err == nil {
			return ResultProcessed
		}
		if errors.Is(err, errSkipEvent) {
			r.logger.Info("event skipped",
				zap.String("topic", coords.Topic),
				zap.String("reason", err.Error()),
			)
			return ResultSkipped
		}
		if errors.Is(err, domain.ErrValidation) {
			r.logger.Warn("event failed validation",
				zap.String("topic", coords.Topic),
				zap.Error(err),
			)
			return ResultRejected
		}

		r.logger.Error("event processing failed",
			zap.String("topic", coords.Topic),
			zap.Int("retryCount", retryCount),
			zap.Error(err),
		)

		if retryCount >= r.policy.MaxRetries {
			r.escalator.Escalate(ctx, coords, raw, err.Error())
			return ResultDeadLettered
		}

		r.metrics.IncEventRetry(coords.Topic)
		if sleepErr := r.sleep(ctx, r.policy.Delay(retryCount)); sleepErr != nil {
			return ResultAborted
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
