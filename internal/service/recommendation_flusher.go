package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultFlushInterval    = 5 * time.Minute
	defaultFlushScanLimit   = 10
	defaultFlushConcurrency = 5

	recommendationSubject = "Your Personalized Product Recommendations"
)

// RecommendationFlusher periodically emails pending recommendation
// notifications. A record stays pending after a failed send and is retried
// on the next run; an opt-out discovered at send time marks it skipped.
type RecommendationFlusher struct {
	store       repository.NotificationRepository
	directory   UserDirectory
	dispatcher  EmailDispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	interval    time.Duration
	scanLimit   int
	concurrency int
	now         func() time.Time
}

func NewRecommendationFlusher(
	store repository.NotificationRepository,
	directory UserDirectory,
	dispatcher EmailDispatcher,
	interval time.Duration,
	scanLimit int,
	concurrency int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*RecommendationFlusher, error) {
	if store == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("user directory is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	if scanLimit <= 0 {
		scanLimit = defaultFlushScanLimit
	}
	if concurrency <= 0 {
		concurrency = defaultFlushConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecommendationFlusher{
		store:       store,
		directory:   directory,
		dispatcher:  dispatcher,
		metrics:     metrics,
		logger:      logger,
		interval:    interval,
		scanLimit:   scanLimit,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

// Start runs the flush on every ticker edge until context cancellation.
func (f *RecommendationFlusher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := f.Flush(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				f.metrics.IncBatchJobRun("recommendation_flusher", "error")
				f.logger.Error("recommendation flush failed", zap.Error(err))
				continue
			}
			f.metrics.IncBatchJobRun("recommendation_flusher", "success")
		}
	}
}

// Flush sends one scan's worth of pending recommendation emails in bounded
// concurrent batches. Per-notification failures leave the record pending.
func (f *RecommendationFlusher) Flush(ctx context.Context) error {
	pending, err := f.store.FindPendingEmail(ctx, domain.TypeRecommendation, f.scanLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch pending recommendations: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	for start := 0; start < len(pending); start += f.concurrency {
		end := min(start+f.concurrency, len(pending))

		g, groupCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			notification := pending[i]
			g.Go(func() error {
				f.sendOne(groupCtx, notification)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	f.logger.Info("recommendation flush complete", zap.Int("scanned", len(pending)))
	return nil
}

func (f *RecommendationFlusher) sendOne(ctx context.Context, notification domain.Notification) {
	logger := f.logger.With(
		zap.String("notificationId", notification.ID),
		zap.String("userId", notification.UserID),
	)

	user, err := f.directory.GetUser(ctx, notification.UserID)
	if err != nil {
		logger.Error("failed to resolve recipient, leaving pending", zap.Error(err))
		return
	}
	if !user.HasValidEmail() {
		logger.Error("recipient has no valid email, leaving pending")
		return
	}

	if !user.Preferences.RecommendationsEnabled() {
		logger.Info("recipient opted out of recommendations, skipping")
		if err := f.store.MarkSkipped(ctx, notification.ID, f.now()); err != nil {
			logger.Error("failed to mark notification skipped", zap.Error(err))
		}
		return
	}

	result, err := f.dispatcher.DispatchToAddress(
		ctx,
		user.Email,
		user.DisplayName(),
		recommendationSubject,
		domain.TypeRecommendation,
		notification.Content,
	)
	if err != nil {
		logger.Error("recommendation email failed, leaving pending", zap.Error(err))
		return
	}

	if err := f.store.SetTrackingID(ctx, notification.ID, result.TrackingID); err != nil {
		logger.Warn("failed to record tracking id", zap.Error(err))
	}
	if err := f.store.MarkEmailSent(ctx, notification.ID, f.now()); err != nil {
		logger.Error("failed to mark notification sent", zap.Error(err))
	}
}
