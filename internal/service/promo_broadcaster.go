package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/email"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPromoInterval   = 5 * time.Minute
	defaultPromoSampleSize = 10

	promoMessage   = "Check out our latest promotions! Limited time offers await you."
	promoEventType = "PROMOTIONAL_CAMPAIGN"
)

// UserDirectory is the directory surface the batch jobs use.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// EmailDispatcher sends notification emails for the batch jobs.
type EmailDispatcher interface {
	Dispatch(ctx context.Context, userID string, subject string, typ domain.Type, content domain.Payload) (*email.DispatchResult, error)
	DispatchToAddress(ctx context.Context, address string, name string, subject string, typ domain.Type, content domain.Payload) (*email.DispatchResult, error)
}

// PromoBroadcaster periodically samples eligible users and sends each a
// promotional notification. Eligible means a valid email address and no
// promotions opt-out.
type PromoBroadcaster struct {
	store      repository.NotificationRepository
	directory  UserDirectory
	dispatcher EmailDispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	interval   time.Duration
	sampleSize int
	now        func() time.Time
	shuffle    func(n int, swap func(i, j int))
}

func NewPromoBroadcaster(
	store repository.NotificationRepository,
	directory UserDirectory,
	dispatcher EmailDispatcher,
	interval time.Duration,
	sampleSize int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*PromoBroadcaster, error) {
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
		interval = defaultPromoInterval
	}
	if sampleSize <= 0 {
		sampleSize = defaultPromoSampleSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PromoBroadcaster{
		store:      store,
		directory:  directory,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		interval:   interval,
		sampleSize: sampleSize,
		now:        time.Now,
		shuffle:    rand.Shuffle,
	}, nil
}

// Start runs the broadcast on every ticker edge until context cancellation.
func (b *PromoBroadcaster) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.Broadcast(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				b.metrics.IncBatchJobRun("promo_broadcaster", "error")
				b.logger.Error("promo broadcast failed", zap.Error(err))
				continue
			}
			b.metrics.IncBatchJobRun("promo_broadcaster", "success")
		}
	}
}

// Broadcast picks one random sample of eligible users and notifies them.
// Per-user failures are logged and do not stop the rest of the batch.
func (b *PromoBroadcaster) Broadcast(ctx context.Context) error {
	users, err := b.directory.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	eligible := make([]domain.User, 0, len(users))
	for _, user := range users {
		if user.HasValidEmail() && user.Preferences.PromotionsEnabled() {
			eligible = append(eligible, user)
		}
	}
	if len(eligible) == 0 {
		b.logger.Info("no eligible users for promo broadcast")
		return nil
	}

	b.shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})
	if len(eligible) > b.sampleSize {
		eligible = eligible[:b.sampleSize]
	}

	batchID := fmt.Sprintf("PROMO_%d", b.now().UnixMilli())
	sent := 0
	for _, user := range eligible {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := b.notifyUser(ctx, user, batchID); err != nil {
			b.logger.Error("promo notification failed",
				zap.String("userId", user.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	b.logger.Info("promo broadcast complete",
		zap.String("batchId", batchID),
		zap.Int("eligible", len(eligible)),
		zap.Int("sent", sent),
	)
	return nil
}

func (b *PromoBroadcaster) notifyUser(ctx context.Context, user domain.User, batchID string) error {
	content := domain.Payload{
		"message":   promoMessage,
		"eventType": promoEventType,
		"name":      user.DisplayName(),
	}

	sentAt := b.now()
	notification := &domain.Notification{
		UserID:   user.ID,
		Email:    user.Email,
		Type:     domain.TypePromotion,
		Content:  content,
		Priority: domain.PriorityStandard,
		Metadata: domain.Payload{
			"batchId":     batchID,
			"isAutomated": true,
		},
		SentAt: &sentAt,
	}
	if err := b.store.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to persist promo notification: %w", err)
	}

	subject := fmt.Sprintf("Special Promotion Just for You, %s!", user.DisplayName())
	result, err := b.dispatcher.DispatchToAddress(ctx, user.Email, user.DisplayName(), subject, domain.TypePromotion, content)
	if err != nil {
		return fmt.Errorf("failed to send promo email: %w", err)
	}

	if err := b.store.SetTrackingID(ctx, notification.ID, result.TrackingID); err != nil {
		b.logger.Warn("failed to record tracking id",
			zap.String("notificationId", notification.ID),
			zap.Error(err),
		)
	}
	return nil
}
