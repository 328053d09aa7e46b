package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/bus"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"go.uber.org/zap"
)

// UserProcessor turns user-events into critical user_update notifications
// with an immediate email.
type UserProcessor struct {
	store      NotificationStore
	directory  UserResolver
	dispatcher EmailDispatcher
	retry      retrier
	logger     *zap.Logger
	now        func() time.Time
}

func NewUserProcessor(
	store NotificationStore,
	directory UserResolver,
	dispatcher EmailDispatcher,
	escalator Escalator,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *UserProcessor {
	return &UserProcessor{
		store:      store,
		directory:  directory,
		dispatcher: dispatcher,
		retry: newRetrier(
			RetryPolicy{MaxRetries: 5, BaseDelay: 500 * time.Millisecond},
			escalator,
			metrics,
			logger,
		),
		logger: logger,
		now:    time.Now,
	}
}

func (p *UserProcessor) Topic() string { return bus.TopicUserEvents }

func (p *UserProcessor) Process(ctx context.Context, raw []byte, coords domain.Coordinates) Result {
	var event domain.UserEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		p.logger.Warn("malformed user event", zap.String("key", coords.Key()), zap.Error(err))
		return ResultRejected
	}
	if err := event.Validate(); err != nil {
		p.logger.Warn("invalid user event", zap.String("key", coords.Key()), zap.Error(err))
		return ResultRejected
	}

	return p.retry.run(ctx, coords, raw, func(ctx context.Context, retryCount int) error {
		return p.handle(ctx, event, retryCount)
	})
}

func (p *UserProcessor) handle(ctx context.Context, event domain.UserEvent, retryCount int) error {
	user, err := p.directory.GetUser(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("failed to retrieve user %s: %w", event.UserID, err)
	}
	if !user.HasValidEmail() {
		return fmt.Errorf("%w: no email address for user %s", errSkipEvent, event.UserID)
	}

	content := event.Details
	if len(content) == 0 {
		content = domain.Payload{
			"message":   "User event processed",
			"eventType": event.EventType,
		}
	}

	sentAt := p.now()
	notification := &domain.Notification{
		UserID:   event.UserID,
		Email:    user.Email,
		Type:     domain.TypeUserUpdate,
		Content:  content,
		Priority: domain.PriorityCritical,
		Metadata: domain.Payload{
			"updateType": event.UpdateType,
			"retryCount": retryCount,
		},
		SentAt: &sentAt,
	}
	if err := p.store.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to persist user notification: %w", err)
	}

	// The notification record is the source of truth. A failed send is
	// logged and the event still counts as processed.
	result, err := p.dispatcher.Dispatch(ctx, event.UserID, "Notification: user_update", domain.TypeUserUpdate, content)
	if err != nil {
		p.logger.Error("user update email failed",
			zap.String("userId", event.UserID),
			zap.Error(err),
		)
		return nil
	}

	if err := p.store.SetTrackingID(ctx, notification.ID, result.TrackingID); err != nil {
		p.logger.Warn("failed to record tracking id",
			zap.String("notificationId", notification.ID),
			zap.Error(err),
		)
	}
	return nil
}
