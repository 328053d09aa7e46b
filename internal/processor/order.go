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

// OrderProcessor turns order-events into critical order_update notifications
// with an immediate email.
type OrderProcessor struct {
	store      NotificationStore
	directory  UserResolver
	dispatcher EmailDispatcher
	retry      retrier
	logger     *zap.Logger
	now        func() time.Time
}

func NewOrderProcessor(
	store NotificationStore,
	directory UserResolver,
	dispatcher EmailDispatcher,
	escalator Escalator,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *OrderProcessor {
	return &OrderProcessor{
		store:      store,
		directory:  directory,
		dispatcher: dispatcher,
		retry: newRetrier(
			RetryPolicy{MaxRetries: 3, BaseDelay: time.Second},
			escalator,
			metrics,
			logger,
		),
		logger: logger,
		now:    time.Now,
	}
}

func (p *OrderProcessor) Topic() string { return bus.TopicOrderEvents }

func (p *OrderProcessor) Process(ctx context.Context, raw []byte, coords domain.Coordinates) Result {
	var event domain.OrderEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		p.logger.Warn("malformed order event", zap.String("key", coords.Key()), zap.Error(err))
		return ResultRejected
	}
	if err := event.Validate(); err != nil {
		p.logger.Warn("invalid order event", zap.String("key", coords.Key()), zap.Error(err))
		return ResultRejected
	}

	return p.retry.run(ctx, coords, raw, func(ctx context.Context, retryCount int) error {
		return p.handle(ctx, event, retryCount)
	})
}

func (p *OrderProcessor) handle(ctx context.Context, event domain.OrderEvent, retryCount int) error {
	user, err := p.directory.GetUser(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("failed to retrieve user %s: %w", event.UserID, err)
	}
	if !user.HasValidEmail() {
		return fmt.Errorf("%w: no email address for user %s", errSkipEvent, event.UserID)
	}

	eventDetails := event.Details
	if len(eventDetails) == 0 {
		eventDetails = domain.Payload{
			"message":   "Order event processed",
			"eventType": event.EventType,
		}
	}
	content := domain.Payload{
		"orderId":      event.OrderID,
		"eventDetails": eventDetails,
	}

	sentAt := p.now()
	notification := &domain.Notification{
		UserID:   event.UserID,
		Email:    user.Email,
		Type:     domain.TypeOrderUpdate,
		Content:  content,
		Priority: domain.PriorityCritical,
		Metadata: domain.Payload{
			"retryCount": retryCount,
		},
		SentAt: &sentAt,
	}
	if err := p.store.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to persist order notification: %w", err)
	}

	result, err := p.dispatcher.Dispatch(ctx, event.UserID, "Notification: order_update", domain.TypeOrderUpdate, content)
	if err != nil {
		p.logger.Error("order update email failed",
			zap.String("userId", event.UserID),
			zap.String("orderId", event.OrderID),
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
