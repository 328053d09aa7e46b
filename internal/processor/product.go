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

// ProductProcessor turns product-events into standard promotion
// notifications. The event carries the recipient email inline, so the
// directory is not consulted.
type ProductProcessor struct {
	store      NotificationStore
	dispatcher EmailDispatcher
	retry      retrier
	logger     *zap.Logger
	now        func() time.Time
}

func NewProductProcessor(
	store NotificationStore,
	dispatcher EmailDispatcher,
	escalator Escalator,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ProductProcessor {
	return &ProductProcessor{
		store:      store,
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

func (p *ProductProcessor) Topic() string { return bus.TopicProductEvents }

func (p *ProductProcessor) Process(ctx context.Context, raw []byte, coords domain.Coordinates) Result {
	var event domain.ProductEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		p.logger.Warn("malformed product event", zap.String("key", coords.Key()), zap.Error(err))
		return ResultRejected
	}
	if err := event.Validate(); err != nil {
		p.logger.Warn("invalid product event", zap.String("key", coords.Key()), zap.Error(err))
		return ResultRejected
	}

	return p.retry.run(ctx, coords, raw, func(ctx context.Context, retryCount int) error {
		return p.handle(ctx, event, retryCount)
	})
}

func (p *ProductProcessor) handle(ctx context.Context, event domain.ProductEvent, retryCount int) error {
	name := "Valued Customer"
	if v, ok := event.Details["name"].(string); ok && v != "" {
		name = v
	}
	message := "Promotional event processed"
	if v, ok := event.Details["message"].(string); ok && v != "" {
		message = v
	}

	content := domain.Payload{
		"message":   message,
		"eventType": event.EventType,
		"name":      name,
	}

	batchID := fmt.Sprintf("RETRY_%d", p.now().UnixMilli())
	if v, ok := event.Metadata["batchId"].(string); ok && v != "" {
		batchID = v
	}

	sentAt := p.now()
	notification := &domain.Notification{
		UserID:   event.UserID,
		Email:    event.Email,
		Type:     domain.TypePromotion,
		Content:  content,
		Priority: domain.PriorityStandard,
		Metadata: domain.Payload{
			"batchId":     batchID,
			"isAutomated": true,
			"retryCount":  retryCount,
		},
		SentAt: &sentAt,
	}
	if err := p.store.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to persist promotion notification: %w", err)
	}

	subject := fmt.Sprintf("Special Promotion Just for You, %s!", name)
	result, err := p.dispatcher.DispatchToAddress(ctx, event.Email, name, subject, domain.TypePromotion, content)
	if err != nil {
		p.logger.Error("promotion email failed",
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
