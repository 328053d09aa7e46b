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

// RecommendationProcessor persists recommendation notifications for the
// scheduled flusher to email later. Recipients who opted out of
// recommendations are skipped without a record.
type RecommendationProcessor struct {
	store     NotificationStore
	directory UserResolver
	retry     retrier
	logger    *zap.Logger
}

func NewRecommendationProcessor(
	store NotificationStore,
	directory UserResolver,
	escalator Escalator,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RecommendationProcessor {
	return &RecommendationProcessor{
		store:     store,
		directory: directory,
		retry: newRetrier(
			RetryPolicy{MaxRetries: 3, BaseDelay: time.Second},
			escalator,
			metrics,
			logger,
		),
		logger: logger,
	}
}

func (p *RecommendationProcessor) Topic() string { return bus.TopicRecommendationEvents }

func (p *RecommendationProcessor) Process(ctx context.Context, raw []byte, coords domain.Coordinates) Result {
	var event domain.RecommendationEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		p.logger.Warn("malformed recommendation event", zap.String("key", coords.Key()), zap.Error(err))
		return ResultRejected
	}
	if err := event.Validate(); err != nil {
		p.logger.Warn("invalid recommendation event", zap.String("key", coords.Key()), zap.Error(err))
		return ResultRejected
	}

	return p.retry.run(ctx, coords, raw, func(ctx context.Context, retryCount int) error {
		return p.handle(ctx, event)
	})
}

func (p *RecommendationProcessor) handle(ctx context.Context, event domain.RecommendationEvent) error {
	user, err := p.directory.GetUser(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("failed to retrieve user %s: %w", event.UserID, err)
	}
	if !user.HasValidEmail() {
		return fmt.Errorf("invalid or missing email for user %s", event.UserID)
	}
	if !user.Preferences.RecommendationsEnabled() {
		return fmt.Errorf("%w: user %s opted out of recommendations", errSkipEvent, event.UserID)
	}

	source := event.Type
	if source == "" {
		source = "RECOMMENDATIONS"
	}

	// EmailSent stays false and SentAt stays unset so the flush job picks
	// the record up on its next run.
	notification := &domain.Notification{
		UserID:   event.UserID,
		Email:    user.Email,
		Type:     domain.TypeRecommendation,
		Content: domain.Payload{
			"recommendations": event.Recommendations,
			"timestamp":       event.Timestamp,
		},
		Priority: domain.PriorityStandard,
		Metadata: domain.Payload{
			"recommendationSource": source,
			"generatedAt":          event.Timestamp,
		},
	}
	if err := p.store.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to persist recommendation notification: %w", err)
	}
	return nil
}
