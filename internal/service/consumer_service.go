package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-pipeline/internal/bus"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"github.com/kursadbilgin/notification-pipeline/internal/processor"
	"go.uber.org/zap"
)

// ConsumerService drains one consumer group, routing each message to its
// topic's processor. Offsets are committed only after the processor reaches a
// terminal result, so an in-flight crash redelivers the message.
type ConsumerService struct {
	consumer      bus.Consumer
	processors    map[string]processor.Processor
	escalator     processor.Escalator
	failureReason string
	metrics       *observability.Metrics
	logger        *zap.Logger
}

func NewConsumerService(
	consumer bus.Consumer,
	processors []processor.Processor,
	escalator processor.Escalator,
	failureReason string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*ConsumerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if len(processors) == 0 {
		return nil, fmt.Errorf("at least one processor is required")
	}
	if escalator == nil {
		return nil, fmt.Errorf("escalator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byTopic := make(map[string]processor.Processor, len(processors))
	for _, p := range processors {
		if _, exists := byTopic[p.Topic()]; exists {
			return nil, fmt.Errorf("duplicate processor for topic %s", p.Topic())
		}
		byTopic[p.Topic()] = p
	}

	return &ConsumerService{
		consumer:      consumer,
		processors:    byTopic,
		escalator:     escalator,
		failureReason: failureReason,
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Start fetches and processes messages until context cancellation.
func (s *ConsumerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		msg, err := s.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		s.handleMessage(ctx, msg)

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *ConsumerService) handleMessage(ctx context.Context, msg bus.Message) {
	coords := msg.Coordinates()
	ctx = observability.WithEventKey(ctx, coords.Key())
	logger := observability.WithContextLogger(s.logger, ctx)

	if len(msg.Value) == 0 {
		logger.Warn("empty message body, committing")
		s.commit(ctx, msg, logger)
		return
	}

	proc, ok := s.processors[msg.Topic]
	if !ok {
		// Should not happen with matching group topics, but a stuck
		// partition is worse than a dropped message here.
		logger.Error("no processor registered for topic", zap.String("topic", msg.Topic))
		s.commit(ctx, msg, logger)
		return
	}

	result := proc.Process(ctx, msg.Value, coords)
	s.metrics.IncEventProcessed(msg.Topic, result.String())

	if result == processor.ResultRejected {
		s.escalator.Escalate(ctx, coords, msg.Value, s.failureReason)
	}

	if !result.Handled() {
		logger.Warn("processing aborted, leaving message uncommitted")
		return
	}

	s.commit(ctx, msg, logger)
}

func (s *ConsumerService) commit(ctx context.Context, msg bus.Message, logger *zap.Logger) {
	if err := s.consumer.Commit(ctx, msg); err != nil && ctx.Err() == nil {
		// The message will be redelivered and processed again.
		logger.Error("failed to commit offset", zap.Error(err))
	}
}
