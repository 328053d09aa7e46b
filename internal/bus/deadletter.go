package bus

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"go.uber.org/zap"
)

// Envelope is the dead-letter message value. OriginalMessage is base64 so the
// raw payload survives transport regardless of its encoding.
type Envelope struct {
	OriginalMessage string           `json:"originalMessage"`
	Metadata        EnvelopeMetadata `json:"metadata"`
	Timestamp       time.Time        `json:"timestamp"`
}

type EnvelopeMetadata struct {
	OriginalTopic string `json:"originalTopic"`
	Partition     int    `json:"partition"`
	Offset        int64  `json:"offset"`
	Reason        string `json:"reason"`
}

// DecodeOriginal returns the raw payload carried by the envelope.
func (e Envelope) DecodeOriginal() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.OriginalMessage)
}

// DeadLetterEscalator publishes exhausted messages to the dead-letter topic.
// It sits at the end of the failure-handling chain: a failed escalation is
// logged and dropped, never raised to the caller.
type DeadLetterEscalator struct {
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
	onEscalated func(topic string)
}

func NewDeadLetterEscalator(publisher Publisher, logger *zap.Logger) (*DeadLetterEscalator, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeadLetterEscalator{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// SetOnEscalated registers an observer called once per published envelope.
func (e *DeadLetterEscalator) SetOnEscalated(fn func(topic string)) {
	if e == nil {
		return
	}
	e.onEscalated = fn
}

// Escalate publishes one envelope for the failed message, keyed
// "{topic}-{partition}-{offset}" so operators can trace it back.
func (e *DeadLetterEscalator) Escalate(ctx context.Context, coords domain.Coordinates, raw []byte, reason string) {
	if e == nil || e.publisher == nil {
		return
	}
	if reason == "" {
		reason = "unknown error"
	}

	envelope := Envelope{
		OriginalMessage: base64.StdEncoding.EncodeToString(raw),
		Metadata: EnvelopeMetadata{
			OriginalTopic: coords.Topic,
			Partition:     coords.Partition,
			Offset:        coords.Offset,
			Reason:        reason,
		},
		Timestamp: e.now().UTC(),
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		e.logger.Error("failed to encode dead-letter envelope",
			zap.String("topic", coords.Topic),
			zap.String("key", coords.Key()),
			zap.Error(err),
		)
		return
	}

	if err := e.publisher.Publish(ctx, TopicDeadLetter, []byte(coords.Key()), value); err != nil {
		e.logger.Error("failed to publish dead-letter envelope",
			zap.String("topic", coords.Topic),
			zap.String("key", coords.Key()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}

	if e.onEscalated != nil {
		e.onEscalated(coords.Topic)
	}

	e.logger.Warn("message escalated to dead-letter queue",
		zap.String("topic", coords.Topic),
		zap.String("key", coords.Key()),
		zap.String("reason", reason),
	)
}
