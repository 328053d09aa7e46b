package bus

import (
	"context"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
)

// Topics consumed and produced by the pipeline.
const (
	TopicUserEvents           = "user-events"
	TopicOrderEvents          = "order-events"
	TopicProductEvents        = "product-events"
	TopicRecommendationEvents = "recommendation-events"
	TopicDeadLetter           = "dead-letter-queue"
)

// Message is one consumed bus record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// Coordinates returns the replay coordinates of the message.
func (m Message) Coordinates() domain.Coordinates {
	return domain.Coordinates{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
	}
}

// Publisher publishes messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

// Consumer fetches messages for a consumer group. Commit must only be called
// after the message has been fully handled; that is what makes delivery
// at-least-once across restarts.
type Consumer interface {
	Fetch(ctx context.Context) (Message, error)
	Commit(ctx context.Context, msg Message) error
	Close() error
}
