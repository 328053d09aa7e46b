package bus

import (
	"context"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// GroupConfig tunes one consumer group. The high-priority group runs tighter
// session/heartbeat timeouts than the standard one.
type GroupConfig struct {
	GroupID           string
	Topics            []string
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// HighPriorityGroup subscribes to user and order events.
func HighPriorityGroup(sessionTimeout, heartbeatInterval time.Duration) GroupConfig {
	return GroupConfig{
		GroupID:           "priority1-notification-group",
		Topics:            []string{TopicUserEvents, TopicOrderEvents},
		SessionTimeout:    sessionTimeout,
		HeartbeatInterval: heartbeatInterval,
	}
}

// StandardPriorityGroup subscribes to product and recommendation events.
func StandardPriorityGroup(sessionTimeout, heartbeatInterval time.Duration) GroupConfig {
	return GroupConfig{
		GroupID:           "priority2-notification-group",
		Topics:            []string{TopicProductEvents, TopicRecommendationEvents},
		SessionTimeout:    sessionTimeout,
		HeartbeatInterval: heartbeatInterval,
	}
}

// KafkaConsumer wraps a kafka-go group reader. Fetch/Commit are split so the
// caller controls when the offset advances; the reader itself never
// auto-commits.
type KafkaConsumer struct {
	reader *kafka.Reader
}

func NewKafkaConsumer(brokers []string, cfg GroupConfig) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("consumer group id is required")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("consumer group topics are required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           cfg.GroupID,
		GroupTopics:       cfg.Topics,
		SessionTimeout:    cfg.SessionTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		StartOffset:       kafka.LastOffset,
		// One uncommitted message at a time: prefetch only what one
		// synchronous handling step can consume.
		QueueCapacity: 1,
	})

	return &KafkaConsumer{reader: reader}, nil
}

func (c *KafkaConsumer) Fetch(ctx context.Context) (Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Time:      msg.Time,
	}, nil
}

func (c *KafkaConsumer) Commit(ctx context.Context, msg Message) error {
	return c.reader.CommitMessages(ctx, kafka.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	})
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

// KafkaPublisher wraps a kafka-go writer shared across topics.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}

	return &KafkaPublisher{writer: writer}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message to topic %q: %w", topic, err)
	}

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
