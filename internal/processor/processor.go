package processor

import (
	"context"
	"errors"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/email"
)

// errSkipEvent marks an event that needs no notification, such as an
// opted-out recipient. Skipped events are committed without retrying.
var errSkipEvent = errors.New("event skipped")

// Result is the terminal outcome of processing one message.
type Result int

const (
	// ResultProcessed means a notification was created for the event.
	ResultProcessed Result = iota
	// ResultSkipped means the event needed no notification.
	ResultSkipped
	// ResultRejected means the event failed validation and will never
	// succeed. The consumer loop escalates it without retrying.
	ResultRejected
	// ResultDeadLettered means retries were exhausted and the event was
	// already escalated to the dead letter topic.
	ResultDeadLettered
	// ResultAborted means the context ended mid-retry. The message stays
	// uncommitted and is redelivered after rebalance.
	ResultAborted
)

func (r Result) String() string {
	switch r {
	case ResultProcessed:
		return "processed"
	case ResultSkipped:
		return "skipped"
	case ResultRejected:
		return "rejected"
	case ResultDeadLettered:
		return "dead_lettered"
	case ResultAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Handled reports whether the event reached a terminal state that should
// advance the consumer offset. Rejected and dead-lettered events are handled
// too, once their escalation is done.
func (r Result) Handled() bool {
	return r != ResultAborted
}

// Processor consumes raw messages from one topic.
type Processor interface {
	Topic() string
	Process(ctx context.Context, raw []byte, coords domain.Coordinates) Result
}

// NotificationStore is the slice of the repository the processors need.
type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
	SetTrackingID(ctx context.Context, id string, trackingID string) error
}

// UserResolver looks event subjects up in the user directory.
type UserResolver interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// EmailDispatcher sends notification emails.
type EmailDispatcher interface {
	Dispatch(ctx context.Context, userID string, subject string, typ domain.Type, content domain.Payload) (*email.DispatchResult, error)
	DispatchToAddress(ctx context.Context, address string, name string, subject string, typ domain.Type, content domain.Payload) (*email.DispatchResult, error)
}

// Escalator pushes exhausted events to the dead letter topic.
type Escalator interface {
	Escalate(ctx context.Context, coords domain.Coordinates, raw []byte, reason string)
}
