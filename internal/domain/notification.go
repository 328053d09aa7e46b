package domain

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type determines the email template and dispatch triggers of a notification.
type Type string

const (
	TypePromotion      Type = "promotion"
	TypeOrderUpdate    Type = "order_update"
	TypeRecommendation Type = "recommendation"
	TypeUserUpdate     Type = "user_update"
	TypeEmail          Type = "email"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case TypePromotion, TypeOrderUpdate, TypeRecommendation, TypeUserUpdate, TypeEmail:
		return true
	}
	return false
}

func ParseTypeFromString(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return t, nil
}

// Priority is a routing tag carried on each notification. It mirrors the
// consumer group the originating event arrived on; it is not a scheduling
// primitive at this layer.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityStandard Priority = "standard"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityStandard:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return p, nil
}

var (
	_ sql.Scanner   = (*Payload)(nil)
	_ driver.Valuer = Payload{}
)

// Payload is a free-form JSON object stored in a jsonb column.
type Payload map[string]any

func (p *Payload) Scan(value any) error {
	if value == nil {
		*p = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("payload: unsupported scan type %T", value)
	}

	return json.Unmarshal(data, p)
}

func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Notification is the persisted unit of this pipeline. After creation only
// Read, EmailSent, SentAt and Metadata may change; Type and Content never do.
type Notification struct {
	ID        string
	UserID    string
	Email     string
	Type      Type
	Content   Payload
	Priority  Priority
	Metadata  Payload
	EmailSent bool
	Read      bool
	SentAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.Type)
	}
	if !n.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, n.Priority)
	}
	if len(n.Content) == 0 {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	return nil
}
