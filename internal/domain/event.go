package domain

import (
	"fmt"
	"strings"
)

// Coordinates locate a message on the bus. They are sufficient to find and
// replay the original message from a dead-letter envelope.
type Coordinates struct {
	Topic     string
	Partition int
	Offset    int64
}

// Key is the dead-letter message key for these coordinates.
func (c Coordinates) Key() string {
	return fmt.Sprintf("%s-%d-%d", c.Topic, c.Partition, c.Offset)
}

// UserEvent is a user-events message body.
type UserEvent struct {
	UserID     string  `json:"userId"`
	EventType  string  `json:"eventType,omitempty"`
	UpdateType string  `json:"updateType,omitempty"`
	Details    Payload `json:"details,omitempty"`
}

func (e UserEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("%w: user event is missing userId", ErrValidation)
	}
	return nil
}

// OrderEvent is an order-events message body.
type OrderEvent struct {
	UserID    string  `json:"userId"`
	OrderID   string  `json:"orderId,omitempty"`
	EventType string  `json:"eventType,omitempty"`
	Details   Payload `json:"details,omitempty"`
}

func (e OrderEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("%w: order event is missing userId", ErrValidation)
	}
	return nil
}

// ProductEvent is a product-events message body. It carries the recipient
// email inline because upstream resolves it at publish time.
type ProductEvent struct {
	UserID    string  `json:"userId"`
	Email     string  `json:"email,omitempty"`
	EventType string  `json:"eventType,omitempty"`
	Details   Payload `json:"details,omitempty"`
	Metadata  Payload `json:"metadata,omitempty"`
}

func (e ProductEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("%w: product event is missing userId", ErrValidation)
	}
	return nil
}

// RecommendedProduct is one entry of a recommendation event. Price is a
// pointer so a missing field can be told apart from a zero price.
type RecommendedProduct struct {
	ProductID string   `json:"productId"`
	Name      string   `json:"name"`
	Price     *float64 `json:"price"`
	Category  string   `json:"category"`
}

// RecommendationEvent is a recommendation-events message body.
type RecommendationEvent struct {
	UserID          string               `json:"userId"`
	Type            string               `json:"type,omitempty"`
	Recommendations []RecommendedProduct `json:"recommendations"`
	Timestamp       string               `json:"timestamp,omitempty"`
}

func (e RecommendationEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("%w: recommendation event is missing userId", ErrValidation)
	}
	if len(e.Recommendations) == 0 {
		return fmt.Errorf("%w: recommendation event has no recommendations", ErrValidation)
	}
	for i, rec := range e.Recommendations {
		if strings.TrimSpace(rec.ProductID) == "" {
			return fmt.Errorf("%w: recommendation %d is missing productId", ErrValidation, i)
		}
		if strings.TrimSpace(rec.Name) == "" {
			return fmt.Errorf("%w: recommendation %d is missing name", ErrValidation, i)
		}
		if rec.Price == nil {
			return fmt.Errorf("%w: recommendation %d is missing price", ErrValidation, i)
		}
		if strings.TrimSpace(rec.Category) == "" {
			return fmt.Errorf("%w: recommendation %d is missing category", ErrValidation, i)
		}
	}
	return nil
}
