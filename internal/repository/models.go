package repository

import (
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID        string          `gorm:"type:uuid;primaryKey"`
	UserID    string          `gorm:"type:varchar(64);not null;index"`
	Email     string          `gorm:"type:varchar(255)"`
	Type      domain.Type     `gorm:"type:varchar(20);not null"`
	Content   domain.Payload  `gorm:"type:jsonb;not null"`
	Priority  domain.Priority `gorm:"type:varchar(10);not null"`
	Metadata  domain.Payload  `gorm:"type:jsonb;not null;default:'{}'"`
	EmailSent bool            `gorm:"not null;default:false"`
	Read      bool            `gorm:"not null;default:false;index"`
	SentAt    *time.Time      `gorm:"type:timestamptz;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:        n.ID,
		UserID:    n.UserID,
		Email:     n.Email,
		Type:      n.Type,
		Content:   n.Content,
		Priority:  n.Priority,
		Metadata:  n.Metadata,
		EmailSent: n.EmailSent,
		Read:      n.Read,
		SentAt:    n.SentAt,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:        m.ID,
		UserID:    m.UserID,
		Email:     m.Email,
		Type:      m.Type,
		Content:   m.Content,
		Priority:  m.Priority,
		Metadata:  m.Metadata,
		EmailSent: m.EmailSent,
		Read:      m.Read,
		SentAt:    m.SentAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
