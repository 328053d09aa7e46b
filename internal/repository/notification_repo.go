package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"gorm.io/gorm"
)

// ListParams filter a user's notification listing.
type ListParams struct {
	UserID   string
	Priority *domain.Priority
	Read     *bool
	Page     int
	PageSize int
}

// ReadParams scope a mark-read update. Empty IDs means all unread
// notifications of the user (optionally narrowed by priority).
type ReadParams struct {
	UserID   string
	IDs      []string
	Priority *domain.Priority
}

// NotificationRepository is the Notification Store contract. Creation is
// append-only; updates touch only read/emailSent/sentAt/metadata.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ListByUser(ctx context.Context, params ListParams) ([]domain.Notification, int64, error)
	FindPendingEmail(ctx context.Context, typ domain.Type, limit int) ([]domain.Notification, error)
	MarkEmailSent(ctx context.Context, id string, at time.Time) error
	MarkSkipped(ctx context.Context, id string, at time.Time) error
	MarkRead(ctx context.Context, params ReadParams) (int64, error)
	MarkReadByTrackingID(ctx context.Context, trackingID string) (bool, error)
	SetTrackingID(ctx context.Context, id string, trackingID string) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) ListByUser(ctx context.Context, params ListParams) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationModel{}).Where("user_id = ?", params.UserID)

	if params.Priority != nil {
		query = query.Where("priority = ?", *params.Priority)
	}
	if params.Read != nil {
		query = query.Where("read = ?", *params.Read)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	return modelsToDomain(models), total, nil
}

// FindPendingEmail returns notifications that still await email dispatch:
// never sent and never intentionally skipped (sent_at is the skip marker).
func (r *GormNotificationRepo) FindPendingEmail(ctx context.Context, typ domain.Type, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 10
	}

	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("type = ? AND email_sent = ? AND sent_at IS NULL", typ, false).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return modelsToDomain(models), nil
}

func (r *GormNotificationRepo) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"email_sent": true,
			"sent_at":    at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkSkipped records an intentional non-send (recipient opted out): sent_at
// is set so the flush job stops picking the record up, email_sent stays false.
func (r *GormNotificationRepo) MarkSkipped(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("sent_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) MarkRead(ctx context.Context, params ReadParams) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("user_id = ? AND read = ?", params.UserID, false)

	if len(params.IDs) > 0 {
		query = query.Where("id IN ?", params.IDs)
	}
	if params.Priority != nil {
		query = query.Where("priority = ?", *params.Priority)
	}

	result := query.Updates(map[string]any{
		"read":     true,
		"metadata": gorm.Expr(`jsonb_set(metadata, '{readAt}', to_jsonb(?::text))`, time.Now().UTC().Format(time.RFC3339)),
	})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// MarkReadByTrackingID flips read via the tracking-pixel fetch. An unknown
// tracking id is not an error; the pixel endpoint responds identically either
// way.
func (r *GormNotificationRepo) MarkReadByTrackingID(ctx context.Context, trackingID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("metadata->>'trackingId' = ?", trackingID).
		Updates(map[string]any{
			"read":     true,
			"metadata": gorm.Expr(`jsonb_set(metadata, '{readAt}', to_jsonb(?::text))`, time.Now().UTC().Format(time.RFC3339)),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormNotificationRepo) SetTrackingID(ctx context.Context, id string, trackingID string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("metadata", gorm.Expr(`jsonb_set(metadata, '{trackingId}', to_jsonb(?::text))`, trackingID))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func modelsToDomain(models []NotificationModel) []domain.Notification {
	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}
	return notifications
}
