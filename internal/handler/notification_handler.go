package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

// trackingPixelGIF is a transparent 1x1 GIF, served on every tracking
// request so broken lookups never break email clients.
var trackingPixelGIF, _ = base64.StdEncoding.DecodeString(
	"R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7",
)

type NotificationHandler struct {
	store           repository.NotificationRepository
	logger          *zap.Logger
	trackingBaseURL string
	now             func() time.Time
	newTrackingID   func() string
}

func NewNotificationHandler(store repository.NotificationRepository, trackingBaseURL string, logger *zap.Logger) (*NotificationHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationHandler{
		store:           store,
		logger:          logger,
		trackingBaseURL: trackingBaseURL,
		now:             time.Now,
		newTrackingID:   uuid.NewString,
	}, nil
}

func RegisterNotificationRoutes(router fiber.Router, store repository.NotificationRepository, trackingBaseURL string, logger *zap.Logger) error {
	h, err := NewNotificationHandler(store, trackingBaseURL, logger)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications/user/:userId", h.ListUserNotifications)
	v1.Patch("/notifications/user/:userId/read", h.MarkRead)

	// The pixel endpoint is referenced from email bodies, outside /v1.
	router.Get("/notifications/track/:trackingId", h.TrackOpen)

	return nil
}

type createNotificationRequest struct {
	UserID   string         `json:"userId"`
	Email    string         `json:"email"`
	Type     string         `json:"type"`
	Content  domain.Payload `json:"content"`
	Priority string         `json:"priority"`
	Metadata domain.Payload `json:"metadata"`
}

type notificationResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Email     string          `json:"email,omitempty"`
	Type      domain.Type     `json:"type"`
	Content   domain.Payload  `json:"content"`
	Priority  domain.Priority `json:"priority"`
	Metadata  domain.Payload  `json:"metadata,omitempty"`
	EmailSent bool            `json:"emailSent"`
	Read      bool            `json:"read"`
	SentAt    *time.Time      `json:"sentAt,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type createNotificationResponse struct {
	Message      string               `json:"message"`
	Notification notificationResponse `json:"notification"`
	TrackingURL  string               `json:"trackingUrl,omitempty"`
}

type listNotificationsResponse struct {
	Results    []notificationResponse `json:"results"`
	Pagination paginationMeta         `json:"pagination"`
}

type paginationMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int64 `json:"totalPages"`
}

type markReadRequest struct {
	Priority        string   `json:"priority"`
	NotificationIDs []string `json:"notificationIds"`
}

type markReadResponse struct {
	Message      string `json:"message"`
	UpdatedCount int64  `json:"updatedCount"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notification, trackingID, err := h.requestToDomain(req)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.store.Create(c.Context(), notification); err != nil {
		return toHTTPError(err)
	}

	resp := createNotificationResponse{
		Message:      "Notification created successfully",
		Notification: toNotificationResponse(*notification),
	}
	if trackingID != "" && h.trackingBaseURL != "" {
		resp.TrackingURL = fmt.Sprintf("%s/notifications/track/%s", h.trackingBaseURL, trackingID)
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *NotificationHandler) ListUserNotifications(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "userId is required")
	}

	params := repository.ListParams{
		UserID:   userID,
		Page:     parsePositiveInt(c.Query("page"), defaultPage),
		PageSize: parsePositiveInt(c.Query("limit"), defaultPageSize),
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	if raw := c.Query("priority"); raw != "" {
		priority, err := domain.ParsePriorityFromString(raw)
		if err != nil {
			return toHTTPError(err)
		}
		params.Priority = &priority
	}
	if raw := c.Query("read"); raw != "" {
		read := raw == "true"
		params.Read = &read
	}

	notifications, total, err := h.store.ListByUser(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	results := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		results = append(results, toNotificationResponse(n))
	}

	totalPages := total / int64(params.PageSize)
	if total%int64(params.PageSize) != 0 {
		totalPages++
	}

	return c.JSON(listNotificationsResponse{
		Results: results,
		Pagination: paginationMeta{
			Total:      total,
			Page:       params.Page,
			Limit:      params.PageSize,
			TotalPages: totalPages,
		},
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "userId is required")
	}

	var req markReadRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	params := repository.ReadParams{
		UserID: userID,
		IDs:    req.NotificationIDs,
	}
	for _, id := range req.NotificationIDs {
		if _, err := uuid.Parse(id); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid notification IDs provided")
		}
	}
	if req.Priority != "" {
		priority, err := domain.ParsePriorityFromString(req.Priority)
		if err != nil {
			return toHTTPError(err)
		}
		params.Priority = &priority
	}

	updated, err := h.store.MarkRead(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(markReadResponse{
		Message:      "Notifications marked as read",
		UpdatedCount: updated,
	})
}

// TrackOpen marks the notification behind a tracking pixel as read. The
// pixel is returned no matter what so email clients never see an error.
func (h *NotificationHandler) TrackOpen(c *fiber.Ctx) error {
	trackingID := c.Params("trackingId")

	if trackingID != "" {
		matched, err := h.store.MarkReadByTrackingID(c.Context(), trackingID)
		if err != nil {
			h.logger.Error("failed to track email open",
				zap.String("trackingId", trackingID),
				zap.Error(err),
			)
		} else if !matched {
			h.logger.Warn("no notification for tracking id",
				zap.String("trackingId", trackingID),
			)
		}
	}

	c.Set(fiber.HeaderContentType, "image/gif")
	c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate, proxy-revalidate")
	c.Set("Pragma", "no-cache")
	c.Set("Expires", "0")
	return c.Status(fiber.StatusOK).Send(trackingPixelGIF)
}

func (h *NotificationHandler) requestToDomain(req createNotificationRequest) (*domain.Notification, string, error) {
	typ, err := domain.ParseTypeFromString(req.Type)
	if err != nil {
		return nil, "", err
	}

	priority := domain.PriorityStandard
	if req.Priority != "" {
		priority, err = domain.ParsePriorityFromString(req.Priority)
		if err != nil {
			return nil, "", err
		}
	}
	if len(req.Content) == 0 {
		return nil, "", fmt.Errorf("%w: notification content is required", domain.ErrValidation)
	}

	metadata := domain.Payload{}
	for key, value := range req.Metadata {
		metadata[key] = value
	}

	trackingID := ""
	if typ == domain.TypeEmail {
		trackingID = h.newTrackingID()
		metadata["trackingId"] = trackingID
	}

	notification := &domain.Notification{
		UserID:   req.UserID,
		Email:    req.Email,
		Type:     typ,
		Content:  req.Content,
		Priority: priority,
		Metadata: metadata,
	}
	if err := notification.Validate(); err != nil {
		return nil, "", err
	}

	return notification, trackingID, nil
}

func toNotificationResponse(n domain.Notification) notificationResponse {
	return notificationResponse{
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
	}
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
