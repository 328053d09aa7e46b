package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"github.com/kursadbilgin/notification-pipeline/internal/transport"
	"go.uber.org/zap"
)

type fakeRepo struct {
	createFn         func(ctx context.Context, n *domain.Notification) error
	listByUserFn     func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	markReadFn       func(ctx context.Context, params repository.ReadParams) (int64, error)
	markReadByTIDFn  func(ctx context.Context, trackingID string) (bool, error)
	created          []*domain.Notification
	trackedTrackings []string
}

func (f *fakeRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, n); err != nil {
			return err
		}
	}
	n.ID = "11111111-1111-1111-1111-111111111111"
	n.CreatedAt = time.Unix(1_700_000_000, 0)
	f.created = append(f.created, n)
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) ListByUser(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	if f.listByUserFn != nil {
		return f.listByUserFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeRepo) FindPendingEmail(ctx context.Context, typ domain.Type, limit int) ([]domain.Notification, error) {
	return nil, nil
}

func (f *fakeRepo) MarkEmailSent(ctx context.Context, id string, at time.Time) error { return nil }

func (f *fakeRepo) MarkSkipped(ctx context.Context, id string, at time.Time) error { return nil }

func (f *fakeRepo) MarkRead(ctx context.Context, params repository.ReadParams) (int64, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, params)
	}
	return 0, nil
}

func (f *fakeRepo) MarkReadByTrackingID(ctx context.Context, trackingID string) (bool, error) {
	f.trackedTrackings = append(f.trackedTrackings, trackingID)
	if f.markReadByTIDFn != nil {
		return f.markReadByTIDFn(ctx, trackingID)
	}
	return true, nil
}

func (f *fakeRepo) SetTrackingID(ctx context.Context, id string, trackingID string) error {
	return nil
}

func newTestApp(t *testing.T, repo repository.NotificationRepository) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	if err := RegisterNotificationRoutes(app, repo, "https://notify.example.com", zap.NewNop()); err != nil {
		t.Fatalf("RegisterNotificationRoutes() error = %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method string, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestCreateNotification(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	app := newTestApp(t, repo)

	resp := doJSON(t, app, fiber.MethodPost, "/v1/notifications", fiber.Map{
		"userId":  "user-1",
		"type":    "order_update",
		"content": fiber.Map{"orderId": "o-1"},
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusCreated)
	}

	body := decodeJSON[createNotificationResponse](t, resp)
	if body.Notification.ID == "" {
		t.Fatal("expected a persisted notification id")
	}
	if body.Notification.Priority != domain.PriorityStandard {
		t.Fatalf("priority = %v, want default standard", body.Notification.Priority)
	}
	if body.TrackingURL != "" {
		t.Fatal("only email notifications carry a tracking url")
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d notifications, want 1", len(repo.created))
	}
}

func TestCreateNotificationEmailGetsTrackingURL(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	app := newTestApp(t, repo)

	resp := doJSON(t, app, fiber.MethodPost, "/v1/notifications", fiber.Map{
		"userId":  "user-1",
		"type":    "email",
		"content": fiber.Map{"subject": "hi"},
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusCreated)
	}

	body := decodeJSON[createNotificationResponse](t, resp)
	trackingID, _ := repo.created[0].Metadata["trackingId"].(string)
	if trackingID == "" {
		t.Fatal("expected a trackingId in the persisted metadata")
	}
	want := "https://notify.example.com/notifications/track/" + trackingID
	if body.TrackingURL != want {
		t.Fatalf("trackingUrl = %q, want %q", body.TrackingURL, want)
	}
}

func TestCreateNotificationValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body fiber.Map
	}{
		{name: "missing userId", body: fiber.Map{"type": "promotion", "content": fiber.Map{"m": 1}}},
		{name: "invalid type", body: fiber.Map{"userId": "u1", "type": "nope", "content": fiber.Map{"m": 1}}},
		{name: "missing content", body: fiber.Map{"userId": "u1", "type": "promotion"}},
		{name: "invalid priority", body: fiber.Map{"userId": "u1", "type": "promotion", "content": fiber.Map{"m": 1}, "priority": "urgent"}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := &fakeRepo{}
			app := newTestApp(t, repo)

			resp := doJSON(t, app, fiber.MethodPost, "/v1/notifications", tc.body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusBadRequest)
			}
			if len(repo.created) != 0 {
				t.Fatal("nothing should be persisted")
			}
		})
	}
}

func TestListUserNotifications(t *testing.T) {
	t.Parallel()

	var gotParams repository.ListParams
	repo := &fakeRepo{
		listByUserFn: func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
			gotParams = params
			return []domain.Notification{
				{ID: "n1", UserID: params.UserID, Type: domain.TypePromotion, Priority: domain.PriorityStandard},
			}, 7, nil
		},
	}
	app := newTestApp(t, repo)

	resp := doJSON(t, app, fiber.MethodGet, "/v1/notifications/user/user-1?priority=standard&read=false&page=2&limit=3", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}

	if gotParams.UserID != "user-1" || gotParams.Page != 2 || gotParams.PageSize != 3 {
		t.Fatalf("params = %+v", gotParams)
	}
	if gotParams.Priority == nil || *gotParams.Priority != domain.PriorityStandard {
		t.Fatalf("priority filter = %v", gotParams.Priority)
	}
	if gotParams.Read == nil || *gotParams.Read != false {
		t.Fatalf("read filter = %v", gotParams.Read)
	}

	body := decodeJSON[listNotificationsResponse](t, resp)
	if len(body.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(body.Results))
	}
	if body.Pagination.Total != 7 || body.Pagination.TotalPages != 3 {
		t.Fatalf("pagination = %+v", body.Pagination)
	}
}

func TestMarkRead(t *testing.T) {
	t.Parallel()

	var gotParams repository.ReadParams
	repo := &fakeRepo{
		markReadFn: func(ctx context.Context, params repository.ReadParams) (int64, error) {
			gotParams = params
			return 2, nil
		},
	}
	app := newTestApp(t, repo)

	resp := doJSON(t, app, fiber.MethodPatch, "/v1/notifications/user/user-1/read", fiber.Map{
		"priority":        "critical",
		"notificationIds": []string{"11111111-1111-1111-1111-111111111111"},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}

	body := decodeJSON[markReadResponse](t, resp)
	if body.UpdatedCount != 2 {
		t.Fatalf("updatedCount = %d, want 2", body.UpdatedCount)
	}
	if gotParams.Priority == nil || *gotParams.Priority != domain.PriorityCritical {
		t.Fatalf("priority = %v", gotParams.Priority)
	}
	if len(gotParams.IDs) != 1 {
		t.Fatalf("ids = %v", gotParams.IDs)
	}
}

func TestMarkReadInvalidIDs(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, &fakeRepo{})

	resp := doJSON(t, app, fiber.MethodPatch, "/v1/notifications/user/user-1/read", fiber.Map{
		"notificationIds": []string{"not-a-uuid"},
	})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusBadRequest)
	}
}

func TestTrackOpenReturnsPixel(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	app := newTestApp(t, repo)

	resp := doJSON(t, app, fiber.MethodGet, "/notifications/track/track-1", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/gif" {
		t.Fatalf("content type = %q", got)
	}
	if got := resp.Header.Get("Cache-Control"); got == "" {
		t.Fatal("expected no-cache headers")
	}

	pixel, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(pixel, trackingPixelGIF) {
		t.Fatal("body should be the transparent pixel")
	}

	if len(repo.trackedTrackings) != 1 || repo.trackedTrackings[0] != "track-1" {
		t.Fatalf("tracked = %v", repo.trackedTrackings)
	}
}

func TestTrackOpenUnknownIDStillReturnsPixel(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{
		markReadByTIDFn: func(ctx context.Context, trackingID string) (bool, error) {
			return false, nil
		},
	}
	app := newTestApp(t, repo)

	resp := doJSON(t, app, fiber.MethodGet, "/notifications/track/unknown", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}

	pixel, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(pixel, trackingPixelGIF) {
		t.Fatal("an unknown tracking id still gets the pixel")
	}
}

func TestTrackOpenStoreErrorStillReturnsPixel(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{
		markReadByTIDFn: func(ctx context.Context, trackingID string) (bool, error) {
			return false, errors.New("db down")
		},
	}
	app := newTestApp(t, repo)

	resp := doJSON(t, app, fiber.MethodGet, "/notifications/track/track-1", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}

	pixel, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(pixel, trackingPixelGIF) {
		t.Fatal("a store failure must not break the pixel response")
	}
}
