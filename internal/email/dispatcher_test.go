package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/upstream"
	"go.uber.org/zap"
)

type fakeUserResolver struct {
	getUserFn func(ctx context.Context, userID string) (*domain.User, error)
}

func (f *fakeUserResolver) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return f.getUserFn(ctx, userID)
}

type fakeMailSender struct {
	sendFn func(ctx context.Context, email upstream.Email) (*upstream.SendResult, error)
	sent   []upstream.Email
}

func (f *fakeMailSender) Send(ctx context.Context, email upstream.Email) (*upstream.SendResult, error) {
	f.sent = append(f.sent, email)
	if f.sendFn != nil {
		return f.sendFn(ctx, email)
	}
	return &upstream.SendResult{MessageID: "msg-1"}, nil
}

type fakeThrottle struct {
	waitFn  func(ctx context.Context, stream string) error
	streams []string
}

func (f *fakeThrottle) Wait(ctx context.Context, stream string) error {
	f.streams = append(f.streams, stream)
	if f.waitFn != nil {
		return f.waitFn(ctx, stream)
	}
	return nil
}

func newTestDispatcher(t *testing.T, directory UserResolver, mailer MailSender, throttle MailThrottle) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(
		directory,
		mailer,
		throttle,
		nil,
		zap.NewNop(),
		"noreply@example.com",
		"https://notify.example.com",
	)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	d.newTrackingID = func() string { return "track-123" }
	d.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return d
}

func TestDispatcherDispatch(t *testing.T) {
	t.Parallel()

	directory := &fakeUserResolver{
		getUserFn: func(ctx context.Context, userID string) (*domain.User, error) {
			return &domain.User{ID: userID, Email: "jo@example.com", Name: "Jo"}, nil
		},
	}
	mailer := &fakeMailSender{}
	throttle := &fakeThrottle{}

	d := newTestDispatcher(t, directory, mailer, throttle)

	result, err := d.Dispatch(context.Background(), "user-1", "Order Update", domain.TypeOrderUpdate, domain.Payload{
		"orderId": "order-9",
		"status":  "shipped",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if result.MessageID != "msg-1" {
		t.Fatalf("MessageID = %q, want %q", result.MessageID, "msg-1")
	}
	if result.TrackingID != "track-123" {
		t.Fatalf("TrackingID = %q, want %q", result.TrackingID, "track-123")
	}
	if result.Recipient != "jo@example.com" {
		t.Fatalf("Recipient = %q, want %q", result.Recipient, "jo@example.com")
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(mailer.sent))
	}
	sent := mailer.sent[0]
	if sent.From != "noreply@example.com" {
		t.Fatalf("From = %q", sent.From)
	}
	if sent.To != "jo@example.com" {
		t.Fatalf("To = %q", sent.To)
	}
	if !strings.Contains(sent.HTML, "https://notify.example.com/notifications/track/track-123") {
		t.Fatal("expected the tracking pixel URL in the HTML body")
	}
	if !strings.Contains(sent.HTML, "Hello Jo,") {
		t.Fatal("expected the recipient name in the HTML body")
	}
	if !strings.Contains(sent.HTML, "order-9") {
		t.Fatal("expected the order id in the HTML body")
	}
	if strings.Contains(sent.Text, "track-123") {
		t.Fatal("text body should not carry the tracking pixel")
	}

	if len(throttle.streams) != 1 || throttle.streams[0] != "order_update" {
		t.Fatalf("throttle streams = %v, want [order_update]", throttle.streams)
	}
}

func TestDispatcherDispatchNoEmail(t *testing.T) {
	t.Parallel()

	directory := &fakeUserResolver{
		getUserFn: func(ctx context.Context, userID string) (*domain.User, error) {
			return &domain.User{ID: userID, Name: "No Mail"}, nil
		},
	}
	mailer := &fakeMailSender{}

	d := newTestDispatcher(t, directory, mailer, nil)

	_, err := d.Dispatch(context.Background(), "user-2", "Hi", domain.TypePromotion, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Dispatch() error = %v, want %v", err, domain.ErrValidation)
	}
	if len(mailer.sent) != 0 {
		t.Fatal("no email should be sent without a valid address")
	}
}

func TestDispatcherDispatchDirectoryFailure(t *testing.T) {
	t.Parallel()

	lookupErr := errors.New("directory down")
	directory := &fakeUserResolver{
		getUserFn: func(ctx context.Context, userID string) (*domain.User, error) {
			return nil, lookupErr
		},
	}

	d := newTestDispatcher(t, directory, &fakeMailSender{}, nil)

	_, err := d.Dispatch(context.Background(), "user-3", "Hi", domain.TypePromotion, nil)
	if !errors.Is(err, lookupErr) {
		t.Fatalf("Dispatch() error = %v, want wrapped %v", err, lookupErr)
	}
}

func TestDispatcherDispatchToAddressSendFailure(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("mailer unavailable")
	mailer := &fakeMailSender{
		sendFn: func(ctx context.Context, email upstream.Email) (*upstream.SendResult, error) {
			return nil, sendErr
		},
	}

	d := newTestDispatcher(t, &fakeUserResolver{}, mailer, nil)

	_, err := d.DispatchToAddress(context.Background(), "jo@example.com", "Jo", "Hi", domain.TypePromotion, nil)
	if !errors.Is(err, sendErr) {
		t.Fatalf("DispatchToAddress() error = %v, want wrapped %v", err, sendErr)
	}
}

func TestDispatcherDispatchToAddressMissingRecipient(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, &fakeUserResolver{}, &fakeMailSender{}, nil)

	_, err := d.DispatchToAddress(context.Background(), "  ", "Jo", "Hi", domain.TypePromotion, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("DispatchToAddress() error = %v, want %v", err, domain.ErrValidation)
	}
}

func TestDispatcherThrottleAborts(t *testing.T) {
	t.Parallel()

	throttle := &fakeThrottle{
		waitFn: func(ctx context.Context, stream string) error {
			return context.Canceled
		},
	}
	mailer := &fakeMailSender{}

	d := newTestDispatcher(t, &fakeUserResolver{}, mailer, throttle)

	_, err := d.DispatchToAddress(context.Background(), "jo@example.com", "Jo", "Hi", domain.TypeRecommendation, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("DispatchToAddress() error = %v, want %v", err, context.Canceled)
	}
	if len(mailer.sent) != 0 {
		t.Fatal("no email should be sent when the throttle aborts")
	}
}
