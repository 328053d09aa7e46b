package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"github.com/kursadbilgin/notification-pipeline/internal/upstream"
	"go.uber.org/zap"
)

// UserResolver looks recipients up in the user directory.
type UserResolver interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// MailSender hands a rendered email to the mail provider.
type MailSender interface {
	Send(ctx context.Context, email upstream.Email) (*upstream.SendResult, error)
}

// MailThrottle blocks until a send slot opens for the given stream.
type MailThrottle interface {
	Wait(ctx context.Context, stream string) error
}

// DispatchResult describes a completed send.
type DispatchResult struct {
	MessageID  string
	TrackingID string
	Recipient  string
}

// Dispatcher renders and sends notification emails. Every send carries a
// fresh tracking id whose pixel URL marks the notification read when fetched.
type Dispatcher struct {
	directory UserResolver
	mailer    MailSender
	throttle  MailThrottle
	metrics   *observability.Metrics
	logger    *zap.Logger

	sender          string
	trackingBaseURL string

	newTrackingID func() string
	now           func() time.Time
}

func NewDispatcher(
	directory UserResolver,
	mailer MailSender,
	throttle MailThrottle,
	metrics *observability.Metrics,
	logger *zap.Logger,
	sender string,
	trackingBaseURL string,
) (*Dispatcher, error) {
	if directory == nil {
		return nil, fmt.Errorf("user directory is required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if strings.TrimSpace(sender) == "" {
		return nil, fmt.Errorf("sender address is required")
	}

	return &Dispatcher{
		directory:       directory,
		mailer:          mailer,
		throttle:        throttle,
		metrics:         metrics,
		logger:          logger,
		sender:          sender,
		trackingBaseURL: strings.TrimRight(trackingBaseURL, "/"),
		newTrackingID:   uuid.NewString,
		now:             time.Now,
	}, nil
}

// Dispatch resolves the recipient through the directory and sends. A user
// without a usable email address fails validation rather than transiently.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	userID string,
	subject string,
	typ domain.Type,
	content domain.Payload,
) (*DispatchResult, error) {
	user, err := d.directory.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipient %s: %w", userID, err)
	}
	if !user.HasValidEmail() {
		return nil, fmt.Errorf("%w: user %s has no valid email address", domain.ErrValidation, userID)
	}

	return d.DispatchToAddress(ctx, user.Email, user.DisplayName(), subject, typ, content)
}

// DispatchToAddress sends to a known address, skipping directory lookup.
func (d *Dispatcher) DispatchToAddress(
	ctx context.Context,
	address string,
	name string,
	subject string,
	typ domain.Type,
	content domain.Payload,
) (*DispatchResult, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: recipient address is required", domain.ErrValidation)
	}

	if d.throttle != nil {
		if err := d.throttle.Wait(ctx, typ.String()); err != nil {
			return nil, fmt.Errorf("failed to acquire mail send slot: %w", err)
		}
	}

	trackingID := d.newTrackingID()
	pixelURL := ""
	if d.trackingBaseURL != "" {
		pixelURL = fmt.Sprintf("%s/notifications/track/%s", d.trackingBaseURL, trackingID)
	}

	html, err := renderHTML(name, typ, content, pixelURL)
	if err != nil {
		return nil, err
	}

	start := d.now()
	result, err := d.mailer.Send(ctx, upstream.Email{
		From:    d.sender,
		To:      address,
		Subject: subject,
		Text:    renderText(name, typ, content),
		HTML:    html,
	})
	d.metrics.ObserveEmailSendDuration(typ.String(), d.now().Sub(start))
	if err != nil {
		return nil, fmt.Errorf("failed to send %s email: %w", typ, err)
	}

	d.metrics.IncEmailSent(typ.String())
	d.logger.Info("email sent",
		zap.String("type", typ.String()),
		zap.String("recipient", address),
		zap.String("messageId", result.MessageID),
		zap.String("trackingId", trackingID),
	)

	return &DispatchResult{
		MessageID:  result.MessageID,
		TrackingID: trackingID,
		Recipient:  address,
	}, nil
}
