package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultMailerTimeout = 10 * time.Second

// Email is one outbound message handed to the mailer service.
type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// SendResult is the mailer's acknowledgement.
type SendResult struct {
	MessageID string `json:"messageId"`
}

// MailerClient talks to the mail delivery service.
type MailerClient struct {
	client   *resty.Client
	endpoint string
}

func NewMailerClient(baseURL string, timeout time.Duration) (*MailerClient, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("mailer base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid mailer base url: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultMailerTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &MailerClient{
		client:   client,
		endpoint: strings.TrimRight(trimmed, "/") + "/send",
	}, nil
}

func (c *MailerClient) Send(ctx context.Context, email Email) (*SendResult, error) {
	if strings.TrimSpace(email.To) == "" {
		return nil, fmt.Errorf("recipient address is required")
	}
	if strings.TrimSpace(email.From) == "" {
		return nil, fmt.Errorf("sender address is required")
	}

	var result SendResult
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(email).
		SetResult(&result).
		Post(c.endpoint)
	if err != nil {
		return nil, &Error{
			Service:   "mailer",
			Message:   fmt.Sprintf("send to %s failed", email.To),
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		body := strings.TrimSpace(response.String())
		message := fmt.Sprintf("mailer returned status %d", statusCode)
		if body != "" {
			message = fmt.Sprintf("%s: %s", message, body)
		}
		return nil, &Error{
			Service:    "mailer",
			StatusCode: statusCode,
			Message:    message,
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	return &result, nil
}
