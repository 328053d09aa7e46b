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
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
)

const defaultDirectoryTimeout = 5 * time.Second

type userEnvelope struct {
	Result *domain.User `json:"result"`
}

type userListEnvelope struct {
	Result []domain.User `json:"result"`
}

// DirectoryClient talks to the User Directory service. Lookups run under a
// bounded timeout so a slow directory surfaces as a retryable failure rather
// than blocking the consumer loop.
type DirectoryClient struct {
	client  *resty.Client
	baseURL string
}

func NewDirectoryClient(baseURL string, timeout time.Duration) (*DirectoryClient, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("user directory base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid user directory base url: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultDirectoryTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &DirectoryClient{
		client:  client,
		baseURL: strings.TrimRight(trimmed, "/"),
	}, nil
}

// GetUser resolves one user by id.
func (c *DirectoryClient) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}

	var envelope userEnvelope
	response, err := c.client.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get(fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(userID)))
	if err != nil {
		return nil, &Error{
			Service:   "user directory",
			Message:   fmt.Sprintf("failed to retrieve user %s", userID),
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode == http.StatusNotFound {
		return nil, &Error{
			Service:    "user directory",
			StatusCode: statusCode,
			Message:    fmt.Sprintf("user %s not found", userID),
			// A miss may be replication lag upstream; the retry policy decides.
			Transient: true,
		}
	}
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &Error{
			Service:    "user directory",
			StatusCode: statusCode,
			Message:    fmt.Sprintf("user lookup for %s returned status %d", userID, statusCode),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	if envelope.Result == nil {
		return nil, &Error{
			Service:   "user directory",
			Message:   fmt.Sprintf("empty directory response for user %s", userID),
			Transient: true,
		}
	}

	user := *envelope.Result
	if user.ID == "" {
		user.ID = userID
	}

	return &user, nil
}

// ListUsers fetches the full directory, used by the promotion broadcaster.
func (c *DirectoryClient) ListUsers(ctx context.Context) ([]domain.User, error) {
	var envelope userListEnvelope
	response, err := c.client.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get(c.baseURL)
	if err != nil {
		return nil, &Error{
			Service:   "user directory",
			Message:   "failed to list users",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &Error{
			Service:    "user directory",
			StatusCode: statusCode,
			Message:    fmt.Sprintf("user listing returned status %d", statusCode),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	return envelope.Result, nil
}
