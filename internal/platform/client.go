package platform

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// TokenSource supplies the bearer credential and authenticated principal for
// outgoing requests. Implementations wrap the external auth provider.
type TokenSource interface {
	// Token returns the current bearer token, or "" for anonymous traffic.
	Token(ctx context.Context) (string, error)
	// Principal returns the authenticated user's stable id, if any.
	Principal(ctx context.Context) (string, bool)
}

// StaticToken is a TokenSource backed by a fixed credential.
type StaticToken struct {
	// Value is the bearer token.
	Value string
	// UserID is the principal the token belongs to.
	UserID string
}

// Token returns the fixed bearer token.
func (s *StaticToken) Token(_ context.Context) (string, error) {
	return s.Value, nil
}

// Principal returns the fixed user id when one is configured.
func (s *StaticToken) Principal(_ context.Context) (string, bool) {
	if s.UserID == "" {
		return "", false
	}
	return s.UserID, true
}

// Client talks to the research agent platform.
type Client struct {
	// baseURL points at the platform API root.
	baseURL string
	// tokens supplies bearer credentials; nil means anonymous-only.
	tokens TokenSource
	// chatTimeout bounds plain chat runs end to end.
	chatTimeout time.Duration
	// uploadTimeout bounds file-upload runs; large files need minutes.
	uploadTimeout time.Duration
	// retryBudget caps retry attempts for retryable failures.
	retryBudget int
	// backoff is the base delay between retry attempts.
	backoff time.Duration
	// httpClient executes requests; deadlines come from request contexts so
	// streaming reads are not cut short by a transport-level timeout.
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithTokenSource sets the bearer credential source.
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithChatTimeout sets the end-to-end deadline for plain chat runs.
func WithChatTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.chatTimeout = d
		}
	}
}

// WithUploadTimeout sets the end-to-end deadline for file-upload runs.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.uploadTimeout = d
		}
	}
}

// WithRetryBudget caps retry attempts for retryable failures.
func WithRetryBudget(attempts int) Option {
	return func(c *Client) {
		if attempts >= 0 {
			c.retryBudget = attempts
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithBackoff sets the base retry delay; mainly for tests.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// NewClient constructs a platform client with default timeouts.
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		chatTimeout:   2 * time.Minute,
		uploadTimeout: 30 * time.Minute,
		retryBudget:   2,
		backoff:       500 * time.Millisecond,
		httpClient:    &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// bearer resolves the bearer token for a request, if any.
func (c *Client) bearer(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", nil
	}
	return c.tokens.Token(ctx)
}
