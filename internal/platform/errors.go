package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// ErrTimeout classifies requests that exceeded their end-to-end deadline.
// It is distinct from generic transport failure so callers can mention file
// size and connection speed in upload mode.
var ErrTimeout = errors.New("request timed out")

// ErrCancelled classifies requests aborted by the caller. A cancelled turn
// is not a clean RunError; partially accumulated state is discarded.
var ErrCancelled = errors.New("request cancelled")

// APIError represents a non-2xx response from the platform.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Body is the trimmed response body.
	Body string
	// RetryAfter is the server-mandated wait from a 429, if provided.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api error: status %d: %s", e.StatusCode, e.Body)
}

// newAPIError builds an APIError from a response, capturing Retry-After.
func newAPIError(statusCode int, body string, header http.Header) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Body: body}
	if statusCode == http.StatusTooManyRequests {
		if seconds, err := strconv.Atoi(header.Get("Retry-After")); err == nil && seconds > 0 {
			apiErr.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	return apiErr
}

// Retryable decides retry eligibility structurally, never by inspecting
// error message text. Connection-level failures and 5xx responses retry;
// a 429 retries only when the server did not mandate an explicit wait;
// payload-too-large and other client errors never retry, and neither do
// timeouts or cancellations, which already consumed their budget.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrCancelled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestEntityTooLarge:
			return false
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return apiErr.RetryAfter == 0
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false
	}

	// url.Error wraps dial and read failures from the HTTP client.
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) {
		return !timeoutErr.Timeout()
	}
	return false
}

// classifyContextErr maps a context outcome onto the error taxonomy.
func classifyContextErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	default:
		return err
	}
}
