package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/inquestlabs/inquest/internal/agentwire"
)

// RunRequest describes one message send to an agent.
type RunRequest struct {
	// AgentID selects the target agent.
	AgentID string
	// Message is the user's message text.
	Message string
	// SessionID scopes the run to a conversation; empty requests server-side
	// creation.
	SessionID string
	// UserID identifies the caller, authenticated or anonymous.
	UserID string
}

// FrameHandler receives each complete JSON object extracted from the
// response stream, in stream order.
type FrameHandler func(raw json.RawMessage)

// RunStream executes a streaming run and feeds extracted frames to handle.
//
// The response body is a sequence of JSON objects with no delimiter between
// them; frames are recovered by balanced, string-aware brace matching.
// Connection-level failures before the first frame retry within the client's
// budget; once frames have been delivered the stream is never retried, since
// observers may already have folded events.
func (c *Client) RunStream(ctx context.Context, req *RunRequest, handle FrameHandler) error {
	if req == nil {
		return errors.New("run request is required")
	}
	if req.AgentID == "" {
		return errors.New("agent id is required")
	}

	delivered := false
	attempt := func() error {
		return c.streamOnce(ctx, req, func(raw json.RawMessage) {
			delivered = true
			if handle != nil {
				handle(raw)
			}
		})
	}

	err := attempt()
	for retries := 0; err != nil && !delivered && retries < c.retryBudget && Retryable(err); retries++ {
		if sleepErr := sleepBackoff(ctx, c.backoff, retries); sleepErr != nil {
			return sleepErr
		}
		err = attempt()
	}
	return err
}

// streamOnce performs a single streaming attempt.
func (c *Client) streamOnce(ctx context.Context, req *RunRequest, emit agentwire.FrameFunc) error {
	runCtx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("message", req.Message)
	form.Set("stream", "true")
	form.Set("session_id", req.SessionID)
	form.Set("user_id", req.UserID)

	httpReq, err := http.NewRequestWithContext(
		runCtx,
		http.MethodPost,
		c.runURL(req.AgentID),
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return fmt.Errorf("create run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := c.authorize(runCtx, httpReq); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return classifyContextErr(runCtx, fmt.Errorf("send run request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("read run error body: %w", readErr)
		}
		return newAPIError(resp.StatusCode, strings.TrimSpace(string(body)), resp.Header)
	}

	extractor := &agentwire.Extractor{}
	chunk := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			extractor.Feed(string(chunk[:n]), emit)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return classifyContextErr(runCtx, fmt.Errorf("read run stream: %w", readErr))
		}
	}
}

// authorize attaches the bearer credential when one is available.
func (c *Client) authorize(ctx context.Context, httpReq *http.Request) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return fmt.Errorf("resolve bearer token: %w", err)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// runURL builds the run endpoint for an agent.
func (c *Client) runURL(agentID string) string {
	return c.baseURL + "/v1/agents/" + url.PathEscape(agentID) + "/runs"
}
