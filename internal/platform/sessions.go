package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SessionInfo describes a server-side session record.
type SessionInfo struct {
	// SessionID is the server-assigned conversation id.
	SessionID string `json:"session_id"`
	// UserID is the owner of the session.
	UserID string `json:"user_id"`
	// AgentID is the agent the session belongs to.
	AgentID string `json:"agent_id,omitempty"`
	// Title is a short label derived from the first message.
	Title string `json:"title,omitempty"`
	// CreatedAt is a unix timestamp in seconds.
	CreatedAt int64 `json:"created_at,omitempty"`
}

// RegisterSession creates a server-side session record and returns its
// assigned id. Callers treat failure as non-fatal and fall back to a local
// identifier so the user's message is never blocked on registration.
func (c *Client) RegisterSession(ctx context.Context, agentID string, userID string) (string, error) {
	payload := map[string]string{
		"agent_id": agentID,
		"user_id":  userID,
	}
	var info SessionInfo
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", payload, &info); err != nil {
		return "", err
	}
	if info.SessionID == "" {
		return "", fmt.Errorf("session registration returned no id")
	}
	return info.SessionID, nil
}

// LookupSession fetches a session record, used to verify ownership before a
// resume.
func (c *Client) LookupSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	var info SessionInfo
	path := "/v1/sessions/" + url.PathEscape(sessionID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListSessions returns the caller's sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	var sessions []SessionInfo
	path := "/v1/sessions?user_id=" + url.QueryEscape(userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// doJSON performs a JSON request/response exchange against the platform.
func (c *Client) doJSON(ctx context.Context, method string, path string, body any, result any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if err := c.authorize(reqCtx, httpReq); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return classifyContextErr(reqCtx, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, strings.TrimSpace(string(raw)), resp.Header)
	}
	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
