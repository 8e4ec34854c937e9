package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/inquestlabs/inquest/internal/agentwire"
)

// File is one attachment for a file-analysis run.
type File struct {
	// Name is the filename reported to the platform.
	Name string
	// Reader supplies the file content.
	Reader io.Reader
}

// Progress reports coarse upload phases for file-analysis UX.
type Progress struct {
	// Phase is one of "uploading", "processing", "done".
	Phase string
	// Percent is the completed share of the known upload size, 0-100.
	Percent int
}

// ProgressFunc receives progress notifications during a document run.
type ProgressFunc func(p Progress)

// RunDocument executes a file-upload run. The platform answers this mode
// with a single JSON document rather than a byte stream; callers feed the
// result through agentwire.SynthesizeStream to keep event cadence identical
// to true streaming.
func (c *Client) RunDocument(ctx context.Context, req *RunRequest, files []File, progress ProgressFunc) (*agentwire.DocumentResponse, error) {
	if req == nil {
		return nil, errors.New("run request is required")
	}
	if req.AgentID == "" {
		return nil, errors.New("agent id is required")
	}

	runCtx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	body, contentType, err := encodeMultipart(req, files)
	if err != nil {
		return nil, err
	}

	notify := func(p Progress) {
		if progress != nil {
			progress(p)
		}
	}
	notify(Progress{Phase: "uploading", Percent: 0})

	reader := &progressReader{
		reader: bytes.NewReader(body),
		total:  len(body),
		onStep: func(percent int) {
			notify(Progress{Phase: "uploading", Percent: percent})
		},
	}

	httpReq, err := http.NewRequestWithContext(runCtx, http.MethodPost, c.runURL(req.AgentID), reader)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.ContentLength = int64(len(body))
	if err := c.authorize(runCtx, httpReq); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyContextErr(runCtx, fmt.Errorf("send upload request: %w", err))
	}
	defer resp.Body.Close()

	notify(Progress{Phase: "processing", Percent: 100})

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyContextErr(runCtx, fmt.Errorf("read upload response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, strings.TrimSpace(string(raw)), resp.Header)
	}

	document, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	notify(Progress{Phase: "done", Percent: 100})
	return document, nil
}

// decodeDocument parses the single-document response, falling back to
// stringified-payload recovery for repr-shaped bodies.
func decodeDocument(raw []byte) (*agentwire.DocumentResponse, error) {
	var document agentwire.DocumentResponse
	if err := json.Unmarshal(raw, &document); err != nil {
		if recovered, ok := agentwire.RecoverStringified(string(raw)); ok {
			return &agentwire.DocumentResponse{Content: recovered}, nil
		}
		return nil, fmt.Errorf("parse upload response: %w", err)
	}
	return &document, nil
}

// encodeMultipart builds the multipart request body for a document run.
func encodeMultipart(req *RunRequest, files []File) ([]byte, string, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)

	fields := map[string]string{
		"message":    req.Message,
		"stream":     "false",
		"session_id": req.SessionID,
		"user_id":    req.UserID,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	for _, file := range files {
		part, err := writer.CreateFormFile("files", file.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create file part %s: %w", file.Name, err)
		}
		if _, err := io.Copy(part, file.Reader); err != nil {
			return nil, "", fmt.Errorf("copy file %s: %w", file.Name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return buffer.Bytes(), writer.FormDataContentType(), nil
}

// progressReader reports percent-complete as the transport drains the body.
type progressReader struct {
	// reader is the underlying body.
	reader io.Reader
	// total is the full body size in bytes.
	total int
	// sent counts bytes consumed so far.
	sent int
	// lastPercent suppresses duplicate notifications.
	lastPercent int
	// onStep receives percent updates.
	onStep func(percent int)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n > 0 && p.total > 0 && p.onStep != nil {
		p.sent += n
		percent := p.sent * 100 / p.total
		if percent > p.lastPercent {
			p.lastPercent = percent
			p.onStep(percent)
		}
	}
	return n, err
}
