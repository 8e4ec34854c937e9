package agentwire

import (
	"encoding/json"
	"time"
)

// DocumentResponse is the single-document response shape the platform
// returns when a request carried file attachments instead of streaming.
type DocumentResponse struct {
	// Content is the agent's response text.
	Content string `json:"content,omitempty"`
	// Message is an alternate field some endpoints use for the text.
	Message string `json:"message,omitempty"`
	// SessionID is the server-side conversation id for the run.
	SessionID string `json:"session_id,omitempty"`
	// ExtraData carries auxiliary payloads.
	ExtraData map[string]any `json:"extra_data,omitempty"`
	// References holds citation payloads some endpoints emit at top level.
	References []json.RawMessage `json:"references,omitempty"`
}

// Text returns the document's response text, trying the structured fields
// first and falling back to stringified-payload recovery for backends that
// embed a repr-style `content='...'` blob.
func (d *DocumentResponse) Text() string {
	if d.Content != "" {
		return d.Content
	}
	if d.Message == "" {
		return ""
	}
	if recovered, ok := RecoverStringified(d.Message); ok {
		return recovered
	}
	return d.Message
}

// DefaultSyntheticDelay staggers synthesized events so consumers observe the
// same cadence as true streaming.
const DefaultSyntheticDelay = 30 * time.Millisecond

// SynthesizeStream replays a single response document as a three-event
// stream through apply: RunStarted, a chunk carrying the full content, and
// RunCompleted carrying the full content again. This keeps the file-upload
// response mode behaviorally equivalent to true streaming.
//
// A non-positive delay dispatches the events back to back.
func SynthesizeStream(doc *DocumentResponse, delay time.Duration, apply func(StreamEvent)) {
	if doc == nil || apply == nil {
		return
	}

	now := time.Now().Unix()
	content := doc.Text()
	extra := doc.ExtraData
	if len(doc.References) > 0 {
		merged := make(map[string]any, len(extra)+1)
		for key, value := range extra {
			merged[key] = value
		}
		merged["references"] = doc.References
		extra = merged
	}

	events := []StreamEvent{
		{
			Event:     string(KindRunStarted),
			SessionID: doc.SessionID,
			CreatedAt: now,
		},
		{
			Event:     string(KindRunResponseChunk),
			Content:   content,
			SessionID: doc.SessionID,
			CreatedAt: now,
		},
		{
			Event:     string(KindRunCompleted),
			Content:   content,
			SessionID: doc.SessionID,
			ExtraData: extra,
			CreatedAt: now,
		},
	}

	for i, event := range events {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		apply(event)
	}
}
