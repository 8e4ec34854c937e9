package agentwire

import "strings"

// Message is the finalized output of one agent turn.
type Message struct {
	// ID is a locally generated identifier for the message.
	ID string `json:"id"`
	// Role is always "agent" for accumulated turns.
	Role string `json:"role"`
	// Content is the final message text.
	Content string `json:"content"`
	// SessionID is the conversation the turn belongs to, when known.
	SessionID string `json:"session_id,omitempty"`
	// ToolCalls is the last tool-call list seen during the turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ExtraData holds merged auxiliary payloads (citations, reasoning steps).
	ExtraData map[string]any `json:"extra_data,omitempty"`
	// HasError reports that the turn ended in a RunError.
	HasError bool `json:"has_error,omitempty"`
	// CreatedAt is the unix timestamp of the turn's opening event.
	CreatedAt int64 `json:"created_at"`
}

// Accumulator is the mutable fold target for one in-progress agent turn.
type Accumulator struct {
	// id is the local identifier assigned at open time.
	id string
	// contentBuilder concatenates chunk contents in arrival order.
	contentBuilder strings.Builder
	// finalContent, when set, replaces the concatenated chunks.
	finalContent string
	// hasFinal records whether a completed frame supplied authoritative text.
	hasFinal bool
	// toolCalls is the latest-seen list, replaced wholesale.
	toolCalls []ToolCall
	// extraData is the merged auxiliary mapping.
	extraData map[string]any
	// hasError is set on RunError.
	hasError bool
	// createdAt is the timestamp of the opening event.
	createdAt int64
}

// NewAccumulator creates a fold target for a turn opened at createdAt.
func NewAccumulator(id string, createdAt int64) *Accumulator {
	return &Accumulator{
		id:        id,
		createdAt: createdAt,
	}
}

// AppendContent concatenates an incremental content fragment.
func (acc *Accumulator) AppendContent(fragment string) {
	if fragment == "" {
		return
	}
	acc.contentBuilder.WriteString(fragment)
}

// SetFinalContent records authoritative final text from a completed frame.
// An empty value is ignored so accumulated chunks are not erased.
func (acc *Accumulator) SetFinalContent(content string) {
	if content == "" {
		return
	}
	acc.finalContent = content
	acc.hasFinal = true
}

// ReplaceToolCalls replaces the known tool-call list wholesale.
func (acc *Accumulator) ReplaceToolCalls(calls []ToolCall) {
	if calls == nil {
		return
	}
	acc.toolCalls = calls
}

// MergeExtraData shallow-merges auxiliary fields, later values winning per key.
func (acc *Accumulator) MergeExtraData(extra map[string]any) {
	if len(extra) == 0 {
		return
	}
	if acc.extraData == nil {
		acc.extraData = make(map[string]any, len(extra))
	}
	for key, value := range extra {
		acc.extraData[key] = value
	}
}

// AppendReasoningStep records one reasoning step under the reasoning_steps key.
func (acc *Accumulator) AppendReasoningStep(step any) {
	if step == nil {
		return
	}
	if acc.extraData == nil {
		acc.extraData = make(map[string]any, 1)
	}
	steps, _ := acc.extraData["reasoning_steps"].([]any)
	acc.extraData["reasoning_steps"] = append(steps, step)
}

// MarkError flags the turn as failed.
func (acc *Accumulator) MarkError() {
	acc.hasError = true
}

// Content returns the effective text at this point of the fold.
func (acc *Accumulator) Content() string {
	if acc.hasFinal {
		return acc.finalContent
	}
	return acc.contentBuilder.String()
}

// Finalize emits the finished message for the turn.
func (acc *Accumulator) Finalize(sessionID string) Message {
	return Message{
		ID:        acc.id,
		Role:      "agent",
		Content:   acc.Content(),
		SessionID: sessionID,
		ToolCalls: acc.toolCalls,
		ExtraData: acc.extraData,
		HasError:  acc.hasError,
		CreatedAt: acc.createdAt,
	}
}
