package agentwire

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind classifies a stream event by its wire discriminant.
type EventKind string

const (
	// KindRunStarted opens a new agent turn.
	KindRunStarted EventKind = "RunStarted"
	// KindRunResponseChunk carries an incremental content fragment.
	KindRunResponseChunk EventKind = "RunResponseChunk"
	// KindRunCompleted closes a turn; its content, when non-empty, is authoritative.
	KindRunCompleted EventKind = "RunCompleted"
	// KindRunError closes a turn with an error condition.
	KindRunError EventKind = "RunError"
	// KindToolCallStarted reports a server-side tool invocation beginning.
	KindToolCallStarted EventKind = "ToolCallStarted"
	// KindToolCallCompleted reports a server-side tool invocation finishing.
	KindToolCallCompleted EventKind = "ToolCallCompleted"
	// KindReasoningStarted opens a reasoning turn.
	KindReasoningStarted EventKind = "ReasoningStarted"
	// KindReasoningStep carries one reasoning step payload.
	KindReasoningStep EventKind = "ReasoningStep"
	// KindReasoningCompleted closes a reasoning turn.
	KindReasoningCompleted EventKind = "ReasoningCompleted"
	// KindUnknown marks discriminants this client does not recognize.
	KindUnknown EventKind = ""
)

// ToolCall describes one server-side tool invocation.
type ToolCall struct {
	// ID identifies the tool call within the turn.
	ID string `json:"tool_call_id,omitempty"`
	// Name is the tool's registered name.
	Name string `json:"tool_name,omitempty"`
	// Arguments holds the tool input object.
	Arguments map[string]any `json:"tool_args,omitempty"`
	// Content carries the tool output, present once completed.
	Content string `json:"content,omitempty"`
	// IsError reports a failed invocation.
	IsError bool `json:"tool_call_error,omitempty"`
}

// StreamEvent is one unit of server-pushed information.
//
// Fields the client does not model explicitly (media descriptors and any
// auxiliary payloads) pass through in ExtraData untouched.
type StreamEvent struct {
	// Event is the wire discriminant string.
	Event string `json:"event"`
	// Content is an optional text fragment.
	Content string `json:"content,omitempty"`
	// SessionID identifies the conversation; may be absent on early events.
	SessionID string `json:"session_id,omitempty"`
	// CreatedAt is a unix timestamp in seconds.
	CreatedAt int64 `json:"created_at,omitempty"`
	// Tools is the latest full tool-call list; it replaces, never merges.
	Tools []ToolCall `json:"tools,omitempty"`
	// Images passes through image descriptors.
	Images []json.RawMessage `json:"images,omitempty"`
	// Videos passes through video descriptors.
	Videos []json.RawMessage `json:"videos,omitempty"`
	// Audio passes through audio descriptors.
	Audio []json.RawMessage `json:"audio,omitempty"`
	// ResponseAudio passes through a synthesized audio response descriptor.
	ResponseAudio json.RawMessage `json:"response_audio,omitempty"`
	// ExtraData carries auxiliary fields such as citations and reasoning steps.
	ExtraData map[string]any `json:"extra_data,omitempty"`
	// Error carries an error description on RunError events.
	Error string `json:"error,omitempty"`
}

// Kind maps the wire discriminant onto a known event kind.
//
// Older platform builds emit "RunResponse" or "RunResponseContent" for
// incremental fragments; both are treated as chunk events. Anything else
// unrecognized maps to KindUnknown and is ignored downstream.
func (e *StreamEvent) Kind() EventKind {
	switch e.Event {
	case "RunStarted":
		return KindRunStarted
	case "RunResponseChunk", "RunResponse", "RunResponseContent":
		return KindRunResponseChunk
	case "RunCompleted":
		return KindRunCompleted
	case "RunError":
		return KindRunError
	case "ToolCallStarted":
		return KindToolCallStarted
	case "ToolCallCompleted":
		return KindToolCallCompleted
	case "ReasoningStarted":
		return KindReasoningStarted
	case "ReasoningStep":
		return KindReasoningStep
	case "ReasoningCompleted":
		return KindReasoningCompleted
	default:
		return KindUnknown
	}
}

// ParseEvent decodes one extracted frame into a StreamEvent.
//
// A missing created_at defaults to the current time so downstream consumers
// always see a usable timestamp.
func ParseEvent(raw json.RawMessage) (StreamEvent, error) {
	var event StreamEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return StreamEvent{}, fmt.Errorf("parse stream event: %w", err)
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	return event, nil
}
