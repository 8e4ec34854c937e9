package agentwire

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Observer receives interpreter notifications for a turn's lifecycle.
// All fields are optional; nil callbacks are skipped.
type Observer struct {
	// OnTurnStarted fires when a turn opens, with the session id if known.
	OnTurnStarted func(sessionID string)
	// OnContent fires for each incremental content fragment.
	OnContent func(fragment string)
	// OnToolCalls fires whenever the tool-call list is replaced.
	OnToolCalls func(calls []ToolCall)
	// OnReasoningStep fires for each reasoning step payload.
	OnReasoningStep func(step any)
	// OnMessage fires once per turn with the finalized message.
	OnMessage func(message Message)
}

// Interpreter folds stream events into message accumulators.
//
// It holds no UI state and is reusable across turns: the accumulator
// reference is cleared after every Closed transition. Callbacks run
// synchronously in extraction order and must not block on further network
// I/O, or they will stall buffer draining.
type Interpreter struct {
	// acc is the open accumulator, nil while no turn is in progress.
	acc *Accumulator
	// sessionID is adopted from the first event that carries one.
	sessionID string
	// observers receive lifecycle notifications in registration order.
	observers []*Observer
	// newID generates local message identifiers; overridable in tests.
	newID func() string
}

// NewInterpreter creates an interpreter with no open turn.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		newID: uuid.NewString,
	}
}

// Subscribe registers an observer and returns its removal function.
func (in *Interpreter) Subscribe(obs *Observer) func() {
	in.observers = append(in.observers, obs)
	return func() {
		for i, registered := range in.observers {
			if registered == obs {
				in.observers = append(in.observers[:i], in.observers[i+1:]...)
				return
			}
		}
	}
}

// SessionID returns the conversation id adopted from the stream, if any.
func (in *Interpreter) SessionID() string {
	return in.sessionID
}

// Open reports whether a turn accumulation is in progress.
func (in *Interpreter) Open() bool {
	return in.acc != nil
}

// Discard drops a partially accumulated turn without finalizing it.
// Used on cancellation so an aborted turn is not emitted as a message.
func (in *Interpreter) Discard() {
	in.acc = nil
}

// ApplyRaw parses one extracted frame and applies it.
// Frames that do not decode as events are ignored; malformed objects are
// expected to have been stopped at the extractor boundary already.
func (in *Interpreter) ApplyRaw(raw json.RawMessage) {
	event, err := ParseEvent(raw)
	if err != nil {
		return
	}
	in.Apply(event)
}

// Apply folds one stream event into the current turn.
//
// Events with an unrecognized discriminant are a forward-compatible no-op.
// A chunk arriving before any Started event still opens a turn, since the
// protocol does not strictly guarantee ordering.
func (in *Interpreter) Apply(event StreamEvent) {
	if event.SessionID != "" {
		in.sessionID = event.SessionID
	}

	switch event.Kind() {
	case KindRunStarted, KindReasoningStarted:
		in.ensureOpen(event.CreatedAt)
		for _, obs := range in.observers {
			if obs.OnTurnStarted != nil {
				obs.OnTurnStarted(in.sessionID)
			}
		}

	case KindRunResponseChunk:
		in.ensureOpen(event.CreatedAt)
		in.acc.AppendContent(event.Content)
		in.acc.ReplaceToolCalls(event.Tools)
		in.acc.MergeExtraData(event.ExtraData)
		if event.Content != "" {
			for _, obs := range in.observers {
				if obs.OnContent != nil {
					obs.OnContent(event.Content)
				}
			}
		}

	case KindToolCallStarted, KindToolCallCompleted:
		in.ensureOpen(event.CreatedAt)
		in.acc.ReplaceToolCalls(event.Tools)
		in.acc.MergeExtraData(event.ExtraData)
		if event.Tools != nil {
			for _, obs := range in.observers {
				if obs.OnToolCalls != nil {
					obs.OnToolCalls(event.Tools)
				}
			}
		}

	case KindReasoningStep:
		in.ensureOpen(event.CreatedAt)
		step := reasoningStepPayload(event)
		if step != nil {
			in.acc.AppendReasoningStep(step)
			for _, obs := range in.observers {
				if obs.OnReasoningStep != nil {
					obs.OnReasoningStep(step)
				}
			}
		}

	case KindRunCompleted, KindReasoningCompleted:
		in.ensureOpen(event.CreatedAt)
		in.acc.SetFinalContent(event.Content)
		in.acc.ReplaceToolCalls(event.Tools)
		in.acc.MergeExtraData(event.ExtraData)
		in.finalize()

	case KindRunError:
		in.ensureOpen(event.CreatedAt)
		in.acc.MarkError()
		in.acc.SetFinalContent(errorText(event))
		in.acc.MergeExtraData(event.ExtraData)
		in.finalize()
	}
}

// ensureOpen allocates an accumulator if no turn is in progress.
func (in *Interpreter) ensureOpen(createdAt int64) {
	if in.acc != nil {
		return
	}
	in.acc = NewAccumulator(in.newID(), createdAt)
}

// finalize emits the finished message and closes the turn.
func (in *Interpreter) finalize() {
	message := in.acc.Finalize(in.sessionID)
	in.acc = nil
	for _, obs := range in.observers {
		if obs.OnMessage != nil {
			obs.OnMessage(message)
		}
	}
}

// errorText picks the most specific error description from a RunError event.
func errorText(event StreamEvent) string {
	if event.Content != "" {
		return event.Content
	}
	if event.Error != "" {
		return event.Error
	}
	return "unknown error"
}

// reasoningStepPayload extracts the step payload from a ReasoningStep event.
// Backends deliver steps either inside extra_data or as plain content.
func reasoningStepPayload(event StreamEvent) any {
	if event.ExtraData != nil {
		if step, ok := event.ExtraData["reasoning_steps"]; ok {
			return step
		}
	}
	if event.Content != "" {
		return event.Content
	}
	return nil
}
