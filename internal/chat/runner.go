package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inquestlabs/inquest/internal/agentwire"
	"github.com/inquestlabs/inquest/internal/platform"
	"github.com/inquestlabs/inquest/internal/session"
)

// Callbacks wires turn lifecycle hooks for UI consumers.
type Callbacks struct {
	// OnTurnStarted fires when the agent opens a turn.
	OnTurnStarted func(sessionID string)
	// OnContent receives incremental content fragments.
	OnContent func(fragment string)
	// OnToolCalls receives each replacement of the tool-call list.
	OnToolCalls func(calls []agentwire.ToolCall)
	// OnReasoningStep receives reasoning payloads as they arrive.
	OnReasoningStep func(step any)
	// OnProgress receives upload phases during file-analysis runs.
	OnProgress func(p platform.Progress)
	// OnMessage fires once per turn with the finalized message.
	OnMessage func(message agentwire.Message)
}

// RunResult captures the outcome of one user turn.
type RunResult struct {
	// Messages holds every message finalized during the turn.
	Messages []agentwire.Message
	// Final is the last finalized message.
	Final agentwire.Message
	// SessionID is the conversation id the turn was committed under.
	SessionID string
	// Fallback reports the turn ran under a locally synthesized session id.
	Fallback bool
	// Duration is the end-to-end turn time.
	Duration time.Duration
}

// Runner executes user turns against one agent, tying together the
// reconciler, the platform client, and the wire interpreter.
type Runner struct {
	// Client executes platform requests.
	Client *platform.Client
	// Reconciler supplies the identity/session pair per request.
	Reconciler *session.Reconciler
	// Store persists transcripts; optional.
	Store *session.Store
	// AgentID is the target agent for this surface.
	AgentID string
	// SyntheticDelay staggers synthesized events in document mode.
	SyntheticDelay time.Duration
}

// Ask sends a plain chat message and streams the agent's response.
func (r *Runner) Ask(ctx context.Context, text string, callbacks *Callbacks) (*RunResult, error) {
	userID, sessionID, interpreter, result, err := r.begin(ctx, text)
	if err != nil {
		return nil, err
	}

	r.subscribe(interpreter, callbacks, result)
	start := time.Now()
	err = r.Client.RunStream(ctx, &platform.RunRequest{
		AgentID:   r.AgentID,
		Message:   text,
		SessionID: sessionID,
		UserID:    userID,
	}, interpreter.ApplyRaw)
	result.Duration = time.Since(start)

	return r.finish(interpreter, result, userID, err)
}

// Analyze sends a message with file attachments. The platform answers with
// a single document, which is replayed through the interpreter so consumers
// observe the same event cadence as streaming.
func (r *Runner) Analyze(ctx context.Context, text string, files []platform.File, callbacks *Callbacks) (*RunResult, error) {
	userID, sessionID, interpreter, result, err := r.begin(ctx, text)
	if err != nil {
		return nil, err
	}

	r.subscribe(interpreter, callbacks, result)
	var progress platform.ProgressFunc
	if callbacks != nil && callbacks.OnProgress != nil {
		progress = callbacks.OnProgress
	}

	start := time.Now()
	document, err := r.Client.RunDocument(ctx, &platform.RunRequest{
		AgentID:   r.AgentID,
		Message:   text,
		SessionID: sessionID,
		UserID:    userID,
	}, files, progress)
	if err == nil {
		delay := r.SyntheticDelay
		if delay == 0 {
			delay = agentwire.DefaultSyntheticDelay
		}
		agentwire.SynthesizeStream(document, delay, interpreter.Apply)
	}
	result.Duration = time.Since(start)

	return r.finish(interpreter, result, userID, err)
}

// begin validates the runner, commits the identity pair, and records the
// user's message.
func (r *Runner) begin(ctx context.Context, text string) (string, string, *agentwire.Interpreter, *RunResult, error) {
	if r.Client == nil {
		return "", "", nil, nil, errors.New("client is required")
	}
	if r.Reconciler == nil {
		return "", "", nil, nil, errors.New("reconciler is required")
	}
	if text == "" {
		return "", "", nil, nil, errors.New("message text is required")
	}

	userID, sessionID, err := r.Reconciler.Identity(ctx)
	if err != nil {
		return "", "", nil, nil, fmt.Errorf("reconcile identity: %w", err)
	}

	if r.Store != nil {
		// Best effort; a transcript write failure must not block the send.
		_ = r.Store.AppendRecord(sessionID, session.Record{
			Role:    "user",
			Content: text,
			UserID:  userID,
		})
	}

	result := &RunResult{
		SessionID: sessionID,
		Fallback:  r.Reconciler.Fallback(),
	}
	return userID, sessionID, agentwire.NewInterpreter(), result, nil
}

// subscribe bridges interpreter notifications to caller callbacks and
// collects finalized messages into the result.
func (r *Runner) subscribe(interpreter *agentwire.Interpreter, callbacks *Callbacks, result *RunResult) {
	observer := &agentwire.Observer{
		OnMessage: func(message agentwire.Message) {
			result.Messages = append(result.Messages, message)
			result.Final = message
			if callbacks != nil && callbacks.OnMessage != nil {
				callbacks.OnMessage(message)
			}
		},
	}
	if callbacks != nil {
		observer.OnTurnStarted = callbacks.OnTurnStarted
		observer.OnContent = callbacks.OnContent
		observer.OnToolCalls = callbacks.OnToolCalls
		observer.OnReasoningStep = callbacks.OnReasoningStep
	}
	interpreter.Subscribe(observer)
}

// finish discards aborted turns, adopts any server-assigned session id, and
// persists finalized messages.
func (r *Runner) finish(interpreter *agentwire.Interpreter, result *RunResult, userID string, runErr error) (*RunResult, error) {
	if runErr != nil {
		// A cancelled or failed turn must not surface a half-built message.
		interpreter.Discard()
		return nil, runErr
	}

	if adopted := interpreter.SessionID(); adopted != "" {
		r.Reconciler.Adopt(adopted)
		result.SessionID = adopted
		result.Fallback = false
	}

	if r.Store != nil {
		for _, message := range result.Messages {
			_ = r.Store.AppendRecord(result.SessionID, session.Record{
				Role:      "agent",
				Content:   message.Content,
				UserID:    userID,
				HasError:  message.HasError,
				ExtraData: message.ExtraData,
				CreatedAt: message.CreatedAt,
			})
		}
	}
	return result, nil
}
