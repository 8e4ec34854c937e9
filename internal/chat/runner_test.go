package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inquestlabs/inquest/internal/agentwire"
	"github.com/inquestlabs/inquest/internal/platform"
	"github.com/inquestlabs/inquest/internal/session"
	"github.com/inquestlabs/inquest/internal/testutil"
)

// newRunner wires a runner against a test server with local-only sessions.
func newRunner(testingHandle *testing.T, server *httptest.Server, opts ...platform.Option) (*Runner, *session.Store) {
	store := &session.Store{BaseDir: testingHandle.TempDir()}
	client := platform.NewClient(server.URL, append([]platform.Option{
		platform.WithRetryBudget(0),
	}, opts...)...)
	return &Runner{
		Client:         client,
		Reconciler:     session.NewReconciler(store, nil, nil, "legal-research"),
		Store:          store,
		AgentID:        "legal-research",
		SyntheticDelay: time.Millisecond,
	}, store
}

// TestRunnerAskStreamsAndAdopts verifies a streamed turn delivers fragments,
// finalizes one message, adopts the server session id, and persists the
// agent's reply.
func TestRunnerAskStreamsAndAdopts(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Frames arrive back to back with no delimiter.
		w.Write([]byte(`{"event":"RunStarted","session_id":"srv-1","created_at":10}` +
			`{"event":"RunResponseChunk","content":"Hello ","session_id":"srv-1"}` +
			`{"event":"RunResponseChunk","content":"world"}` +
			`{"event":"RunCompleted","content":"Hello world","session_id":"srv-1"}`))
	}))
	defer server.Close()

	runner, store := newRunner(testingHandle, server)

	var fragments []string
	result, err := runner.Ask(context.Background(), "hi", &Callbacks{
		OnContent: func(fragment string) {
			fragments = append(fragments, fragment)
		},
	})
	testutil.RequireNoError(testingHandle, err, "ask")
	testutil.RequireEqual(testingHandle, fragments, []string{"Hello ", "world"}, "fragment order mismatch")
	testutil.RequireEqual(testingHandle, len(result.Messages), 1, "one message per turn")
	testutil.RequireEqual(testingHandle, result.Final.Content, "Hello world", "final content mismatch")
	testutil.RequireEqual(testingHandle, result.SessionID, "srv-1", "server session id must be adopted")
	testutil.RequireEqual(testingHandle, runner.Reconciler.SessionID(), "srv-1", "reconciler must adopt the id")

	records, err := store.LoadRecords("srv-1")
	testutil.RequireNoError(testingHandle, err, "load transcript")
	testutil.RequireEqual(testingHandle, len(records), 1, "agent reply must be persisted")
	testutil.RequireEqual(testingHandle, records[0].Role, "agent", "persisted role mismatch")
}

// TestRunnerAskErrorEvent verifies a RunError event closes the turn as an
// error-flagged message rather than a transport failure.
func TestRunnerAskErrorEvent(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"event":"RunStarted","session_id":"srv-2"}` +
			`{"event":"RunError","error":"agent exploded","session_id":"srv-2"}`))
	}))
	defer server.Close()

	runner, _ := newRunner(testingHandle, server)
	result, err := runner.Ask(context.Background(), "hi", nil)
	testutil.RequireNoError(testingHandle, err, "an in-band error is not a transport failure")
	testutil.RequireTrue(testingHandle, result.Final.HasError, "message must carry the error flag")
	testutil.RequireEqual(testingHandle, result.Final.Content, "agent exploded", "error text mismatch")
}

// TestRunnerAskTransportFailure verifies a failed run surfaces the error and
// emits no message.
func TestRunnerAskTransportFailure(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	runner, _ := newRunner(testingHandle, server)
	var messages int
	_, err := runner.Ask(context.Background(), "hi", &Callbacks{
		OnMessage: func(_ agentwire.Message) { messages++ },
	})
	testutil.RequireTrue(testingHandle, err != nil, "transport failure must surface")
	testutil.RequireEqual(testingHandle, messages, 0, "no message on a failed turn")
}

// TestRunnerAnalyzeSynthesizesStream verifies a document run replays the
// streaming cadence and reports upload phases.
func TestRunnerAnalyzeSynthesizesStream(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.RequireNoError(testingHandle, r.ParseMultipartForm(1<<20), "parse upload")
		testutil.RequireEqual(testingHandle, r.FormValue("stream"), "false", "document mode must not stream")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":"Contract summary","session_id":"doc-1"}`))
	}))
	defer server.Close()

	runner, _ := newRunner(testingHandle, server)

	var fragments []string
	var phases []string
	result, err := runner.Analyze(context.Background(), "summarize", []platform.File{
		{Name: "contract.pdf", Reader: strings.NewReader("fake pdf bytes")},
	}, &Callbacks{
		OnContent: func(fragment string) { fragments = append(fragments, fragment) },
		OnProgress: func(p platform.Progress) {
			if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
				phases = append(phases, p.Phase)
			}
		},
	})
	testutil.RequireNoError(testingHandle, err, "analyze")
	testutil.RequireEqual(testingHandle, fragments, []string{"Contract summary"}, "synthesized fragment mismatch")
	testutil.RequireEqual(testingHandle, result.Final.Content, "Contract summary", "final content mismatch")
	testutil.RequireEqual(testingHandle, result.SessionID, "doc-1", "document session id must be adopted")
	testutil.RequireEqual(testingHandle, phases, []string{"uploading", "processing", "done"}, "phase order mismatch")
}

// TestRunnerRequiresText verifies input validation.
func TestRunnerRequiresText(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	runner, _ := newRunner(testingHandle, server)
	_, err := runner.Ask(context.Background(), "", nil)
	testutil.RequireTrue(testingHandle, err != nil, "empty text must be rejected")
}
