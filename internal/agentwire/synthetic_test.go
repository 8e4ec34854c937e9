package agentwire

import (
	"encoding/json"
	"testing"

	"github.com/inquestlabs/inquest/internal/testutil"
)

// TestSynthesizeStreamEquivalence verifies a single response document folds
// to the same result as an equivalent three-event true stream.
func TestSynthesizeStreamEquivalence(testingHandle *testing.T) {
	document := &DocumentResponse{Content: "X", SessionID: "S"}

	synthetic := NewInterpreter()
	syntheticMessages := collectMessages(synthetic)
	SynthesizeStream(document, 0, synthetic.Apply)

	streamed := NewInterpreter()
	streamedMessages := collectMessages(streamed)
	streamed.Apply(StreamEvent{Event: "RunStarted", SessionID: "S", CreatedAt: 1})
	streamed.Apply(StreamEvent{Event: "RunResponseChunk", Content: "X", SessionID: "S", CreatedAt: 1})
	streamed.Apply(StreamEvent{Event: "RunCompleted", Content: "X", SessionID: "S", CreatedAt: 1})

	testutil.RequireEqual(testingHandle, len(*syntheticMessages), 1, "expected one synthetic message")
	testutil.RequireEqual(testingHandle, len(*streamedMessages), 1, "expected one streamed message")
	testutil.RequireEqual(testingHandle, (*syntheticMessages)[0].Content, (*streamedMessages)[0].Content, "content must match the true stream")
	testutil.RequireEqual(testingHandle, synthetic.SessionID(), "S", "session id must be adopted")
	testutil.RequireEqual(testingHandle, streamed.SessionID(), synthetic.SessionID(), "session adoption must match")
}

// TestSynthesizeStreamEventCadence verifies the synthesized sequence is
// started, chunk, completed, with the full content on chunk and completed.
func TestSynthesizeStreamEventCadence(testingHandle *testing.T) {
	var kinds []EventKind
	var contents []string
	SynthesizeStream(&DocumentResponse{Content: "body"}, 0, func(event StreamEvent) {
		kinds = append(kinds, event.Kind())
		contents = append(contents, event.Content)
	})

	testutil.RequireEqual(testingHandle, kinds, []EventKind{KindRunStarted, KindRunResponseChunk, KindRunCompleted}, "cadence mismatch")
	testutil.RequireEqual(testingHandle, contents, []string{"", "body", "body"}, "content placement mismatch")
}

// TestSynthesizeStreamMergesReferences verifies top-level references land in
// the final message's extra data.
func TestSynthesizeStreamMergesReferences(testingHandle *testing.T) {
	document := &DocumentResponse{
		Content:    "cited",
		ExtraData:  map[string]any{"model": "alpha"},
		References: []json.RawMessage{json.RawMessage(`{"title":"case"}`)},
	}

	interpreter := NewInterpreter()
	messages := collectMessages(interpreter)
	SynthesizeStream(document, 0, interpreter.Apply)

	extra := (*messages)[0].ExtraData
	testutil.RequireEqual(testingHandle, extra["model"], "alpha", "extra data lost")
	testutil.RequireTrue(testingHandle, extra["references"] != nil, "references must be merged")
}

// TestDocumentTextFallbacks verifies text resolution order: content, then
// message, with stringified recovery applied to message bodies.
func TestDocumentTextFallbacks(testingHandle *testing.T) {
	testutil.RequireEqual(testingHandle, (&DocumentResponse{Content: "c", Message: "m"}).Text(), "c", "content must win")
	testutil.RequireEqual(testingHandle, (&DocumentResponse{Message: "plain"}).Text(), "plain", "plain message must pass through")

	repr := &DocumentResponse{Message: `RunResponse(content='recovered text', model='x')`}
	testutil.RequireEqual(testingHandle, repr.Text(), "recovered text", "stringified content must be recovered")
}
