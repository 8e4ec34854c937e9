package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/inquestlabs/inquest/internal/agentwire"
	"github.com/inquestlabs/inquest/internal/platform"
	"github.com/inquestlabs/inquest/internal/session"
	"github.com/inquestlabs/inquest/internal/testutil"
)

// TestStreamPrinterStreamedText verifies streamed fragments are not repeated
// by the finalized message.
func TestStreamPrinterStreamedText(testingHandle *testing.T) {
	var out bytes.Buffer
	printer := newStreamPrinter(&out, &bytes.Buffer{}, false)

	printer.onContent("Hello ")
	printer.onContent("world")
	printer.onMessage(agentwire.Message{Content: "Hello world"})

	testutil.RequireEqual(testingHandle, out.String(), "Hello world\n", "streamed output mismatch")
}

// TestStreamPrinterFallsBackToFinal verifies the finalized content prints when
// no fragments were streamed.
func TestStreamPrinterFallsBackToFinal(testingHandle *testing.T) {
	var out bytes.Buffer
	printer := newStreamPrinter(&out, &bytes.Buffer{}, false)

	printer.onMessage(agentwire.Message{Content: "Full answer"})

	testutil.RequireEqual(testingHandle, out.String(), "Full answer\n", "final-content output mismatch")
}

// TestStreamPrinterErrorNotice verifies error-flagged turns warn on stderr.
func TestStreamPrinterErrorNotice(testingHandle *testing.T) {
	var out bytes.Buffer
	var errOut bytes.Buffer
	printer := newStreamPrinter(&out, &errOut, false)

	printer.onMessage(agentwire.Message{Content: "something broke", HasError: true})

	testutil.RequireStringContains(testingHandle, errOut.String(), "error", "error notice missing")
}

// TestFormatRunError verifies the error class to message mapping.
func TestFormatRunError(testingHandle *testing.T) {
	testutil.RequireEqual(testingHandle, formatRunError(platform.ErrCancelled), "Request cancelled.", "cancel mapping")
	testutil.RequireEqual(testingHandle, formatRunError(platform.ErrTimeout), "Request timed out.", "timeout mapping")
	testutil.RequireStringContains(testingHandle,
		formatRunError(&platform.APIError{StatusCode: 500, Body: "upstream down"}),
		"status 500", "api error mapping")
	testutil.RequireEqual(testingHandle,
		formatRunError(&platform.APIError{StatusCode: 413, Body: "too big"}),
		"Attachment too large for the platform.", "payload-too-large mapping")
	testutil.RequireEqual(testingHandle, formatRunError(errors.New("plain")), "plain", "default mapping")
}

// TestSummarizeForDisplay verifies whitespace collapsing and truncation.
func TestSummarizeForDisplay(testingHandle *testing.T) {
	testutil.RequireEqual(testingHandle, summarizeForDisplay("a\n  b\tc", 0), "a b c", "whitespace collapse")
	testutil.RequireEqual(testingHandle, summarizeForDisplay("abcdef", 3), "abc...(truncated)", "truncation")
}

// TestPrintSessionList verifies the listing output with previews.
func TestPrintSessionList(testingHandle *testing.T) {
	store := &session.Store{BaseDir: testingHandle.TempDir()}
	testutil.RequireNoError(testingHandle, store.AppendRecord("s-1", session.Record{
		Role:    "user",
		Content: "find precedent for adverse possession",
		UserID:  "anon_x",
	}), "seed transcript")

	var out bytes.Buffer
	testutil.RequireNoError(testingHandle, printSessionList(&out, store, 10), "list")
	testutil.RequireStringContains(testingHandle, out.String(), "s-1", "session id missing")
	testutil.RequireStringContains(testingHandle, out.String(), "adverse possession", "preview missing")
}
