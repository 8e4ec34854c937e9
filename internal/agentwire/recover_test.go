package agentwire

import (
	"testing"

	"github.com/inquestlabs/inquest/internal/testutil"
)

// TestRecoverStringifiedSingleQuotes verifies the single-quote variant with
// escaped quotes inside the payload.
func TestRecoverStringifiedSingleQuotes(testingHandle *testing.T) {
	body := `RunResponse(content='the court\'s holding\nwas narrow', session_id='s-1')`
	recovered, ok := RecoverStringified(body)
	testutil.RequireTrue(testingHandle, ok, "expected recovery")
	testutil.RequireEqual(testingHandle, recovered, "the court's holding\nwas narrow", "unescape mismatch")
}

// TestRecoverStringifiedDoubleQuotes verifies the double-quote fallback.
func TestRecoverStringifiedDoubleQuotes(testingHandle *testing.T) {
	body := `RunResponse(content="second \"variant\"")`
	recovered, ok := RecoverStringified(body)
	testutil.RequireTrue(testingHandle, ok, "expected recovery")
	testutil.RequireEqual(testingHandle, recovered, `second "variant"`, "unescape mismatch")
}

// TestRecoverStringifiedMiss verifies bodies without a content field do not
// match.
func TestRecoverStringifiedMiss(testingHandle *testing.T) {
	_, ok := RecoverStringified("no structured payload here")
	testutil.RequireTrue(testingHandle, !ok, "expected no recovery")
}
