package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/inquestlabs/inquest/internal/testutil"
)

// fakeRegistrar scripts registration and remote ownership outcomes.
type fakeRegistrar struct {
	// assigned is the id returned on successful registration.
	assigned string
	// failRegister forces registration failures.
	failRegister bool
	// owners maps session ids to remote owners.
	owners map[string]string
	// registrations counts registration attempts.
	registrations int
}

func (f *fakeRegistrar) RegisterSession(_ context.Context, _ string, _ string) (string, error) {
	f.registrations++
	if f.failRegister {
		return "", errors.New("registration unavailable")
	}
	return f.assigned, nil
}

func (f *fakeRegistrar) SessionOwnerRemote(_ context.Context, sessionID string) (string, error) {
	owner, ok := f.owners[sessionID]
	if !ok {
		return "", errors.New("unknown session")
	}
	return owner, nil
}

// fakeIdentity reports a fixed authenticated principal.
type fakeIdentity struct {
	principal string
}

func (f *fakeIdentity) Principal(_ context.Context) (string, bool) {
	return f.principal, f.principal != ""
}

func testStore(testingHandle *testing.T) *Store {
	return &Store{BaseDir: testingHandle.TempDir()}
}

// TestReconcilerAnonymousIdentityPersists verifies the anonymous id is
// generated once, tagged, and survives across reconciler instances.
func TestReconcilerAnonymousIdentityPersists(testingHandle *testing.T) {
	store := testStore(testingHandle)

	first := NewReconciler(store, nil, nil, "legal")
	userID, sessionID, err := first.Identity(context.Background())
	testutil.RequireNoError(testingHandle, err, "identity")
	testutil.RequireTrue(testingHandle, strings.HasPrefix(userID, AnonPrefix), "anonymous id must carry the prefix")
	testutil.RequireTrue(testingHandle, sessionID != "", "session id must be issued")

	second := NewReconciler(store, nil, nil, "legal")
	userID2, _, err := second.Identity(context.Background())
	testutil.RequireNoError(testingHandle, err, "identity")
	testutil.RequireEqual(testingHandle, userID2, userID, "anonymous id must persist across instances")
}

// TestReconcilerAuthenticatedPrincipalWins verifies a valid auth session
// supplies the user id instead of the anonymous one.
func TestReconcilerAuthenticatedPrincipalWins(testingHandle *testing.T) {
	reconciler := NewReconciler(testStore(testingHandle), &fakeIdentity{principal: "user-42"}, nil, "legal")
	userID, _, err := reconciler.Identity(context.Background())
	testutil.RequireNoError(testingHandle, err, "identity")
	testutil.RequireEqual(testingHandle, userID, "user-42", "principal must win over anonymous id")
}

// TestReconcilerRegistrationFallback verifies a failed session registration
// degrades to a tagged local id without blocking the request.
func TestReconcilerRegistrationFallback(testingHandle *testing.T) {
	registrar := &fakeRegistrar{failRegister: true}
	reconciler := NewReconciler(testStore(testingHandle), nil, registrar, "legal")

	_, sessionID, err := reconciler.Identity(context.Background())
	testutil.RequireNoError(testingHandle, err, "fallback must not fail the request")
	testutil.RequireTrue(testingHandle, strings.HasPrefix(sessionID, FallbackPrefix), "fallback id must carry the marker")
	testutil.RequireTrue(testingHandle, reconciler.Fallback(), "fallback state must be reported")

	// The fallback id is sticky for the conversation.
	_, again, err := reconciler.Identity(context.Background())
	testutil.RequireNoError(testingHandle, err, "identity")
	testutil.RequireEqual(testingHandle, again, sessionID, "session id must be stable within a conversation")
	testutil.RequireEqual(testingHandle, registrar.registrations, 1, "registration must not repeat per request")
}

// TestReconcilerServerAssignedSession verifies registration success uses the
// server-assigned id.
func TestReconcilerServerAssignedSession(testingHandle *testing.T) {
	registrar := &fakeRegistrar{assigned: "srv-7"}
	reconciler := NewReconciler(testStore(testingHandle), nil, registrar, "legal")

	_, sessionID, err := reconciler.Identity(context.Background())
	testutil.RequireNoError(testingHandle, err, "identity")
	testutil.RequireEqual(testingHandle, sessionID, "srv-7", "server-assigned id must be used")
	testutil.RequireTrue(testingHandle, !reconciler.Fallback(), "no fallback on success")
}

// TestReconcilerAdoptSupersedes verifies a server-returned session id from a
// response replaces the committed one before the next request.
func TestReconcilerAdoptSupersedes(testingHandle *testing.T) {
	store := testStore(testingHandle)
	reconciler := NewReconciler(store, nil, &fakeRegistrar{failRegister: true}, "legal")

	_, _, err := reconciler.Identity(context.Background())
	testutil.RequireNoError(testingHandle, err, "identity")
	reconciler.Adopt("srv-9")

	_, sessionID, err := reconciler.Identity(context.Background())
	testutil.RequireNoError(testingHandle, err, "identity")
	testutil.RequireEqual(testingHandle, sessionID, "srv-9", "adopted id must be used")
	testutil.RequireTrue(testingHandle, !reconciler.Fallback(), "adoption clears fallback state")

	last, err := store.LoadLastSession()
	testutil.RequireNoError(testingHandle, err, "load last session")
	testutil.RequireEqual(testingHandle, last, "srv-9", "last-session pointer mismatch")
}

// TestReconcilerClearRegenerates verifies an explicit clear yields a fresh
// conversation id while the user identity survives.
func TestReconcilerClearRegenerates(testingHandle *testing.T) {
	reconciler := NewReconciler(testStore(testingHandle), nil, nil, "legal")
	userID, sessionID, err := reconciler.Identity(context.Background())
	testutil.RequireNoError(testingHandle, err, "identity")

	reconciler.Clear()
	userID2, sessionID2, err := reconciler.Identity(context.Background())
	testutil.RequireNoError(testingHandle, err, "identity")
	testutil.RequireEqual(testingHandle, userID2, userID, "identity must survive a clear")
	testutil.RequireTrue(testingHandle, sessionID2 != sessionID, "cleared conversation must get a fresh id")
}

// TestReconcilerResumeOwnership verifies resumes require matching ownership,
// locally or via the server.
func TestReconcilerResumeOwnership(testingHandle *testing.T) {
	store := testStore(testingHandle)
	reconciler := NewReconciler(store, nil, nil, "legal")
	userID, _, err := reconciler.Identity(context.Background())
	testutil.RequireNoError(testingHandle, err, "identity")

	testutil.RequireNoError(testingHandle, store.AppendRecord("mine", Record{
		Role:    "user",
		Content: "hello",
		UserID:  userID,
	}), "seed owned transcript")
	testutil.RequireNoError(testingHandle, store.AppendRecord("theirs", Record{
		Role:    "user",
		Content: "hello",
		UserID:  "someone-else",
	}), "seed foreign transcript")

	testutil.RequireNoError(testingHandle, reconciler.Resume(context.Background(), "mine"), "owned resume must succeed")
	testutil.RequireEqual(testingHandle, reconciler.SessionID(), "mine", "resumed id mismatch")

	err = reconciler.Resume(context.Background(), "theirs")
	testutil.RequireErrorIs(testingHandle, err, ErrNotOwned, "foreign resume must be rejected")

	// Unknown locally, owned remotely.
	remote := NewReconciler(store, nil, &fakeRegistrar{
		assigned: "srv-1",
		owners:   map[string]string{"remote-1": userID},
	}, "legal")
	remote.userID = userID
	testutil.RequireNoError(testingHandle, remote.Resume(context.Background(), "remote-1"), "remote-owned resume must succeed")
}

// TestStoreTranscriptRoundTrip verifies transcript persistence and owner
// resolution.
func TestStoreTranscriptRoundTrip(testingHandle *testing.T) {
	store := testStore(testingHandle)
	testutil.RequireNoError(testingHandle, store.AppendRecord("s-1", Record{
		Role:    "user",
		Content: "first",
		UserID:  "anon_x",
	}), "append user record")
	testutil.RequireNoError(testingHandle, store.AppendRecord("s-1", Record{
		Role:    "agent",
		Content: "reply",
		UserID:  "anon_x",
	}), "append agent record")

	records, err := store.LoadRecords("s-1")
	testutil.RequireNoError(testingHandle, err, "load records")
	testutil.RequireEqual(testingHandle, len(records), 2, "record count mismatch")
	testutil.RequireEqual(testingHandle, records[1].Content, "reply", "record order mismatch")

	owner, err := store.SessionOwner("s-1")
	testutil.RequireNoError(testingHandle, err, "session owner")
	testutil.RequireEqual(testingHandle, owner, "anon_x", "owner mismatch")

	sessions, err := store.ListSessions(10)
	testutil.RequireNoError(testingHandle, err, "list sessions")
	testutil.RequireEqual(testingHandle, sessions, []string{"s-1"}, "session listing mismatch")

	testutil.RequireNoError(testingHandle, store.RemoveSession("s-1"), "remove session")
	_, err = store.LoadRecords("s-1")
	testutil.RequireTrue(testingHandle, err != nil, "removed session must not load")
}
