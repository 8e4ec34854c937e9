package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// AnonPrefix tags locally generated identities so backend rate limiting and
// logging can distinguish anonymous traffic.
const AnonPrefix = "anon_"

// FallbackPrefix tags locally synthesized session ids issued when server-side
// registration failed. Messages sent under a fallback id may not be durably
// recorded server-side.
const FallbackPrefix = "local_"

// ErrNotOwned is returned when a resume targets a session the caller does
// not own.
var ErrNotOwned = errors.New("session not owned by caller")

// IdentitySource reports the authenticated principal, if any.
type IdentitySource interface {
	// Principal returns the authenticated user's stable id.
	Principal(ctx context.Context) (string, bool)
}

// Registrar creates and inspects server-side session records.
type Registrar interface {
	// RegisterSession creates a session record, returning the assigned id.
	RegisterSession(ctx context.Context, agentID string, userID string) (string, error)
	// SessionOwnerRemote returns the owner of a server-side session.
	SessionOwnerRemote(ctx context.Context, sessionID string) (string, error)
}

// Reconciler decides which (userID, sessionID) pair accompanies each
// outgoing request.
//
// One reconciler serves one logical conversation surface; independent chat
// surfaces need independent instances to avoid cross-talk. All methods are
// safe for the interleaved access pattern of a single surface: last write
// wins on the shared pair.
type Reconciler struct {
	// store persists identity and transcripts; optional.
	store *Store
	// identities reports the authenticated principal; optional.
	identities IdentitySource
	// registrar creates server-side session records; optional.
	registrar Registrar
	// agentID scopes registered sessions to an agent.
	agentID string

	mu sync.Mutex
	// userID is the committed identity for this surface.
	userID string
	// sessionID is the committed conversation id, empty until first use.
	sessionID string
	// fallback records whether the current session id is locally synthesized.
	fallback bool
}

// NewReconciler constructs a reconciler for one conversation surface.
// Any of store, identities, and registrar may be nil; the reconciler then
// degrades to purely local behavior.
func NewReconciler(store *Store, identities IdentitySource, registrar Registrar, agentID string) *Reconciler {
	return &Reconciler{
		store:      store,
		identities: identities,
		registrar:  registrar,
		agentID:    agentID,
	}
}

// Identity returns the (userID, sessionID) pair for the next request,
// creating either half as needed. Session registration failure does not
// block the caller: a fallback-prefixed local id is issued instead.
func (r *Reconciler) Identity(ctx context.Context) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := r.resolveUserLocked(ctx)
	if r.sessionID == "" {
		r.sessionID, r.fallback = r.newSessionLocked(ctx, userID)
		if r.store != nil {
			// Best effort; a failed pointer write must not block the send.
			_ = r.store.SaveLastSession(r.sessionID)
		}
	}
	return userID, r.sessionID, nil
}

// resolveUserLocked picks the authenticated principal when available,
// otherwise the persisted (or freshly generated) anonymous id.
func (r *Reconciler) resolveUserLocked(ctx context.Context) string {
	if r.identities != nil {
		if principal, ok := r.identities.Principal(ctx); ok && principal != "" {
			r.userID = principal
			return principal
		}
	}
	if r.userID != "" && strings.HasPrefix(r.userID, AnonPrefix) {
		return r.userID
	}
	if r.store != nil {
		if persisted, err := r.store.LoadIdentity(); err == nil && persisted != "" {
			r.userID = persisted
			return persisted
		}
	}
	generated := AnonPrefix + uuid.NewString()
	r.userID = generated
	if r.store != nil {
		_ = r.store.SaveIdentity(generated)
	}
	return generated
}

// newSessionLocked creates a fresh conversation id, registering it remotely
// when possible and synthesizing a tagged local id when registration fails.
func (r *Reconciler) newSessionLocked(ctx context.Context, userID string) (string, bool) {
	if r.registrar == nil {
		return uuid.NewString(), false
	}
	assigned, err := r.registrar.RegisterSession(ctx, r.agentID, userID)
	if err != nil || assigned == "" {
		return FallbackPrefix + uuid.NewString(), true
	}
	return assigned, false
}

// Adopt commits a server-returned session id from a response, superseding
// the local one for subsequent requests.
func (r *Reconciler) Adopt(sessionID string) {
	if sessionID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessionID == sessionID {
		return
	}
	r.sessionID = sessionID
	r.fallback = false
	if r.store != nil {
		_ = r.store.SaveLastSession(sessionID)
	}
}

// SessionID returns the committed conversation id, if any.
func (r *Reconciler) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Fallback reports whether the current session id is locally synthesized.
func (r *Reconciler) Fallback() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fallback
}

// Clear discards the current conversation id. The user identity survives;
// the next request starts a fresh conversation.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = ""
	r.fallback = false
}

// Resume switches to a prior conversation after verifying the caller owns
// it. Ownership checks consult the local transcript first, then the server.
func (r *Reconciler) Resume(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id required")
	}

	r.mu.Lock()
	userID := r.resolveUserLocked(ctx)
	r.mu.Unlock()

	owner, err := r.sessionOwner(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("verify session owner: %w", err)
	}
	if owner != userID {
		return ErrNotOwned
	}

	r.mu.Lock()
	r.sessionID = sessionID
	r.fallback = strings.HasPrefix(sessionID, FallbackPrefix)
	r.mu.Unlock()
	if r.store != nil {
		_ = r.store.SaveLastSession(sessionID)
	}
	return nil
}

// sessionOwner resolves a session's owner from local records or the server.
func (r *Reconciler) sessionOwner(ctx context.Context, sessionID string) (string, error) {
	if r.store != nil {
		if owner, err := r.store.SessionOwner(sessionID); err == nil {
			return owner, nil
		}
	}
	if r.registrar != nil {
		return r.registrar.SessionOwnerRemote(ctx, sessionID)
	}
	return "", errors.New("session unknown")
}
