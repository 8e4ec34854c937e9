package chat

import (
	"context"

	"github.com/inquestlabs/inquest/internal/platform"
)

// PlatformRegistrar adapts the platform client to the session registrar
// interface so the reconciler stays transport-agnostic.
type PlatformRegistrar struct {
	// Client executes the session requests.
	Client *platform.Client
}

// RegisterSession creates a server-side session record.
func (p *PlatformRegistrar) RegisterSession(ctx context.Context, agentID string, userID string) (string, error) {
	return p.Client.RegisterSession(ctx, agentID, userID)
}

// SessionOwnerRemote resolves the owner of a server-side session.
func (p *PlatformRegistrar) SessionOwnerRemote(ctx context.Context, sessionID string) (string, error) {
	info, err := p.Client.LookupSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return info.UserID, nil
}
