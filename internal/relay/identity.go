// ABOUTME: Store-backed identity resolution: identity string -> stable agent id
// ABOUTME: AgentDirectory registers unknown identities on first use

package relay

import (
	"context"
	"fmt"

	"github.com/2389/fold-relay/internal/store"
)

// AgentStore is what the directory needs from storage.
type AgentStore interface {
	EnsureAgent(ctx context.Context, name string) (*store.Agent, error)
	GetAgentByName(ctx context.Context, name string) (*store.Agent, error)
}

// AgentDirectory resolves identities against the agents table, creating an
// agent row the first time an identity appears. The mapping is stable: the
// same identity always yields the same id.
type AgentDirectory struct {
	store AgentStore
}

// NewAgentDirectory creates a directory over the given store.
func NewAgentDirectory(st AgentStore) *AgentDirectory {
	return &AgentDirectory{store: st}
}

// ResolveAgent implements IdentityResolver.
func (d *AgentDirectory) ResolveAgent(ctx context.Context, identity string) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("%w: identity is required", store.ErrInvalidInput)
	}
	agent, err := d.store.EnsureAgent(ctx, identity)
	if err != nil {
		return "", err
	}
	return agent.ID, nil
}

// Lookup resolves an identity without registering it. Returns
// store.ErrNotFound for unknown identities.
func (d *AgentDirectory) Lookup(ctx context.Context, identity string) (string, error) {
	agent, err := d.store.GetAgentByName(ctx, identity)
	if err != nil {
		return "", err
	}
	return agent.ID, nil
}

var _ IdentityResolver = (*AgentDirectory)(nil)
