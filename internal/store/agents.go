// ABOUTME: Agent identity rows mapping human-readable names to stable ids
// ABOUTME: EnsureAgent is the get-or-create used by identity resolution

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnsureAgent returns the agent with the given name, creating it on first
// use. The insert converges with concurrent callers via ON CONFLICT DO
// NOTHING.
func (s *SQLiteStore) EnsureAgent(ctx context.Context, name string) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: agent name is required", ErrInvalidInput)
	}

	id, err := s.ids.NextString()
	if err != nil {
		return nil, fmt.Errorf("generating agent id: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (agent_id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, id, name, formatTime(time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("ensuring agent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("registered agent", "id", id, "name", name)
	}

	return s.GetAgentByName(ctx, name)
}

// GetAgentByName retrieves an agent by name. Returns ErrNotFound if the
// agent has never been seen.
func (s *SQLiteStore) GetAgentByName(ctx context.Context, name string) (*Agent, error) {
	var (
		a         Agent
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, name, created_at FROM agents WHERE name = ?
	`, name).Scan(&a.ID, &a.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: agent %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}
