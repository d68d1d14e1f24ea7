// ABOUTME: Append-only channel notes, outside bookmark ordering
// ABOUTME: Notes are annotations on a channel, consumed by listing rather than cursors

package store

import (
	"context"
	"fmt"
	"time"
)

// AddNote appends a note to a channel. The note id is stamped here if the
// caller left it empty.
func (s *SQLiteStore) AddNote(ctx context.Context, note *Note) error {
	if note.ChannelID == "" {
		return fmt.Errorf("%w: channel id is required", ErrInvalidInput)
	}
	if note.AgentID == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	if note.Content == "" {
		return fmt.Errorf("%w: note content is required", ErrInvalidInput)
	}

	if note.ID == "" {
		id, err := s.ids.NextString()
		if err != nil {
			return fmt.Errorf("generating note id: %w", err)
		}
		note.ID = id
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (note_id, channel_id, agent_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, note.ID, note.ChannelID, note.AgentID, note.Content, formatTime(note.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting note: %w", err)
	}

	s.logger.Debug("added note", "id", note.ID, "channel_id", note.ChannelID)
	return nil
}

// ListNotes returns a channel's notes in creation order.
func (s *SQLiteStore) ListNotes(ctx context.Context, channelID string) ([]*Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT note_id, channel_id, agent_id, content, created_at
		FROM notes
		WHERE channel_id = ?
		ORDER BY created_at ASC, note_id ASC
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		var (
			n         Note
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.ChannelID, &n.AgentID, &n.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning note row: %w", err)
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		notes = append(notes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating note rows: %w", err)
	}
	return notes, nil
}
