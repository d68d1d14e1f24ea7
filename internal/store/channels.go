// ABOUTME: Channel registry operations: create, resolve, rename, archive, pin, delete, list
// ABOUTME: Channel names are globally unique, archived channels included

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const channelColumns = `channel_id, name, topic, created_at, archived_at, pinned_at, notes`

// CreateChannel creates a new channel. Returns ErrInvalidInput for an empty
// name and ErrChannelExists when the name is already taken.
func (s *SQLiteStore) CreateChannel(ctx context.Context, name, topic string) (*Channel, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: channel name is required", ErrInvalidInput)
	}

	id, err := s.ids.NextString()
	if err != nil {
		return nil, fmt.Errorf("generating channel id: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO channels (channel_id, name, topic, created_at)
		VALUES (?, ?, ?, ?)
	`, id, name, nullString(topic), formatTime(now))
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("%w: %q", ErrChannelExists, name)
		}
		return nil, fmt.Errorf("inserting channel: %w", err)
	}

	s.logger.Debug("created channel", "id", id, "name", name)
	return &Channel{ID: id, Name: name, Topic: topic, CreatedAt: now}, nil
}

// ResolveChannel returns the channel with the given name, creating it if
// absent. The insert uses ON CONFLICT DO NOTHING so concurrent resolvers of
// the same name converge on a single row.
func (s *SQLiteStore) ResolveChannel(ctx context.Context, name string) (*Channel, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: channel name is required", ErrInvalidInput)
	}

	id, err := s.ids.NextString()
	if err != nil {
		return nil, fmt.Errorf("generating channel id: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (channel_id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, id, name, formatTime(time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("resolving channel: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("created channel on resolve", "id", id, "name", name)
	}

	return s.GetChannel(ctx, name)
}

// GetChannel retrieves a channel by name. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetChannel(ctx context.Context, name string) (*Channel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE name = ?
	`, name)
	return scanChannel(row)
}

// RenameChannel renames a channel. It reports whether a channel with the old
// name was found and updated; false with a nil error if not. Renaming onto
// an existing name returns ErrChannelExists.
func (s *SQLiteStore) RenameChannel(ctx context.Context, oldName, newName string) (bool, error) {
	if newName == "" {
		return false, fmt.Errorf("%w: new channel name is required", ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE channels SET name = ? WHERE name = ?
	`, newName, oldName)
	if err != nil {
		if isConstraintViolation(err) {
			return false, fmt.Errorf("%w: %q", ErrChannelExists, newName)
		}
		return false, fmt.Errorf("renaming channel: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	s.logger.Debug("renamed channel", "old", oldName, "new", newName)
	return true, nil
}

// ArchiveChannel soft-deletes a channel: hidden from default listings but
// still readable and writable. Returns ErrNotFound if no such channel.
func (s *SQLiteStore) ArchiveChannel(ctx context.Context, name string) error {
	return s.setChannelTimestamp(ctx, name, "archived_at", formatTime(time.Now().UTC()))
}

// PinChannel marks a channel pinned so listings sort it first.
func (s *SQLiteStore) PinChannel(ctx context.Context, name string) error {
	return s.setChannelTimestamp(ctx, name, "pinned_at", formatTime(time.Now().UTC()))
}

// UnpinChannel clears a channel's pin.
func (s *SQLiteStore) UnpinChannel(ctx context.Context, name string) error {
	return s.setChannelTimestamp(ctx, name, "pinned_at", nil)
}

// setChannelTimestamp updates one timestamp column by channel name. The
// affected-row count is the existence check, so there is no race between a
// separate lookup and the update.
func (s *SQLiteStore) setChannelTimestamp(ctx context.Context, name, column string, value any) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE channels SET %q = ? WHERE name = ?`, column),
		value, name)
	if err != nil {
		return fmt.Errorf("updating channel %s: %w", column, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: channel %q", ErrNotFound, name)
	}

	s.logger.Debug("updated channel", "name", name, "column", column)
	return nil
}

// DeleteChannel hard-deletes a channel and all its messages, bookmarks, and
// notes in one transaction. Irreversible; a later channel with the same name
// gets a fresh id and no old data.
func (s *SQLiteStore) DeleteChannel(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	var channelID string
	err = tx.QueryRowContext(ctx, `SELECT channel_id FROM channels WHERE name = ?`, name).Scan(&channelID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: channel %q", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("looking up channel: %w", err)
	}

	for _, table := range []string{"messages", "bookmarks", "notes"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %q WHERE channel_id = ?`, table), channelID); err != nil {
			return fmt.Errorf("deleting %s for channel: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE channel_id = ?`, channelID); err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Info("deleted channel", "name", name, "id", channelID)
	return nil
}

// ListChannels returns channels ordered pinned-first, annotated with message
// count, note count, and last-activity timestamp. When opts.AgentID is set,
// each summary also carries that agent's unread count.
func (s *SQLiteStore) ListChannels(ctx context.Context, opts ListOptions) ([]*ChannelSummary, error) {
	query := `
		SELECT c.channel_id, c.name, c.topic, c.created_at, c.archived_at, c.pinned_at, c.notes,
		       (SELECT COUNT(*) FROM messages m WHERE m.channel_id = c.channel_id),
		       (SELECT COUNT(*) FROM notes n WHERE n.channel_id = c.channel_id),
		       (SELECT MAX(m.created_at) FROM messages m WHERE m.channel_id = c.channel_id)
		FROM channels c
	`
	if !opts.IncludeArchived {
		query += ` WHERE c.archived_at IS NULL`
	}
	query += ` ORDER BY c.pinned_at IS NULL, c.pinned_at DESC, c.name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	var summaries []*ChannelSummary
	for rows.Next() {
		var (
			sum                            ChannelSummary
			topic, notes                   sql.NullString
			createdAt                      string
			archivedAt, pinnedAt, lastSeen sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &topic, &createdAt,
			&archivedAt, &pinnedAt, &notes,
			&sum.MessageCount, &sum.NoteCount, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning channel row: %w", err)
		}

		sum.Topic = topic.String
		sum.Notes = notes.String
		if sum.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if sum.ArchivedAt, err = parseNullTime(archivedAt); err != nil {
			return nil, err
		}
		if sum.PinnedAt, err = parseNullTime(pinnedAt); err != nil {
			return nil, err
		}
		if sum.LastActivity, err = parseNullTime(lastSeen); err != nil {
			return nil, err
		}
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channel rows: %w", err)
	}

	if opts.AgentID != "" {
		for _, sum := range summaries {
			unread, err := s.UnreadCount(ctx, sum.ID, opts.AgentID)
			if err != nil {
				return nil, err
			}
			sum.UnreadCount = unread
		}
	}

	return summaries, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanChannel is the conversion boundary from a raw channel row to a Channel.
func scanChannel(row rowScanner) (*Channel, error) {
	var (
		ch                   Channel
		topic, notes         sql.NullString
		createdAt            string
		archivedAt, pinnedAt sql.NullString
	)

	err := row.Scan(&ch.ID, &ch.Name, &topic, &createdAt, &archivedAt, &pinnedAt, &notes)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning channel: %w", err)
	}

	ch.Topic = topic.String
	ch.Notes = notes.String
	if ch.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if ch.ArchivedAt, err = parseNullTime(archivedAt); err != nil {
		return nil, err
	}
	if ch.PinnedAt, err = parseNullTime(pinnedAt); err != nil {
		return nil, err
	}
	return &ch, nil
}
