// ABOUTME: Message append/retrieval and per-agent bookmark cursors
// ABOUTME: Ordering key is (created_at, message_id); ReadNew advances the bookmark atomically

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const messageColumns = `message_id, channel_id, sender_agent_id, content, created_at`

// AppendMessage inserts a message. Messages are immutable once written;
// there is no update or per-message delete.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		return fmt.Errorf("%w: message id is required", ErrInvalidInput)
	}
	if msg.ChannelID == "" {
		return fmt.Errorf("%w: channel id is required", ErrInvalidInput)
	}
	if msg.SenderID == "" {
		return fmt.Errorf("%w: sender agent id is required", ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, channel_id, sender_agent_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.ChannelID, msg.SenderID, msg.Content, formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("appended message", "id", msg.ID, "channel_id", msg.ChannelID)
	return nil
}

// ChannelMessages returns every message in the channel in ascending
// creation order. It never touches bookmarks.
func (s *SQLiteStore) ChannelMessages(ctx context.Context, channelID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE channel_id = ?
		ORDER BY created_at ASC, message_id ASC
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// cursorPosition is the ordering-key position of an agent's bookmark in a
// channel: the (created_at, message_id) of the last seen message.
type cursorPosition struct {
	createdAt string
	messageID string
}

// bookmarkPosition resolves an agent's bookmark to its ordering-key
// position. A nil position means the agent has seen nothing. If the
// bookmarked message row is gone the id alone still positions the cursor,
// since ids are time-ordered.
func bookmarkPosition(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, agentID, channelID string) (*cursorPosition, error) {
	var lastSeenID string
	err := q.QueryRowContext(ctx, `
		SELECT last_seen_id FROM bookmarks WHERE agent_id = ? AND channel_id = ?
	`, agentID, channelID).Scan(&lastSeenID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying bookmark: %w", err)
	}

	pos := &cursorPosition{messageID: lastSeenID}
	err = q.QueryRowContext(ctx, `
		SELECT created_at FROM messages WHERE message_id = ?
	`, lastSeenID).Scan(&pos.createdAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying bookmarked message: %w", err)
	}
	return pos, nil
}

// afterClause builds the strictly-after-bookmark predicate and arguments.
func (p *cursorPosition) afterClause() (string, []any) {
	if p == nil {
		return "", nil
	}
	if p.createdAt == "" {
		return ` AND message_id > ?`, []any{p.messageID}
	}
	return ` AND (created_at > ? OR (created_at = ? AND message_id > ?))`,
		[]any{p.createdAt, p.createdAt, p.messageID}
}

// UnreadCount reports how many messages in the channel are past the agent's
// bookmark, without advancing it.
func (s *SQLiteStore) UnreadCount(ctx context.Context, channelID, agentID string) (int64, error) {
	pos, err := bookmarkPosition(ctx, s.db, agentID, channelID)
	if err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM messages WHERE channel_id = ?`
	args := []any{channelID}
	clause, clauseArgs := pos.afterClause()
	query += clause
	args = append(args, clauseArgs...)

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return n, nil
}

// ReadNew returns the messages strictly after the agent's bookmark, in
// ascending order, and advances the bookmark to the last returned message
// in the same transaction. An agent with no bookmark sees everything.
//
// Advancing before the caller acts on the messages is an accepted
// at-most-once trade-off: a consumer that crashes between fetch and action
// does not see those messages again.
func (s *SQLiteStore) ReadNew(ctx context.Context, channelID, agentID string) ([]*Message, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning read: %w", err)
	}
	defer tx.Rollback()

	pos, err := bookmarkPosition(ctx, tx, agentID, channelID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE channel_id = ?`
	args := []any{channelID}
	clause, clauseArgs := pos.afterClause()
	query += clause
	args = append(args, clauseArgs...)
	query += ` ORDER BY created_at ASC, message_id ASC`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying new messages: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bookmarks (agent_id, channel_id, last_seen_id, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(agent_id, channel_id) DO UPDATE SET
				last_seen_id = excluded.last_seen_id,
				updated_at   = excluded.updated_at
		`, agentID, channelID, last.ID, formatTime(time.Now().UTC()))
		if err != nil {
			return nil, fmt.Errorf("advancing bookmark: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing read: %w", err)
	}

	s.logger.Debug("delivered messages", "channel_id", channelID, "agent_id", agentID, "count", len(msgs))
	return msgs, nil
}

// GetBookmark retrieves an agent's cursor in a channel. Returns ErrNotFound
// if the agent has never received from the channel.
func (s *SQLiteStore) GetBookmark(ctx context.Context, agentID, channelID string) (*Bookmark, error) {
	var (
		b         Bookmark
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, channel_id, last_seen_id, updated_at
		FROM bookmarks
		WHERE agent_id = ? AND channel_id = ?
	`, agentID, channelID).Scan(&b.AgentID, &b.ChannelID, &b.LastSeenID, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying bookmark: %w", err)
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// ExportChannel produces a complete snapshot of a channel: metadata, all
// messages, and all notes. Returns ErrNotFound if the channel does not
// exist.
func (s *SQLiteStore) ExportChannel(ctx context.Context, name string) (*ChannelExport, error) {
	ch, err := s.GetChannel(ctx, name)
	if err != nil {
		return nil, err
	}

	msgs, err := s.ChannelMessages(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	notes, err := s.ListNotes(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	return &ChannelExport{Channel: ch, Messages: msgs, Notes: notes}, nil
}

// collectMessages drains rows into messages, closing the rows.
func collectMessages(rows *sql.Rows) ([]*Message, error) {
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			msg       Message
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		msg.CreatedAt = t
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}
