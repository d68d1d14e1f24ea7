// ABOUTME: Tests for message ordering, unread counts, and bookmark advancement
// ABOUTME: ReadNew must deliver each message at most once; peeks must never move cursors

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendTestMessage stamps and appends one message, returning it.
func appendTestMessage(t *testing.T, s *SQLiteStore, channelID, senderID, content string) *Message {
	t.Helper()
	id, err := s.ids.NextString()
	require.NoError(t, err)
	msg := &Message{
		ID:        id,
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.AppendMessage(ctxb(), msg))
	return msg
}

func ctxb() context.Context { return context.Background() }

func TestAppendMessage_Validation(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	err := store.AppendMessage(ctx, &Message{ChannelID: "c", SenderID: "a"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = store.AppendMessage(ctx, &Message{ID: "m", SenderID: "a"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = store.AppendMessage(ctx, &Message{ID: "m", ChannelID: "c"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestChannelMessages_AscendingOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	ch, err := store.CreateChannel(ctx, "ops", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		appendTestMessage(t, store, ch.ID, "agent-1", fmt.Sprintf("msg %d", i))
	}

	msgs, err := store.ChannelMessages(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("msg %d", i), m.Content)
	}
}

func TestChannelMessages_TimestampTieBrokenByID(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	ch, err := store.CreateChannel(ctx, "ops", "")
	require.NoError(t, err)

	// Identical timestamps; the time-ordered id is the tie-breaker.
	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		id, err := store.ids.NextString()
		require.NoError(t, err)
		require.NoError(t, store.AppendMessage(ctx, &Message{
			ID: id, ChannelID: ch.ID, SenderID: "agent-1",
			Content: fmt.Sprintf("msg %d", i), CreatedAt: at,
		}))
	}

	msgs, err := store.ChannelMessages(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("msg %d", i), m.Content)
	}
}

func TestChannelMessages_FractionalSecondOrdering(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	ch, err := store.CreateChannel(ctx, "ops", "")
	require.NoError(t, err)

	// Same second, distinct fractions chosen so a trimmed rendering of one
	// would be a string prefix of the next (.5s, .51s, .52s).
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	offsets := []time.Duration{500 * time.Millisecond, 510 * time.Millisecond, 520 * time.Millisecond}
	for i, off := range offsets {
		id, err := store.ids.NextString()
		require.NoError(t, err)
		require.NoError(t, store.AppendMessage(ctx, &Message{
			ID: id, ChannelID: ch.ID, SenderID: "agent-1",
			Content: fmt.Sprintf("msg %d", i), CreatedAt: base.Add(off),
		}))
	}

	msgs, err := store.ChannelMessages(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("msg %d", i), m.Content, "messages must come back in creation order")
	}
}

func TestReadNew_FractionalSecondCursor(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	ch, err := store.CreateChannel(ctx, "ops", "")
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	appendAt := func(content string, off time.Duration) {
		id, err := store.ids.NextString()
		require.NoError(t, err)
		require.NoError(t, store.AppendMessage(ctx, &Message{
			ID: id, ChannelID: ch.ID, SenderID: "agent-1",
			Content: content, CreatedAt: base.Add(off),
		}))
	}

	// Bookmark lands on a .5s message; later messages in the same second
	// with longer fractions (.51s, .52s) must still be judged after the
	// cursor.
	appendAt("one", 500*time.Millisecond)

	msgs, err := store.ReadNew(ctx, ch.ID, "reader")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	appendAt("two", 510*time.Millisecond)
	appendAt("three", 520*time.Millisecond)

	msgs, err = store.ReadNew(ctx, ch.ID, "reader")
	require.NoError(t, err)
	require.Len(t, msgs, 2, "messages after the bookmark must be delivered, never skipped")
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
}

func TestReadNew_FirstCallSeesEverything(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	ch, err := store.CreateChannel(ctx, "ops", "")
	require.NoError(t, err)
	appendTestMessage(t, store, ch.ID, "agent-1", "one")
	appendTestMessage(t, store, ch.ID, "agent-1", "two")

	msgs, err := store.ReadNew(ctx, ch.ID, "reader")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestReadNew_SecondCallIsEmpty(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	ch, err := store.CreateChannel(ctx, "ops", "")
	require.NoError(t, err)
	appendTestMessage(t, store, ch.ID, "agent-1", "one")

	msgs, err := store.ReadNew(ctx, ch.ID, "reader")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msgs, err = store.ReadNew(ctx, ch.ID, "reader")
	require.NoError(t, err)
	assert.Empty(t, msgs, "a delivered message must never be delivered again")
}

func TestReadNew_ResumesAfterBookmark(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	ch, err := store.CreateChannel(ctx, "ops", "")
	require.NoError(t, err)
	appendTestMessage(t, store, ch.ID, "agent-1", "one")

	_, err = store.ReadNew(ctx, ch.ID, "reader")
	require.NoError(t, err)

	appendTestMessage(t, store, ch.ID, "agent-1", "two")
	appendTestMessage(t, store, ch.ID, "agent-1", "three")

	msgs, err := store.ReadNew(ctx, ch.ID, "reader")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
}

func TestReadNew_IndependentConsumers(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	ch, err := store.CreateChannel(ctx, "ops", "")
	require.NoError(t, err)
	appendTestMessage(t, store, ch.ID, "agent-1", "one")

	msgs, err := store.ReadNew(ctx, ch.ID, "alice")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	// Alice's cursor does not affect bob.
	msgs, err = store.ReadNew(ctx, ch.ID, "bob")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestReadNew_EmptyAgent(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.ReadNew(ctxb(), "chan", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUnreadCount_NeverAdvances(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	ch, err := store.CreateChannel(ctx, "ops", "")
	require.NoError(t, err)
	appendTestMessage(t, store, ch.ID, "agent-1", "one")
	appendTestMessage(t, store, ch.ID, "agent-1", "two")

	// Peeking any number of times leaves the unread state untouched.
	for i := 0; i < 3; i++ {
		n, err := store.UnreadCount(ctx, ch.ID, "reader")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		_, err = store.ChannelMessages(ctx, ch.ID)
		require.NoError(t, err)
	}

	msgs, err := store.ReadNew(ctx, ch.ID, "reader")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	n, err := store.UnreadCount(ctx, ch.ID, "reader")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetBookmark(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	ch, err := store.CreateChannel(ctx, "ops", "")
	require.NoError(t, err)

	_, err = store.GetBookmark(ctx, "reader", ch.ID)
	assert.ErrorIs(t, err, ErrNotFound, "bookmark is created lazily on first read")

	msg := appendTestMessage(t, store, ch.ID, "agent-1", "one")
	_, err = store.ReadNew(ctx, ch.ID, "reader")
	require.NoError(t, err)

	b, err := store.GetBookmark(ctx, "reader", ch.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, b.LastSeenID)
}

func TestExportChannel(t *testing.T) {
	store := setupTestStore(t)
	ctx := ctxb()

	ch, err := store.CreateChannel(ctx, "ops", "incident response")
	require.NoError(t, err)
	appendTestMessage(t, store, ch.ID, "agent-1", "one")
	appendTestMessage(t, store, ch.ID, "agent-1", "two")
	require.NoError(t, store.AddNote(ctx, &Note{ChannelID: ch.ID, AgentID: "agent-1", Content: "postmortem"}))

	snap, err := store.ExportChannel(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, ch.ID, snap.Channel.ID)
	assert.Len(t, snap.Messages, 2)
	assert.Len(t, snap.Notes, 1)
}

func TestExportChannel_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.ExportChannel(ctxb(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
