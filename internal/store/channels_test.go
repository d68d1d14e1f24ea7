// ABOUTME: Tests for the channel registry: create, resolve, rename, archive, pin, delete, list
// ABOUTME: Covers name uniqueness, lifecycle transitions, and listing annotations

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChannel(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ch, err := store.CreateChannel(ctx, "general", "all hands")
	require.NoError(t, err)
	assert.Equal(t, "general", ch.Name)
	assert.Equal(t, "all hands", ch.Topic)
	assert.Len(t, ch.ID, 32)
	assert.False(t, ch.Archived())
}

func TestCreateChannel_EmptyName(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.CreateChannel(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateChannel_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateChannel(ctx, "general", "")
	require.NoError(t, err)

	_, err = store.CreateChannel(ctx, "general", "")
	assert.ErrorIs(t, err, ErrChannelExists)
}

func TestCreateChannel_DuplicateOfArchived(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateChannel(ctx, "general", "")
	require.NoError(t, err)
	require.NoError(t, store.ArchiveChannel(ctx, "general"))

	// Names are unique across archived channels too.
	_, err = store.CreateChannel(ctx, "general", "")
	assert.ErrorIs(t, err, ErrChannelExists)
}

func TestResolveChannel_CreatesOnce(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := store.ResolveChannel(ctx, "ops")
	require.NoError(t, err)

	second, err := store.ResolveChannel(ctx, "ops")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "resolve must converge on one channel")
}

func TestRenameChannel(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateChannel(ctx, "general", "")
	require.NoError(t, err)

	found, err := store.RenameChannel(ctx, "general", "town-square")
	require.NoError(t, err)
	assert.True(t, found)

	_, err = store.GetChannel(ctx, "general")
	assert.ErrorIs(t, err, ErrNotFound)

	ch, err := store.GetChannel(ctx, "town-square")
	require.NoError(t, err)
	assert.Equal(t, "town-square", ch.Name)
}

func TestRenameChannel_Missing(t *testing.T) {
	store := setupTestStore(t)

	found, err := store.RenameChannel(context.Background(), "ghost", "anything")
	require.NoError(t, err)
	assert.False(t, found, "renaming a missing channel is a no-op with a false result")
}

func TestRenameChannel_Conflict(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateChannel(ctx, "a", "")
	require.NoError(t, err)
	_, err = store.CreateChannel(ctx, "b", "")
	require.NoError(t, err)

	_, err = store.RenameChannel(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrChannelExists)
}

func TestArchiveChannel_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.ArchiveChannel(context.Background(), "general")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveChannel_HiddenButUsable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ch, err := store.CreateChannel(ctx, "general", "")
	require.NoError(t, err)
	require.NoError(t, store.ArchiveChannel(ctx, "general"))

	sums, err := store.ListChannels(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, sums, "archived channel must be hidden from default listing")

	sums, err = store.ListChannels(ctx, ListOptions{IncludeArchived: true})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.True(t, sums[0].Archived())

	// Still readable and writable.
	err = store.AppendMessage(ctx, &Message{
		ID: "01" + ch.ID[2:], ChannelID: ch.ID, SenderID: "agent-1",
		Content: "still here", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	msgs, err := store.ChannelMessages(ctx, ch.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestPinChannel_SortsFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateChannel(ctx, "alpha", "")
	require.NoError(t, err)
	_, err = store.CreateChannel(ctx, "zulu", "")
	require.NoError(t, err)

	require.NoError(t, store.PinChannel(ctx, "zulu"))

	sums, err := store.ListChannels(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, "zulu", sums[0].Name, "pinned channel must list first")
	assert.NotNil(t, sums[0].PinnedAt)

	require.NoError(t, store.UnpinChannel(ctx, "zulu"))
	sums, err = store.ListChannels(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, "alpha", sums[0].Name)
	assert.Nil(t, sums[1].PinnedAt)
}

func TestPinChannel_NotFound(t *testing.T) {
	store := setupTestStore(t)

	assert.ErrorIs(t, store.PinChannel(context.Background(), "ghost"), ErrNotFound)
	assert.ErrorIs(t, store.UnpinChannel(context.Background(), "ghost"), ErrNotFound)
}

func TestDeleteChannel_CascadesAndFreesName(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ch, err := store.CreateChannel(ctx, "general", "")
	require.NoError(t, err)

	agent, err := store.EnsureAgent(ctx, "alice")
	require.NoError(t, err)

	id, err := store.ids.NextString()
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, &Message{
		ID: id, ChannelID: ch.ID, SenderID: agent.ID,
		Content: "hello", CreatedAt: time.Now().UTC(),
	}))
	_, err = store.ReadNew(ctx, ch.ID, agent.ID)
	require.NoError(t, err)
	require.NoError(t, store.AddNote(ctx, &Note{ChannelID: ch.ID, AgentID: agent.ID, Content: "a note"}))

	require.NoError(t, store.DeleteChannel(ctx, "general"))

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts["channels"])
	assert.Zero(t, counts["messages"])
	assert.Zero(t, counts["bookmarks"])
	assert.Zero(t, counts["notes"])

	// Name reuse does not resurrect old data.
	fresh, err := store.CreateChannel(ctx, "general", "")
	require.NoError(t, err)
	assert.NotEqual(t, ch.ID, fresh.ID)

	msgs, err := store.ChannelMessages(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDeleteChannel_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.DeleteChannel(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListChannels_Annotations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ch, err := store.CreateChannel(ctx, "ops", "")
	require.NoError(t, err)

	alice, err := store.EnsureAgent(ctx, "alice")
	require.NoError(t, err)
	bob, err := store.EnsureAgent(ctx, "bob")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		id, err := store.ids.NextString()
		require.NoError(t, err)
		require.NoError(t, store.AppendMessage(ctx, &Message{
			ID: id, ChannelID: ch.ID, SenderID: alice.ID,
			Content: "msg", CreatedAt: time.Now().UTC(),
		}))
	}
	require.NoError(t, store.AddNote(ctx, &Note{ChannelID: ch.ID, AgentID: alice.ID, Content: "n"}))

	// Bob reads one batch, then a new message arrives.
	_, err = store.ReadNew(ctx, ch.ID, bob.ID)
	require.NoError(t, err)
	id, err := store.ids.NextString()
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, &Message{
		ID: id, ChannelID: ch.ID, SenderID: alice.ID,
		Content: "late", CreatedAt: time.Now().UTC(),
	}))

	sums, err := store.ListChannels(ctx, ListOptions{AgentID: bob.ID})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, int64(4), sums[0].MessageCount)
	assert.Equal(t, int64(1), sums[0].NoteCount)
	assert.Equal(t, int64(1), sums[0].UnreadCount)
	assert.NotNil(t, sums[0].LastActivity)
}
