// ABOUTME: Multi-agent conversation scenario over one channel
// ABOUTME: Alternating senders must each receive only the other's messages, in send order

package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two agents alternate into one channel; after each own send, an agent's
// recv returns exactly the other agent's messages since its last recv, in
// send order.
func TestScenario_AlternatingAgents(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	alice, err := svc.ResolveIdentity(ctx, "alice")
	require.NoError(t, err)
	bob, err := svc.ResolveIdentity(ctx, "bob")
	require.NoError(t, err)

	// alice sends first and drains her own message.
	_, err = svc.Send(ctx, "ops", "alice", "alice-1")
	require.NoError(t, err)
	d, err := svc.Recv(ctx, "ops", alice)
	require.NoError(t, err)
	require.Equal(t, 1, d.Count)
	assert.Equal(t, "alice-1", d.Messages[0].Content)

	// bob's first recv sees everything so far.
	_, err = svc.Send(ctx, "ops", "bob", "bob-1")
	require.NoError(t, err)
	d, err = svc.Recv(ctx, "ops", bob)
	require.NoError(t, err)
	require.Equal(t, 2, d.Count)
	assert.Equal(t, "alice-1", d.Messages[0].Content)
	assert.Equal(t, "bob-1", d.Messages[1].Content)

	// alice's next recv sees only bob's message.
	_, err = svc.Send(ctx, "ops", "alice", "alice-2")
	require.NoError(t, err)
	d, err = svc.Recv(ctx, "ops", alice)
	require.NoError(t, err)
	require.Equal(t, 2, d.Count)
	assert.Equal(t, "bob-1", d.Messages[0].Content)
	assert.Equal(t, "alice-2", d.Messages[1].Content)
	assert.Equal(t, []string{bob, alice}, d.Senders)

	// bob catches up on alice's latest only.
	d, err = svc.Recv(ctx, "ops", bob)
	require.NoError(t, err)
	require.Equal(t, 1, d.Count)
	assert.Equal(t, "alice-2", d.Messages[0].Content)
	assert.Equal(t, []string{alice}, d.Senders)

	// Everyone is drained.
	for _, agent := range []string{alice, bob} {
		d, err := svc.Recv(ctx, "ops", agent)
		require.NoError(t, err)
		assert.Zero(t, d.Count)
	}
}

// Interleaving any number of peeks between recvs must yield the same final
// unread state as if the peeks had been omitted.
func TestScenario_PeeksAreInvisible(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	reader, err := svc.ResolveIdentity(ctx, "reader")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := svc.Send(ctx, "ops", "writer", "msg")
		require.NoError(t, err)

		_, _, err = svc.Peek(ctx, "ops", reader)
		require.NoError(t, err)
		_, _, err = svc.Peek(ctx, "ops", reader)
		require.NoError(t, err)
	}

	d, err := svc.Recv(ctx, "ops", reader)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Count, "peeks must not consume messages")
}
