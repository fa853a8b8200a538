package datanode

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_ApplyCreateUser_Idempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.ApplyCreateUser(ctx, "alice", "pw1"))
	require.True(t, store.UserExists("alice"))
	require.True(t, store.VerifyUser("alice", "pw1"))

	// Re-applying the same committed transaction (decision-poll replay,
	// or a doCommit retried after a lost haveCommitted ack) must not
	// clobber the existing password or duplicate the users.txt line.
	require.NoError(t, store.ApplyCreateUser(ctx, "alice", "pw2"))
	require.True(t, store.VerifyUser("alice", "pw1"))
	require.False(t, store.VerifyUser("alice", "pw2"))

	data, err := os.ReadFile(filepath.Join(store.dir, "users.txt"))
	require.NoError(t, err)
	require.Equal(t, "alice:pw1\n", string(data))
}

func TestStore_ApplyCreateChatroom_Idempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.ApplyCreateChatroom(ctx, "general", "alice"))
	require.True(t, store.ChatroomExists("general"))
	require.True(t, store.VerifyOwnership("general", "alice"))

	require.NoError(t, store.ApplyCreateChatroom(ctx, "general", "bob"))
	require.True(t, store.VerifyOwnership("general", "alice"))

	_, err = os.Stat(store.chatlogPath("general"))
	require.NoError(t, err)
}

func TestStore_ApplyDeleteChatroom_Idempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.ApplyCreateChatroom(ctx, "general", "alice"))
	require.NoError(t, store.ApplyDeleteChatroom(ctx, "general"))
	require.False(t, store.ChatroomExists("general"))

	_, err = os.Stat(store.chatlogPath("general"))
	require.True(t, os.IsNotExist(err))

	// Deleting again must be a no-op, not an error.
	require.NoError(t, store.ApplyDeleteChatroom(ctx, "general"))
}

func TestStore_ApplyLogMessage_VanishedChatroomDiscarded(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	// No such chatroom was ever created; the spec's stated ordering gap
	// means a log line for it is silently discarded, not an error.
	require.NoError(t, store.ApplyLogMessage(ctx, "ghost", "alice >> hello"))
}

func TestStore_ReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.ApplyCreateUser(ctx, "alice", "pw1"))
	require.NoError(t, s1.ApplyCreateChatroom(ctx, "general", "alice"))

	s2, err := NewStore(dir)
	require.NoError(t, err)
	require.True(t, s2.UserExists("alice"))
	require.True(t, s2.VerifyOwnership("general", "alice"))
	require.Contains(t, s2.KnownChatrooms(), "general")
}
