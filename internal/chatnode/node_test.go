package chatnode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNode_CreateChatroom_RejectsDuplicate(t *testing.T) {
	n := NewNode("host1", 9001, 9002)
	_, ok := n.CreateChatroom("general")
	require.True(t, ok)
	_, ok = n.CreateChatroom("general")
	require.False(t, ok)
}

func TestNode_DeleteChatroom(t *testing.T) {
	n := NewNode("host1", 9001, 9002)
	n.CreateChatroom("general")
	require.True(t, n.DeleteChatroom("general"))
	require.False(t, n.DeleteChatroom("general"))
}

func TestNode_Stats(t *testing.T) {
	n := NewNode("host1", 9001, 9002)
	room, _ := n.CreateChatroom("general")
	server, _ := pipeConn(t)
	room.Subscribe(server, "alice")

	stats := n.Stats()
	require.Equal(t, 1, stats.ChatroomCount)
	require.Equal(t, 1, stats.UserCount)
	require.Equal(t, 9001, stats.RMIPort)
	require.Equal(t, 9002, stats.TCPPort)
}
