package chatnode

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func TestChatroom_SubscribePublish(t *testing.T) {
	room := NewChatroom("general")
	server, client := pipeConn(t)

	room.Subscribe(server, "alice")
	require.Equal(t, 1, room.SubscriberCount())

	go room.Publish(context.Background(), "System >> alice has joined the chat")

	reader := bufio.NewReader(client)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "System >> alice has joined the chat\n", line)
}

func TestChatroom_Unsubscribe(t *testing.T) {
	room := NewChatroom("general")
	server, _ := pipeConn(t)
	room.Subscribe(server, "alice")
	room.Unsubscribe("alice")
	require.Equal(t, 0, room.SubscriberCount())
}

func TestChatroom_CloseRoomSendsSentinel(t *testing.T) {
	room := NewChatroom("general")
	server, client := pipeConn(t)
	room.Subscribe(server, "alice")

	done := make(chan string, 1)
	go func() {
		reader := bufio.NewReader(client)
		line, _ := reader.ReadString('\n')
		done <- line
	}()

	room.CloseRoom()

	select {
	case line := <-done:
		require.Equal(t, "\\c\n", line)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sentinel")
	}
	require.Equal(t, 0, room.SubscriberCount())
}
