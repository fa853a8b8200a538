package client

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDial_SuccessHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		line, _ := reader.ReadString('\n')
		require.Equal(t, "general:alice\n", line)
		conn.Write([]byte("success\n"))
		conn.Write([]byte("System >> alice has joined the chat\n"))
	}()

	stream, err := Dial(context.Background(), ln.Addr().String(), "general", "alice")
	require.NoError(t, err)
	defer stream.Close()

	line, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, "System >> alice has joined the chat", line)
}

func TestDial_FailHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte("fail\n"))
	}()

	_, err = Dial(context.Background(), ln.Addr().String(), "missing", "alice")
	require.ErrorIs(t, err, ErrHandshakeRejected)
}

func TestStream_RecvRoomClosedSentinel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte("success\n"))
		conn.Write([]byte("\\c\n"))
	}()

	stream, err := Dial(context.Background(), ln.Addr().String(), "general", "alice")
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Recv()
	require.True(t, errors.Is(err, ErrRoomClosed))
}

func TestStream_ReadDeadlineHonored(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte("success\n"))
		time.Sleep(500 * time.Millisecond)
	}()

	stream, err := Dial(context.Background(), ln.Addr().String(), "general", "alice")
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err = stream.Recv()
	require.Error(t, err)
}
