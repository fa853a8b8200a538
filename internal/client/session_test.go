package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/chatmesh/server/internal/txn"
	"github.com/stretchr/testify/require"
)

// fakeChatStream runs a minimal stream listener that accepts one handshake,
// replies success, then lets the test push lines or close the connection.
func fakeChatStream(t *testing.T) (addr string, lines chan<- string, closeConn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	lineCh := make(chan string, 8)
	connCh := make(chan net.Conn, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte("success\n"))
		connCh <- conn
		for line := range lineCh {
			conn.Write([]byte(line + "\n"))
		}
	}()

	t.Cleanup(func() { ln.Close() })

	return ln.Addr().String(), lineCh, func() {
		select {
		case conn := <-connCh:
			conn.Close()
		case <-time.After(time.Second):
		}
	}
}

func fakeChatNodeOps(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chatUserOps/joinChatroom", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(txn.OKResponse("joined"))
	})
	mux.HandleFunc("/chatUserOps/leaveChatroom", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(txn.OKResponse("left"))
	})
	mux.HandleFunc("/chatUserOps/chat", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(txn.OKResponse("sent"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSession_JoinReceiveLeave(t *testing.T) {
	streamAddr, lines, _ := fakeChatStream(t)
	opsSrv := fakeChatNodeOps(t)
	host, tcpPort := parseHostPortTest(t, "tcp://"+streamAddr)
	opsHost, opsPort := parseHostPortTest(t, opsSrv.URL)
	require.Equal(t, host, opsHost)

	coord := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := txn.ChatroomResponse{
			Status: txn.StatusOK,
			Chatroom: txn.ChatroomPlacement{
				Name: "general", Host: host, TCPPort: tcpPort, RMIPort: opsPort,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer coord.Close()

	sess := NewSession(coord.URL, 2*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := sess.Join(ctx, "general", "alice")
	require.NoError(t, err)

	lines <- "System >> alice has joined the chat"
	select {
	case line := <-out:
		require.Equal(t, "System >> alice has joined the chat", line)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	require.NoError(t, sess.Send(ctx, "hello"))
	require.NoError(t, sess.Leave(ctx))
}

func parseHostPortTest(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	hostport := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		hostport = u.Host
	}
	host, portStr, err := net.SplitHostPort(hostport)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}
