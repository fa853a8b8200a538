package chatnode

import (
	"bufio"
	"context"
	"net"
	"strings"

	"github.com/chatmesh/server/internal/logging"
	"go.uber.org/zap"
)

// StreamServer implements the raw newline-delimited TCP byte stream from
// spec §6: a client opens a connection and sends "<chatroom>:<username>\n";
// the chat node replies "success\n" or "fail\n" and, on success, subscribes
// the connection to the chatroom for the rest of its lifetime.
type StreamServer struct {
	node     *Node
	listener net.Listener
}

// NewStreamServer constructs a StreamServer bound to node's chatroom set.
func NewStreamServer(node *Node) *StreamServer {
	return &StreamServer{node: node}
}

// ListenAndServe opens the TCP listener on addr and accepts connections
// until ctx is cancelled or the listener fails.
func (s *StreamServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logging.Warn(ctx, "stream accept failed", zap.Error(err))
				continue
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *StreamServer) handleConn(ctx context.Context, conn net.Conn) {
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return
	}
	line = strings.TrimRight(line, "\r\n")

	chatroom, username, ok := strings.Cut(line, ":")
	if !ok || chatroom == "" || username == "" {
		conn.Write([]byte("fail\n"))
		conn.Close()
		return
	}

	room, ok := s.node.Get(chatroom)
	if !ok {
		conn.Write([]byte("fail\n"))
		conn.Close()
		return
	}

	if _, err := conn.Write([]byte("success\n")); err != nil {
		conn.Close()
		return
	}

	room.Subscribe(conn, username)

	// The stream is now write-only from the chat node's side; a blocking
	// read here detects client-initiated close (EOF) so the subscriber
	// can be cleaned up without waiting on an explicit leaveChatroom.
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			room.Unsubscribe(username)
			return
		}
	}
}
