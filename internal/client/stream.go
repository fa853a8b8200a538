package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// roomClosedSentinel is the literal line a chat node writes when its
// chatroom is deleted; see spec §6. It is not a control character, just the
// two-byte sequence backslash-c.
const roomClosedSentinel = "\\c"

// ErrRoomClosed is returned by Stream.Recv once the room-closed sentinel
// line has been read. Per spec §6 the caller displays a fixed notice and
// stops sending.
var ErrRoomClosed = errors.New("the chatroom has been deleted; no more messages may be delivered")

// ErrHandshakeRejected is returned by Dial when the chat node replies
// "fail\n" to the initial "<chatroom>:<username>" handshake line.
var ErrHandshakeRejected = errors.New("client: chat node rejected stream handshake")

// Stream is a connected subscription to one chatroom on one chat node,
// implementing the raw newline-delimited TCP protocol from spec §6. This is
// deliberately not a WebSocket connection: the wire format is a bare byte
// stream, and the admin-facing gorilla/websocket feed on the coordinator
// plays no part in it.
type Stream struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial opens a TCP connection to a chat node and performs the
// "<chatroom>:<username>\n" handshake, returning an error if the chat node
// responds "fail\n" or the connection cannot be established.
func Dial(ctx context.Context, addr, chatroom, username string) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}

	if _, err := fmt.Fprintf(conn, "%s:%s\n", chatroom, username); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: send handshake: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: read handshake reply: %w", err)
	}
	switch strings.TrimRight(line, "\r\n") {
	case "success":
		return &Stream{conn: conn, reader: reader}, nil
	case "fail":
		conn.Close()
		return nil, ErrHandshakeRejected
	default:
		conn.Close()
		return nil, fmt.Errorf("client: unexpected handshake reply %q", line)
	}
}

// Recv blocks for the next published message line, stripped of its
// trailing newline. It returns ErrRoomClosed after reading the room-closed
// sentinel; any other error (including io.EOF on a dead chat node) means
// the caller should trigger reestablishment.
func (s *Stream) Recv() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("client: stream closed: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == roomClosedSentinel {
		return "", ErrRoomClosed
	}
	return line, nil
}

// SetReadDeadline lets the receive loop bound how long it waits on Recv,
// useful for honoring a shutdown signal without blocking forever.
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// Close releases the underlying connection. The chat node treats this as a
// peer-initiated EOF and unsubscribes the caller.
func (s *Stream) Close() error {
	return s.conn.Close()
}
