package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chatmesh/server/internal/logging"
	"go.uber.org/zap"
)

// FixedRoomClosedNotice is the exact notice spec §6 requires the client to
// display upon receiving the room-closed sentinel.
const FixedRoomClosedNotice = "The chatroom has been deleted; no more messages may be delivered"

// Session owns one client's subscription lifecycle: at most one joined
// chatroom at a time, with automatic reestablishment when the underlying
// stream drops unexpectedly. This is the barrier described in spec §9 — a
// single active subscription, with the receive loop itself acting as the
// wake handle the caller blocks on via the channel Join returns.
type Session struct {
	coordinator *UserOps
	dialTimeout time.Duration

	mu       sync.Mutex
	chatroom string
	username string
	ops      *ChatUserOps
	stream   *Stream
}

// NewSession builds a Session bound to one coordinator.
func NewSession(coordinatorAddr string, timeout time.Duration) *Session {
	return &Session{
		coordinator: NewUserOps(coordinatorAddr, timeout),
		dialTimeout: timeout,
	}
}

// Join looks up chatroom's placement, dials its stream, announces the join,
// and starts a background receive loop. The returned channel delivers each
// published line (already stripped of its trailing newline); it is closed
// when the room-closed sentinel arrives or ctx is cancelled. Per spec §9
// the loop honors ctx as its shutdown signal rather than leaking forever.
func (s *Session) Join(ctx context.Context, chatroom, username string) (<-chan string, error) {
	placement, err := s.coordinator.GetChatroom(ctx, chatroom)
	if err != nil {
		return nil, fmt.Errorf("client: get chatroom: %w", err)
	}

	if err := s.attach(ctx, chatroom, username, placement.Chatroom.Host, placement.Chatroom.TCPPort, placement.Chatroom.RMIPort); err != nil {
		return nil, err
	}

	out := make(chan string, 16)
	go s.receiveLoop(ctx, out)
	// Cancelling ctx closes the active stream, so a Recv blocked in the
	// receive loop returns and the loop observes ctx.Done.
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		stream := s.stream
		s.mu.Unlock()
		stream.Close()
	}()
	return out, nil
}

func (s *Session) attach(ctx context.Context, chatroom, username, host string, tcpPort, rmiPort int) error {
	streamAddr := fmt.Sprintf("%s:%d", host, tcpPort)
	stream, err := Dial(ctx, streamAddr, chatroom, username)
	if err != nil {
		return fmt.Errorf("client: dial stream: %w", err)
	}

	ops := NewChatUserOps(chatNodeOpsAddr(host, rmiPort), s.dialTimeout)
	if _, err := ops.JoinChatroom(ctx, chatroom, username); err != nil {
		stream.Close()
		return fmt.Errorf("client: announce join: %w", err)
	}

	s.mu.Lock()
	s.chatroom, s.username, s.ops, s.stream = chatroom, username, ops, stream
	s.mu.Unlock()
	return nil
}

// receiveLoop is the client's endless message-receive task (spec §5): it
// blocks on Stream.Recv, forwards each line, and on an unexpected stream
// failure calls reestablishChatroom and transparently reconnects before
// resuming delivery.
func (s *Session) receiveLoop(ctx context.Context, out chan<- string) {
	defer close(out)
	for {
		s.mu.Lock()
		stream := s.stream
		chatroom, username := s.chatroom, s.username
		s.mu.Unlock()

		line, err := stream.Recv()
		if err == nil {
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
			continue
		}

		if errors.Is(err, ErrRoomClosed) {
			select {
			case out <- FixedRoomClosedNotice:
			case <-ctx.Done():
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		logging.Warn(ctx, "stream closed unexpectedly, reestablishing", zap.String("chatroom", chatroom), zap.Error(err))
		stream.Close()

		placement, rerr := s.coordinator.ReestablishChatroom(ctx, chatroom, username)
		if rerr != nil || placement.Status != "OK" {
			return
		}
		if aerr := s.attach(ctx, chatroom, username, placement.Chatroom.Host, placement.Chatroom.TCPPort, placement.Chatroom.RMIPort); aerr != nil {
			return
		}
	}
}

// Leave announces a leave and closes the active stream. Safe to call even
// if Join was never called.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	ops, stream, chatroom, username := s.ops, s.stream, s.chatroom, s.username
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	if ops != nil {
		if _, err := ops.LeaveChatroom(ctx, chatroom, username); err != nil {
			logging.Warn(ctx, "leave announcement failed", zap.Error(err))
		}
	}
	return stream.Close()
}

// Send publishes a message to the currently joined chatroom.
func (s *Session) Send(ctx context.Context, message string) error {
	s.mu.Lock()
	ops, chatroom, username := s.ops, s.chatroom, s.username
	s.mu.Unlock()

	if ops == nil {
		return fmt.Errorf("client: no active chatroom")
	}
	resp, err := ops.Chat(ctx, chatroom, username, message)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return fmt.Errorf("client: chat rejected: %s", resp.Message)
	}
	return nil
}
