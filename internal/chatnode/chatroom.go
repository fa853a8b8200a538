// Package chatnode implements the chat-node role: hosted chatrooms, their
// subscriber fan-out, the raw TCP message stream, and the management
// surfaces the coordinator drives placement and logging through.
package chatnode

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/metrics"
	"go.uber.org/zap"
)

// subscriber pairs a connection with its buffered writer; one exists per
// (chatroom, username) stream currently attached.
type subscriber struct {
	conn net.Conn
	w    *bufio.Writer
}

// Chatroom holds (name, subscribers: username -> message stream), guarded
// by its own mutex per spec §5's shared-resource policy.
type Chatroom struct {
	name string

	mu          sync.Mutex
	subscribers map[string]*subscriber
}

// NewChatroom constructs an empty, unhosted Chatroom.
func NewChatroom(name string) *Chatroom {
	return &Chatroom{name: name, subscribers: make(map[string]*subscriber)}
}

// Name returns the chatroom's name.
func (r *Chatroom) Name() string { return r.name }

// Subscribe inserts conn into the subscribers map under username,
// replacing (and closing) any prior stream for the same username — a
// reconnect after an unexpected stream close.
func (r *Chatroom) Subscribe(conn net.Conn, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.subscribers[username]; ok {
		prior.conn.Close()
	}
	r.subscribers[username] = &subscriber{conn: conn, w: bufio.NewWriter(conn)}
	metrics.ActiveSubscribers.WithLabelValues(r.name).Set(float64(len(r.subscribers)))
}

// Unsubscribe removes username, closing its stream.
func (r *Chatroom) Unsubscribe(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.subscribers[username]; ok {
		sub.conn.Close()
		delete(r.subscribers, username)
		metrics.ActiveSubscribers.WithLabelValues(r.name).Set(float64(len(r.subscribers)))
	}
}

// Publish writes line+"\n" to every subscriber. Per-subscriber write
// errors are logged but do not remove the subscriber — it is cleaned up on
// its own leave or stream EOF (spec §7 open question).
func (r *Chatroom) Publish(ctx context.Context, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for username, sub := range r.subscribers {
		if _, err := sub.w.WriteString(line + "\n"); err != nil {
			logging.Warn(ctx, "publish write failed", zap.String("chatroom", r.name), zap.String("subscriber", username), zap.Error(err))
			continue
		}
		if err := sub.w.Flush(); err != nil {
			logging.Warn(ctx, "publish flush failed", zap.String("chatroom", r.name), zap.String("subscriber", username), zap.Error(err))
		}
	}
	metrics.ChatMessagesPublished.WithLabelValues(r.name).Inc()
}

// CloseRoom writes the room-closed sentinel "\c" to every subscriber, then
// closes each stream. After this call the chatroom removes itself from the
// chat node's roster (handled by the caller, Node.DeleteChatroom).
func (r *Chatroom) CloseRoom() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subscribers {
		sub.w.WriteString("\\c\n")
		sub.w.Flush()
		sub.conn.Close()
	}
	r.subscribers = make(map[string]*subscriber)
}

// SubscriberCount reports the number of currently attached subscribers.
func (r *Chatroom) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}
