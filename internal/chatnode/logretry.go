package chatnode

import (
	"context"
	"sync"
	"time"

	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
	"go.uber.org/zap"
)

// LogRetrier drives the chat-node side of logChatMessage: each chatroom
// gets its own FIFO queue and a single drain goroutine, so concurrent
// chat() calls against the same room submit to the coordinator in the
// order Publish observed them (spec §5's per-chat-node log-message
// ordering guarantee). The coordinator call itself is retried, waiting
// retryBackoff between attempts, until a successful response is received;
// failures merely loop.
type LogRetrier struct {
	client       *rpcutil.Client
	retryBackoff time.Duration

	mu    sync.Mutex
	ctx   context.Context
	self  string
	rooms map[string]chan logEntry
}

type logEntry struct {
	chatroom string
	line     string
}

// NewLogRetrier constructs a LogRetrier bound to the coordinator's ChatOps
// (log) surface. Start must be called with the server's long-lived context
// before any Submit call, since the per-room drain loops outlive any
// single HTTP request.
func NewLogRetrier(client *rpcutil.Client, retryBackoff time.Duration) *LogRetrier {
	return &LogRetrier{
		client:       client,
		retryBackoff: retryBackoff,
		rooms:        make(map[string]chan logEntry),
	}
}

// Start binds the context every per-chatroom drain goroutine runs under.
// Submitting before Start panics, so callers wire this in before serving
// any ChatUserOps traffic.
func (r *LogRetrier) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
}

// SetToken records the signed chat-node identity token minted by the
// coordinator at registration, presented back on every logChatMessage call.
func (r *LogRetrier) SetToken(token string) {
	r.mu.Lock()
	r.self = token
	r.mu.Unlock()
}

func (r *LogRetrier) selfToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self
}

// Submit enqueues line for durable logging on chatroom and returns
// immediately; the per-room drain goroutine submits it to the coordinator
// in FIFO order relative to every other Submit call for the same room.
func (r *LogRetrier) Submit(chatroom, line string) {
	r.queueFor(chatroom) <- logEntry{chatroom: chatroom, line: line}
}

func (r *LogRetrier) queueFor(chatroom string) chan logEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.rooms[chatroom]
	if ok {
		return ch
	}
	ch = make(chan logEntry, 256)
	r.rooms[chatroom] = ch
	go r.drain(r.ctx, ch)
	return ch
}

func (r *LogRetrier) drain(ctx context.Context, ch chan logEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			r.logMessage(ctx, e.chatroom, e.line)
		}
	}
}

type logChatMessageRequest struct {
	Chatroom string `json:"chatroom"`
	Line     string `json:"line"`
	Self     string `json:"self"`
}

// logMessage blocks, retrying, until the coordinator confirms the message
// is durably logged or ctx is cancelled.
func (r *LogRetrier) logMessage(ctx context.Context, chatroom, line string) {
	req := logChatMessageRequest{Chatroom: chatroom, Line: line, Self: r.selfToken()}

	for {
		var resp txn.Response
		err := r.client.PostJSON(ctx, "/chatOps/logChatMessage", req, &resp)
		if err == nil && resp.Status == txn.StatusOK {
			return
		}
		if err != nil {
			logging.Warn(ctx, "logChatMessage unreachable, retrying", zap.String("chatroom", chatroom), zap.Error(err))
		} else {
			logging.Warn(ctx, "logChatMessage rejected, retrying", zap.String("chatroom", chatroom), zap.String("message", resp.Message))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.retryBackoff):
		}
	}
}
