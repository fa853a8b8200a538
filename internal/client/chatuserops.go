package client

import (
	"context"
	"fmt"
	"time"

	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
)

// ChatUserOps is a thin wrapper over a chat node's client-facing
// ChatUserOps surface: chat, joinChatroom, leaveChatroom. Session holds one
// of these per chatroom the client has joined, alongside its Stream.
type ChatUserOps struct {
	rpc *rpcutil.Client
}

// NewChatUserOps builds a ChatUserOps client bound to a chat node's ops
// base URL (e.g. "http://host:opsPort").
func NewChatUserOps(chatNodeOpsAddr string, timeout time.Duration) *ChatUserOps {
	return &ChatUserOps{rpc: rpcutil.NewClient("chatnode-chatuserops-"+chatNodeOpsAddr, chatNodeOpsAddr, timeout)}
}

type chatRequest struct {
	Chatroom string `json:"chatroom"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Chat sends a message to a joined chatroom.
func (c *ChatUserOps) Chat(ctx context.Context, chatroom, username, message string) (txn.Response, error) {
	var resp txn.Response
	err := c.rpc.PostJSON(ctx, "/chatUserOps/chat", chatRequest{Chatroom: chatroom, Username: username, Message: message}, &resp)
	return resp, err
}

type memberRequest struct {
	Chatroom string `json:"chatroom"`
	Username string `json:"username"`
}

// JoinChatroom announces a join; call this after Stream.Dial succeeds.
func (c *ChatUserOps) JoinChatroom(ctx context.Context, chatroom, username string) (txn.Response, error) {
	var resp txn.Response
	err := c.rpc.PostJSON(ctx, "/chatUserOps/joinChatroom", memberRequest{Chatroom: chatroom, Username: username}, &resp)
	return resp, err
}

// LeaveChatroom announces a leave; call this before closing the Stream so
// the chat node doesn't have to wait on stream EOF to notice.
func (c *ChatUserOps) LeaveChatroom(ctx context.Context, chatroom, username string) (txn.Response, error) {
	var resp txn.Response
	err := c.rpc.PostJSON(ctx, "/chatUserOps/leaveChatroom", memberRequest{Chatroom: chatroom, Username: username}, &resp)
	return resp, err
}

// chatNodeOpsAddr formats a chatroom placement's host+rmi_port into the
// base URL ChatUserOps/Session dial against.
func chatNodeOpsAddr(host string, rmiPort int) string {
	return fmt.Sprintf("http://%s:%d", host, rmiPort)
}
