package chatnode

import (
	"fmt"
	"net/http"

	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
	"github.com/gin-gonic/gin"
)

// ChatUserOpsHandler exposes the client-facing ChatUserOps surface: chat,
// joinChatroom, leaveChatroom. These operate on an already-subscribed
// stream established via the Stream surface (streamserver.go).
type ChatUserOpsHandler struct {
	node    *Node
	retrier *LogRetrier
}

// NewChatUserOpsHandler constructs a ChatUserOpsHandler.
func NewChatUserOpsHandler(node *Node, retrier *LogRetrier) *ChatUserOpsHandler {
	return &ChatUserOpsHandler{node: node, retrier: retrier}
}

// RegisterRoutes wires the ChatUserOps surface onto r.
func (h *ChatUserOpsHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/chat", h.chat)
	r.POST("/joinChatroom", h.joinChatroom)
	r.POST("/leaveChatroom", h.leaveChatroom)
}

type chatRequest struct {
	Chatroom string `json:"chatroom"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// chat publishes "<user> >> <msg>" to the room's subscribers and logs the
// same line through the coordinator's ChatOps (log) surface.
func (h *ChatUserOpsHandler) chat(c *gin.Context) {
	var req chatRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}

	room, ok := h.node.Get(req.Chatroom)
	if !ok {
		c.JSON(http.StatusOK, txn.FailResponse("chatroom not hosted here"))
		return
	}

	line := fmt.Sprintf("%s >> %s", req.Username, req.Message)
	room.Publish(c.Request.Context(), line)
	h.retrier.Submit(req.Chatroom, line)

	c.JSON(http.StatusOK, txn.OKResponse("sent"))
}

type memberRequest struct {
	Chatroom string `json:"chatroom"`
	Username string `json:"username"`
}

// joinChatroom publishes a "System >> <user> has joined the chat" notice.
func (h *ChatUserOpsHandler) joinChatroom(c *gin.Context) {
	var req memberRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	room, ok := h.node.Get(req.Chatroom)
	if !ok {
		c.JSON(http.StatusOK, txn.FailResponse("chatroom not hosted here"))
		return
	}
	room.Publish(c.Request.Context(), fmt.Sprintf("System >> %s has joined the chat", req.Username))
	c.JSON(http.StatusOK, txn.OKResponse("joined"))
}

// leaveChatroom unsubscribes username and publishes a leave notice.
func (h *ChatUserOpsHandler) leaveChatroom(c *gin.Context) {
	var req memberRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	room, ok := h.node.Get(req.Chatroom)
	if !ok {
		c.JSON(http.StatusOK, txn.FailResponse("chatroom not hosted here"))
		return
	}
	room.Unsubscribe(req.Username)
	room.Publish(c.Request.Context(), fmt.Sprintf("System >> %s has left the chat", req.Username))
	c.JSON(http.StatusOK, txn.OKResponse("left"))
}
