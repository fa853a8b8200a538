package chatnode

import (
	"net/http"

	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
	"github.com/gin-gonic/gin"
)

// ChatOpsHandler exposes the chat-node-facing ChatOps (mgmt) surface the
// coordinator drives: createChatroom, deleteChatroom, getChatroomData,
// getChatrooms.
type ChatOpsHandler struct {
	node *Node
}

// NewChatOpsHandler constructs a ChatOpsHandler.
func NewChatOpsHandler(node *Node) *ChatOpsHandler {
	return &ChatOpsHandler{node: node}
}

// RegisterRoutes wires the ChatOps (mgmt) surface onto r.
func (h *ChatOpsHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/createChatroom", h.createChatroom)
	r.POST("/deleteChatroom", h.deleteChatroom)
	r.GET("/getChatroomData", h.getChatroomData)
	r.GET("/getChatrooms", h.getChatrooms)
}

type chatroomNameRequest struct {
	Name string `json:"name"`
}

func (h *ChatOpsHandler) createChatroom(c *gin.Context) {
	var req chatroomNameRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	if _, ok := h.node.CreateChatroom(req.Name); !ok {
		c.JSON(http.StatusOK, txn.FailResponse("chatroom already hosted here"))
		return
	}
	c.JSON(http.StatusOK, txn.OKResponse("created"))
}

func (h *ChatOpsHandler) deleteChatroom(c *gin.Context) {
	var req chatroomNameRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	if !h.node.DeleteChatroom(req.Name) {
		c.JSON(http.StatusOK, txn.FailResponse("chatroom not hosted here"))
		return
	}
	c.JSON(http.StatusOK, txn.OKResponse("deleted"))
}

func (h *ChatOpsHandler) getChatroomData(c *gin.Context) {
	stats := h.node.Stats()
	c.JSON(http.StatusOK, txn.ChatroomDataResponse{
		ChatroomCount: stats.ChatroomCount,
		UserCount:     stats.UserCount,
		Host:          stats.Host,
		RMIPort:       stats.RMIPort,
		TCPPort:       stats.TCPPort,
	})
}

func (h *ChatOpsHandler) getChatrooms(c *gin.Context) {
	c.JSON(http.StatusOK, txn.ChatroomListResponse{Status: txn.StatusOK, Names: h.node.ChatroomNames()})
}
