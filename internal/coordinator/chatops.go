package coordinator

import (
	"net/http"

	"github.com/chatmesh/server/internal/identity"
	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/metrics"
	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChatOpsHandler exposes the coordinator-facing half of ChatOps: the
// chat-node-to-coordinator logChatMessage call. The chat-node-facing
// createChatroom/deleteChatroom/getChatroomData/getChatrooms surface lives
// on the chat node itself (internal/chatnode); the coordinator only calls
// into it, via Placer.
type ChatOpsHandler struct {
	driver *Driver
	admin  *AdminHub
	signer *identity.Signer
}

// NewChatOpsHandler constructs a ChatOpsHandler. admin may be nil.
func NewChatOpsHandler(driver *Driver, admin *AdminHub, signer *identity.Signer) *ChatOpsHandler {
	return &ChatOpsHandler{driver: driver, admin: admin, signer: signer}
}

// RegisterRoutes wires the coordinator-facing ChatOps surface onto r.
func (h *ChatOpsHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/logChatMessage", h.logChatMessage)
}

type logChatMessageRequest struct {
	Chatroom string `json:"chatroom"`
	Line     string `json:"line"`
	Self     string `json:"self"`
}

// logChatMessage runs GenericCommit(LOGMESSAGE, chatroom, line). The chat
// node retries this call until it gets a successful response; this handler always returns OK or FAIL, never an
// error status, so the chat node's retry loop has a clean signal.
func (h *ChatOpsHandler) logChatMessage(c *gin.Context) {
	var req logChatMessageRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if req.Self != "" {
		if _, err := h.signer.Verify(req.Self); err != nil {
			metrics.IdentityVerifications.WithLabelValues(string(identity.SurfaceChatOps), "invalid").Inc()
			logging.Warn(ctx, "chat node presented an unverifiable identity token", zap.Error(err))
		} else {
			metrics.IdentityVerifications.WithLabelValues(string(identity.SurfaceChatOps), "ok").Inc()
		}
	}

	if !h.driver.GenericCommit(ctx, txn.OpLogMessage, req.Chatroom, req.Line) {
		c.JSON(http.StatusOK, txn.FailResponse("log commit failed"))
		return
	}
	if h.admin != nil {
		h.admin.Broadcast(AdminEvent{Kind: "message_logged", Body: req.Chatroom})
	}
	c.JSON(http.StatusOK, txn.OKResponse("logged"))
}
