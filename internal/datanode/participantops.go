package datanode

import (
	"net/http"

	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
	"github.com/gin-gonic/gin"
)

// ParticipantHandler exposes the DataParticipant surface (coordinator-facing
// 2PC protocol): canCommit, doCommit, doAbort.
type ParticipantHandler struct {
	participant *Participant
}

// NewParticipantHandler constructs a ParticipantHandler.
func NewParticipantHandler(p *Participant) *ParticipantHandler {
	return &ParticipantHandler{participant: p}
}

// RegisterRoutes wires the DataParticipant surface onto r.
func (h *ParticipantHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/canCommit", h.canCommit)
	r.POST("/doCommit", h.doCommit)
	r.POST("/doAbort", h.doAbort)
}

type participantRequest struct {
	Transaction txn.Transaction `json:"transaction"`
	Self        string          `json:"self"`
}

func (h *ParticipantHandler) canCommit(c *gin.Context) {
	var req participantRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	ack := h.participant.CanCommit(c.Request.Context(), req.Transaction)
	c.JSON(http.StatusOK, txn.AckResponse{Ack: ack})
}

func (h *ParticipantHandler) doCommit(c *gin.Context) {
	var req participantRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	h.participant.DoCommit(c.Request.Context(), req.Transaction)
	c.JSON(http.StatusOK, txn.OKResponse("committed"))
}

func (h *ParticipantHandler) doAbort(c *gin.Context) {
	var req participantRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	h.participant.DoAbort(req.Transaction)
	c.JSON(http.StatusOK, txn.OKResponse("aborted"))
}
