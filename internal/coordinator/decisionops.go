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

// DecisionOpsHandler exposes the DecisionOps surface participants poll and
// report to: getDecision, haveCommitted.
type DecisionOpsHandler struct {
	driver *Driver
	signer *identity.Signer
}

// NewDecisionOpsHandler constructs a DecisionOpsHandler. signer verifies
// the participant identity token every caller presents as Self.
func NewDecisionOpsHandler(driver *Driver, signer *identity.Signer) *DecisionOpsHandler {
	return &DecisionOpsHandler{driver: driver, signer: signer}
}

// RegisterRoutes wires the DecisionOps surface onto r.
func (h *DecisionOpsHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/getDecision", h.getDecision)
	r.POST("/haveCommitted", h.haveCommitted)
}

type decisionRequest struct {
	Index int64  `json:"index"`
	Self  string `json:"self"`
}

// verifySelf checks req.Self against the coordinator's own signing key. A
// failure is logged and counted but never blocks the call: the token is a
// tamper-evident identifier for attribution, not an authorization gate (a
// data node that registered before the coordinator minted tokens, or whose
// token expired mid-transaction, must still be able to recover via the
// decision table).
func (h *DecisionOpsHandler) verifySelf(ctx *gin.Context, self string) {
	if _, err := h.signer.Verify(self); err != nil {
		metrics.IdentityVerifications.WithLabelValues(string(identity.SurfaceDataParticipant), "invalid").Inc()
		logging.Warn(ctx.Request.Context(), "participant presented an unverifiable identity token", zap.Error(err))
		return
	}
	metrics.IdentityVerifications.WithLabelValues(string(identity.SurfaceDataParticipant), "ok").Inc()
}

func (h *DecisionOpsHandler) getDecision(c *gin.Context) {
	var req decisionRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	h.verifySelf(c, req.Self)
	ack := h.driver.GetDecision(req.Index)
	c.JSON(http.StatusOK, txn.AckResponse{Ack: ack})
}

func (h *DecisionOpsHandler) haveCommitted(c *gin.Context) {
	var req decisionRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	h.verifySelf(c, req.Self)
	h.driver.HaveCommitted(req.Index)
	c.JSON(http.StatusOK, txn.OKResponse("acknowledged"))
}
