package coordinator

import (
	"context"
	"net/http"
	"time"

	"github.com/chatmesh/server/internal/identity"
	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegistrationHandler exposes the Registration surface: registerDataNode,
// registerChatNode, getServerTime.
type RegistrationHandler struct {
	roster    *Roster
	placer    *Placer
	signer    *identity.Signer
	coordPort int
}

// NewRegistrationHandler constructs a RegistrationHandler. coordPort is
// returned to every registrant as the coordinator's 2PC/RPC port.
func NewRegistrationHandler(roster *Roster, placer *Placer, signer *identity.Signer, coordPort int) *RegistrationHandler {
	return &RegistrationHandler{roster: roster, placer: placer, signer: signer, coordPort: coordPort}
}

// RegisterRoutes wires the Registration surface onto r.
func (h *RegistrationHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/registerDataNode", h.registerDataNode)
	r.POST("/registerChatNode", h.registerChatNode)
	r.GET("/getServerTime", h.getServerTime)
}

// registerDataNode appends the caller to both data sequences and, for each
// name in known_chatrooms, calls innerCreateChatroom so previously durable
// chatrooms are re-placed at startup. A name that collides with an
// already-placed chatroom produces a logged warning and is skipped.
func (h *RegistrationHandler) registerDataNode(c *gin.Context) {
	var req txn.RegisterDataNodeRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}

	host := req.Host
	if host == "" {
		host = c.ClientIP()
	}

	ref := DataNodeRef{Host: host, OpsPort: req.OpsPort, ParticipantPort: req.ParticipantPort}
	h.roster.AddDataNode(ref)
	logging.Info(c.Request.Context(), "data node registered",
		zap.String("host", host), zap.Int("ops_port", req.OpsPort), zap.Int("participant_port", req.ParticipantPort))

	ctx := context.Background()
	for _, name := range req.KnownChatrooms {
		if _, _, err := h.placer.InnerCreateChatroom(ctx, name); err != nil {
			logging.Warn(ctx, "skipping known chatroom already placed", zap.String("chatroom", name), zap.Error(err))
		}
	}

	token, err := h.signer.Mint(host, req.OpsPort, req.ParticipantPort, identity.SurfaceDataParticipant)
	if err != nil {
		logging.Warn(c.Request.Context(), "failed to mint participant identity token", zap.Error(err))
	}
	c.JSON(http.StatusOK, txn.RegisterResponse{Port: h.coordPort, Token: token})
}

func (h *RegistrationHandler) registerChatNode(c *gin.Context) {
	var req txn.RegisterChatNodeRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}

	host := req.Host
	if host == "" {
		host = c.ClientIP()
	}

	ref := ChatNodeRef{Host: host, OpsPort: req.OpsPort, StreamPort: req.StreamPort}
	h.roster.AddChatNode(ref)
	logging.Info(c.Request.Context(), "chat node registered",
		zap.String("host", host), zap.Int("ops_port", req.OpsPort), zap.Int("stream_port", req.StreamPort))

	token, err := h.signer.Mint(host, req.OpsPort, req.StreamPort, identity.SurfaceChatOps)
	if err != nil {
		logging.Warn(c.Request.Context(), "failed to mint chat node identity token", zap.Error(err))
	}
	c.JSON(http.StatusOK, txn.RegisterResponse{Port: h.coordPort, Token: token})
}

// getServerTime is the opaque NOW() probe the clock-synchronization
// heartbeat polls; it carries no correctness role in 2PC or pub/sub.
func (h *RegistrationHandler) getServerTime(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"server_time_unix_millis": time.Now().UnixMilli()})
}
