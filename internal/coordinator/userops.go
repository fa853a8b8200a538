package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/chatmesh/server/internal/txn"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserOpsHandler exposes the client-facing UserOps surface: registerUser,
// login, createChatroom, getChatroom, deleteChatroom, listChatrooms,
// reestablishChatroom.
type UserOpsHandler struct {
	roster        *Roster
	driver        *Driver
	placer        *Placer
	clientTimeout time.Duration

	// reestablishMu serializes reestablishChatroom per spec §4.5: only one
	// client's request at a time runs the body, so the sentinel-message
	// check below is race-free.
	reestablishMu sync.Mutex
}

// NewUserOpsHandler constructs a UserOpsHandler.
func NewUserOpsHandler(roster *Roster, driver *Driver, placer *Placer, clientTimeout time.Duration) *UserOpsHandler {
	return &UserOpsHandler{roster: roster, driver: driver, placer: placer, clientTimeout: clientTimeout}
}

// RegisterRoutes wires the UserOps surface onto r.
func (h *UserOpsHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/registerUser", h.registerUser)
	r.POST("/login", h.login)
	r.POST("/createChatroom", h.createChatroom)
	r.POST("/deleteChatroom", h.deleteChatroom)
	r.GET("/getChatroom/:name", h.getChatroom)
	r.GET("/listChatrooms", h.listChatrooms)
	r.POST("/reestablishChatroom", h.reestablishChatroom)
}

func (h *UserOpsHandler) dataOpsClient(ref DataNodeRef) *rpcutil.Client {
	return rpcutil.NewClient("dataops-"+ref.Host, ref.opsBaseURL(), h.clientTimeout)
}

type userCredRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// registerUser rejects ":" in either field, checks userExists at any
// reachable data node, and on success runs GenericCommit(CREATEUSER).
func (h *UserOpsHandler) registerUser(c *gin.Context) {
	var req userCredRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if strings.Contains(req.Username, ":") || strings.Contains(req.Password, ":") {
		c.JSON(http.StatusOK, txn.FailResponse("username and password may not contain ':'"))
		return
	}

	if len(h.roster.DataParticipants()) == 0 {
		c.JSON(http.StatusOK, txn.FailResponse("no data nodes available"))
		return
	}

	if exists, ok := h.anyUserExists(ctx, req.Username); ok && exists {
		c.JSON(http.StatusOK, txn.FailResponse("User already exists"))
		return
	}

	if !h.driver.GenericCommit(ctx, txn.OpCreateUser, req.Username, req.Password) {
		c.JSON(http.StatusOK, txn.FailResponse("registration failed"))
		return
	}
	c.JSON(http.StatusOK, txn.OKResponse("registered"))
}

// login calls verifyUser at every data node in data_ops roster order; the
// first OK wins. No 2PC.
func (h *UserOpsHandler) login(c *gin.Context) {
	var req userCredRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	for _, d := range h.roster.DataOps() {
		client := h.dataOpsClient(d)
		var resp struct {
			OK bool `json:"ok"`
		}
		if err := client.PostJSON(ctx, "/dataOps/verifyUser", req, &resp); err != nil {
			logging.Warn(ctx, "verifyUser unreachable, trying next data node", zap.String("data_node", d.Host), zap.Error(err))
			continue
		}
		if resp.OK {
			c.JSON(http.StatusOK, txn.OKResponse("login successful"))
			return
		}
	}
	c.JSON(http.StatusOK, txn.FailResponse("invalid credentials"))
}

type createChatroomRequest struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// createChatroom rejects ":" in the name, pre-checks existence, and runs
// the explicit 2PC path with innerCreateChatroom as the phase-B side effect.
func (h *UserOpsHandler) createChatroom(c *gin.Context) {
	var req createChatroomRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if strings.Contains(req.Name, ":") {
		c.JSON(http.StatusOK, txn.ChatroomResponse{Status: txn.StatusFail, Message: "chatroom name may not contain ':'"})
		return
	}

	if len(h.roster.DataParticipants()) == 0 {
		c.JSON(http.StatusOK, txn.ChatroomResponse{Status: txn.StatusFail, Message: "no data nodes available"})
		return
	}

	if exists, ok := h.anyChatroomExists(ctx, req.Name); ok && exists {
		c.JSON(http.StatusOK, txn.ChatroomResponse{Status: txn.StatusFail, Message: "chatroom already exists"})
		return
	}

	t, votedYes := h.driver.BeginExplicit(ctx, txn.OpCreateChatroom, req.Name, req.Owner)
	if !votedYes {
		h.driver.AbortExplicit(ctx, t)
		c.JSON(http.StatusOK, txn.ChatroomResponse{Status: txn.StatusFail, Message: "registration failed"})
		return
	}

	placement, failMsg, err := h.placer.InnerCreateChatroom(ctx, req.Name)
	if err != nil {
		h.driver.AbortExplicit(ctx, t)
		c.JSON(http.StatusOK, txn.ChatroomResponse{Status: txn.StatusFail, Message: failMsg})
		return
	}

	h.driver.CompleteExplicit(ctx, t)
	c.JSON(http.StatusOK, txn.ChatroomResponse{Status: txn.StatusOK, Message: "created", Chatroom: placement})
}

type deleteChatroomRequest struct {
	Chatroom string `json:"chatroom"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// deleteChatroom gates existence, credentials, and ownership in order
// before attempting the explicit 2PC path with DELETECHATROOM.
func (h *UserOpsHandler) deleteChatroom(c *gin.Context) {
	var req deleteChatroomRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if exists, ok := h.anyChatroomExists(ctx, req.Chatroom); !ok || !exists {
		c.JSON(http.StatusOK, txn.FailResponse("Chatroom doesn't exist"))
		return
	}
	if ok, verified := h.anyVerifyUser(ctx, req.Username, req.Password); !ok || !verified {
		c.JSON(http.StatusOK, txn.FailResponse("Unable to verify user"))
		return
	}
	if ok, owns := h.anyVerifyOwnership(ctx, req.Chatroom, req.Username); !ok || !owns {
		c.JSON(http.StatusOK, txn.FailResponse(fmt.Sprintf("User %q is unauthorized to delete this chatroom", req.Username)))
		return
	}

	t, votedYes := h.driver.BeginExplicit(ctx, txn.OpDeleteChatroom, req.Chatroom, req.Username)
	if !votedYes {
		h.driver.AbortExplicit(ctx, t)
		c.JSON(http.StatusOK, txn.FailResponse("deletion failed"))
		return
	}

	if err := h.placer.DeleteChatroomOnNode(ctx, req.Chatroom); err != nil {
		h.driver.AbortExplicit(ctx, t)
		c.JSON(http.StatusOK, txn.FailResponse("chat node refused deletion"))
		return
	}

	h.driver.CompleteExplicit(ctx, t)
	c.JSON(http.StatusOK, txn.OKResponse("deleted"))
}

// getChatroom scans live chat nodes for name and returns its placement.
func (h *UserOpsHandler) getChatroom(c *gin.Context) {
	name := c.Param("name")
	placement, ok := h.placer.GetChatroomResponse(c.Request.Context(), name)
	if !ok {
		c.JSON(http.StatusOK, txn.ChatroomResponse{Status: txn.StatusFail, Message: "chatroom not found"})
		return
	}
	c.JSON(http.StatusOK, txn.ChatroomResponse{Status: txn.StatusOK, Chatroom: placement})
}

// listChatrooms fans getChatrooms() out to every chat node and
// concatenates names; unreachable nodes are skipped silently.
func (h *UserOpsHandler) listChatrooms(c *gin.Context) {
	ctx := c.Request.Context()
	var names []string
	for _, cn := range h.roster.ChatNodes() {
		roomNames, err := h.placer.getChatrooms(ctx, cn)
		if err != nil {
			continue
		}
		names = append(names, roomNames...)
	}
	c.JSON(http.StatusOK, txn.ChatroomListResponse{Status: txn.StatusOK, Names: names})
}

type reestablishRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// reestablishChatroom is single-flight: a dedicated mutex serializes the
// body so the sentinel-message race is impossible.
func (h *UserOpsHandler) reestablishChatroom(c *gin.Context) {
	var req reestablishRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	h.reestablishMu.Lock()
	defer h.reestablishMu.Unlock()

	h.roster.Sweep(ctx)

	placement, failMsg, err := h.placer.InnerCreateChatroom(ctx, req.Name)
	if err == nil {
		c.JSON(http.StatusOK, txn.ChatroomResponse{Status: txn.StatusOK, Message: "reestablished", Chatroom: placement})
		return
	}

	if failMsg == txn.SentinelChatroomExists {
		existing, ok := h.placer.GetChatroomResponse(ctx, req.Name)
		if ok {
			c.JSON(http.StatusOK, txn.ChatroomResponse{Status: txn.StatusOK, Message: "already reestablished", Chatroom: existing})
			return
		}
	}

	c.JSON(http.StatusOK, txn.ChatroomResponse{Status: txn.StatusFail, Message: failMsg})
}

// anyUserExists queries userExists at each data node in roster order,
// returning the first reachable answer.
func (h *UserOpsHandler) anyUserExists(ctx context.Context, username string) (exists, reached bool) {
	for _, d := range h.roster.DataOps() {
		client := h.dataOpsClient(d)
		var resp struct {
			OK bool `json:"ok"`
		}
		req := struct {
			Key string `json:"key"`
		}{Key: username}
		if err := client.PostJSON(ctx, "/dataOps/userExists", req, &resp); err == nil {
			return resp.OK, true
		}
	}
	return false, false
}

func (h *UserOpsHandler) anyChatroomExists(ctx context.Context, chatroom string) (exists, reached bool) {
	for _, d := range h.roster.DataOps() {
		client := h.dataOpsClient(d)
		var resp struct {
			OK bool `json:"ok"`
		}
		req := struct {
			Key string `json:"key"`
		}{Key: chatroom}
		if err := client.PostJSON(ctx, "/dataOps/chatroomExists", req, &resp); err == nil {
			return resp.OK, true
		}
	}
	return false, false
}

func (h *UserOpsHandler) anyVerifyUser(ctx context.Context, username, password string) (reached, verified bool) {
	for _, d := range h.roster.DataOps() {
		client := h.dataOpsClient(d)
		var resp struct {
			OK bool `json:"ok"`
		}
		req := userCredRequest{Username: username, Password: password}
		if err := client.PostJSON(ctx, "/dataOps/verifyUser", req, &resp); err == nil {
			return true, resp.OK
		}
	}
	return false, false
}

func (h *UserOpsHandler) anyVerifyOwnership(ctx context.Context, chatroom, username string) (reached, owns bool) {
	for _, d := range h.roster.DataOps() {
		client := h.dataOpsClient(d)
		var resp struct {
			OK bool `json:"ok"`
		}
		req := struct {
			Chatroom string `json:"chatroom"`
			Username string `json:"username"`
		}{Chatroom: chatroom, Username: username}
		if err := client.PostJSON(ctx, "/dataOps/verifyOwnership", req, &resp); err == nil {
			return true, resp.OK
		}
	}
	return false, false
}
