package datanode

import (
	"net/http"

	"github.com/chatmesh/server/internal/rpcutil"
	"github.com/gin-gonic/gin"
)

// DataOpsHandler exposes the DataOps surface (coordinator-facing read
// queries): verifyUser, verifyOwnership, userExists, chatroomExists.
// verifyUser, userExists and chatroomExists consult the read-through cache
// before falling back to the store; verifyOwnership reads the store directly.
type DataOpsHandler struct {
	store *Store
	cache *Cache // optional; nil disables caching
}

// NewDataOpsHandler constructs a DataOpsHandler. cache may be nil.
func NewDataOpsHandler(store *Store, cache *Cache) *DataOpsHandler {
	return &DataOpsHandler{store: store, cache: cache}
}

// RegisterRoutes wires the DataOps surface onto r.
func (h *DataOpsHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/verifyUser", h.verifyUser)
	r.POST("/verifyOwnership", h.verifyOwnership)
	r.POST("/userExists", h.userExists)
	r.POST("/chatroomExists", h.chatroomExists)
}

type userCredRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *DataOpsHandler) verifyUser(c *gin.Context) {
	var req userCredRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}

	ok := h.cachedVerifyUser(c, req.Username, req.Password)
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}

type ownershipRequest struct {
	Chatroom string `json:"chatroom"`
	Username string `json:"username"`
}

func (h *DataOpsHandler) verifyOwnership(c *gin.Context) {
	var req ownershipRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	ok := h.store.VerifyOwnership(req.Chatroom, req.Username)
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}

type keyOnlyRequest struct {
	Key string `json:"key"`
}

func (h *DataOpsHandler) userExists(c *gin.Context) {
	var req keyOnlyRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	ok := h.cachedUserExists(c, req.Key)
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}

func (h *DataOpsHandler) chatroomExists(c *gin.Context) {
	var req keyOnlyRequest
	if !rpcutil.BindJSON(c, &req) {
		return
	}
	ok := h.cachedChatroomExists(c, req.Key)
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}
