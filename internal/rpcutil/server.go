package rpcutil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BindJSON decodes the request body into dst, writing a FAIL-shaped 400
// response and returning false on malformed input. Handlers use this at
// every remote surface entry point so transport-level errors never
// propagate past the handler (spec §7 propagation policy).
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "FAIL", "message": "malformed request body"})
		return false
	}
	return true
}
