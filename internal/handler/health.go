package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// Health reports liveness plus database reachability.
func Health(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse("database unreachable"))
			return
		}
		c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"status": "ok"}))
	}
}
