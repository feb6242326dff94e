package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Checker is anything that can report its own health. *db.Database satisfies it.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

// HealthHandler pings the database within timeout. A failed ping answers 503.
func HealthHandler(db Checker, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, HealthResponse{
				Status:   "degraded",
				Database: "unreachable",
				Error:    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
	}
}
