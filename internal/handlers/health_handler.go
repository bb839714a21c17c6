package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *sqlx.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports process and storage health
type HealthHandler struct {
	db      Pinger
	storage string
	version string
}

// NewHealthHandler creates a HealthHandler. db may be nil for the in-memory store.
func NewHealthHandler(db Pinger, storage, version string) *HealthHandler {
	return &HealthHandler{db: db, storage: storage, version: version}
}

// Health returns a health check endpoint
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	dbStatus := "healthy"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"storage":  h.storage,
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"storage":   h.storage,
		"database":  dbStatus,
		"version":   h.version,
		"timestamp": time.Now().Unix(),
	})
}
