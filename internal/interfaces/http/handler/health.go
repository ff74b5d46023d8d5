package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger checks a dependency's liveness. Implemented by the database.
type Pinger interface {
	Ping() error
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	pinger Pinger
}

// NewHealthHandler creates a HealthHandler. A nil pinger reports healthy
// unconditionally.
func NewHealthHandler(pinger Pinger) *HealthHandler {
	return &HealthHandler{pinger: pinger}
}

// RegisterRoutes registers the health route.
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/healthz", h.Check)
}

// Check reports process and database liveness.
func (h *HealthHandler) Check(c *gin.Context) {
	if h.pinger != nil {
		if err := h.pinger.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
