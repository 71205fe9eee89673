package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler responde los checks de liveness de la plataforma.
type HealthHandler struct {
	service string
	version string
	now     func() time.Time
}

func NewHealthHandler(serviceName, version string) *HealthHandler {
	return &HealthHandler{
		service: serviceName,
		version: version,
		now:     time.Now,
	}
}

// Health maneja GET / y GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   h.service,
		"version":   h.version,
		"message":   "Bot is running!",
		"timestamp": h.now().Unix(),
	})
}
