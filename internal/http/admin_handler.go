package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"leech-bot/internal/service"
)

// AdminHandler expone estadísticas de solo lectura para el owner.
type AdminHandler struct {
	logger    *zap.Logger
	stats     *service.StatsAggregator
	freeLimit int
}

func NewAdminHandler(logger *zap.Logger, stats *service.StatsAggregator, freeLimit int) *AdminHandler {
	return &AdminHandler{
		logger:    logger,
		stats:     stats,
		freeLimit: freeLimit,
	}
}

// Stats maneja GET /admin/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.stats.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.Error("admin stats failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// UserStats maneja GET /admin/users/:id.
func (h *AdminHandler) UserStats(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	rec, err := h.stats.UserStats(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("admin user stats failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":           rec,
		"remaining_free": rec.RemainingFree(h.freeLimit),
	})
}
