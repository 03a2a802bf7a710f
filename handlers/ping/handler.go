package ping

import (
	"context"
	"net/http"
	"time"

	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const healthTimeout = 2 * time.Second

type Handler struct {
	db *gorm.DB
}

func New(database *gorm.DB) *Handler {
	return &Handler{db: database}
}

// HandlePing
// @Summary Ping test
// @Description Liveness probe, answers pong
// @Tags health
// @Produce json
// @Success 200 {object} utils.Response
// @Router /ping [get]
func (h *Handler) HandlePing(c *gin.Context) {
	utils.SendSuccess(c, http.StatusOK, "Ping successful", gin.H{
		"message": "pong",
	})
}

// HandleHealth
// @Summary Readiness probe
// @Description Checks the database connection
// @Tags health
// @Produce json
// @Success 200 {object} utils.Response
// @Failure 503 {object} utils.Response
// @Router /health [get]
func (h *Handler) HandleHealth(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		utils.LogError(err, "health check failed")
		utils.SendError(c, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", gin.H{"database": "up"})
}
