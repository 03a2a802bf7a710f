package routes

import (
	"nudfans-backend/handlers/auth"

	"github.com/gin-gonic/gin"
)

func AuthRoutes(r *gin.Engine, g groups, h *auth.Handler) {
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	g.private.GET("/me", h.Me)
}
