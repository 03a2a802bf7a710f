package routes

import (
	"nudfans-backend/handlers/notifications"
)

func NotificationsRoutes(g groups, h *notifications.Handler) {
	g.private.GET("/notifications", h.List)
	g.private.POST("/notifications/read-all", h.MarkAllRead)
	g.private.POST("/notifications/:id/read", h.MarkRead)
}
