package routes

import (
	"nudfans-backend/handlers/messages"
)

func MessagesRoutes(g groups, h *messages.Handler) {
	g.private.GET("/conversations", h.ListConversations)
	g.private.POST("/conversations", h.StartConversation)
	g.private.GET("/conversations/:id/messages", h.ListMessages)
	g.private.POST("/conversations/:id/messages", h.SendMessage)
}
