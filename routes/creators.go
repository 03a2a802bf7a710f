package routes

import (
	"nudfans-backend/handlers/creators"
	"nudfans-backend/handlers/posts"
)

func CreatorsRoutes(g groups, h *creators.Handler, p *posts.Handler) {
	// :id is a profile id or a username
	g.public.GET("/creators/:id", h.GetProfile)
	g.public.GET("/creators/:id/posts", p.CreatorPosts)

	g.private.POST("/creators", h.BecomeCreator)
	g.private.PUT("/creators/me", h.UpdateMe)
	g.private.GET("/creators/me/analytics", h.Analytics)
	g.private.POST("/creators/:id/follow", h.ToggleFollow)
}
