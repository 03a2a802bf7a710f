package routes

import (
	"nudfans-backend/handlers/posts"
)

func PostsRoutes(g groups, h *posts.Handler) {
	g.public.GET("/posts/feed", h.Feed)
	g.public.GET("/posts/:id", h.GetPost)

	g.private.POST("/posts", h.CreatePost)
	g.private.PUT("/posts/:id", h.UpdatePost)
	g.private.DELETE("/posts/:id", h.DeletePost)
	g.private.POST("/posts/:id/media", h.AddMedia)
	g.private.DELETE("/posts/:id/media/:mediaId", h.RemoveMedia)

	// Interactions
	g.private.POST("/posts/:id/like", h.ToggleLike)
	g.private.POST("/posts/:id/report", h.ReportPost)
	g.private.GET("/posts/:id/comments", h.ListComments)
	g.private.POST("/posts/:id/comments", h.AddComment)
	g.private.DELETE("/comments/:id", h.DeleteComment)
	g.private.POST("/comments/:id/like", h.ToggleCommentLike)
}
