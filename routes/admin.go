package routes

import (
	"nudfans-backend/handlers/admin"
)

func AdminRoutes(g groups, h *admin.Handler) {
	g.admin.GET("/users", h.ListUsers)
	g.admin.PUT("/users/:id/role", h.UpdateRole)
	g.admin.PUT("/creators/:id/verify", h.VerifyCreator)
	g.admin.POST("/creators/:id/recompute-earnings", h.RecomputeEarnings)
	g.admin.POST("/earnings/recompute", h.RecomputeAllEarnings)
	g.admin.GET("/transactions", h.ListTransactions)
	g.admin.GET("/stats", h.Stats)
	g.admin.GET("/reports", h.ListReports)
	g.admin.PUT("/reports/:id", h.UpdateReport)
}
