package routes

import (
	"nudfans-backend/handlers/billing"

	"github.com/gin-gonic/gin"
)

func BillingRoutes(r *gin.Engine, g groups, h *billing.Handler) {
	// signed by the provider, no JWT
	r.POST("/stripe/webhook", h.Webhook)

	g.private.POST("/checkout/subscription/:creatorId", h.CheckoutSubscription)
	g.private.POST("/checkout/ppv/:postId", h.CheckoutPPV)
	g.private.POST("/checkout/tip/:creatorId", h.CheckoutTip)

	g.private.POST("/subscriptions/direct", h.SubscribeDirect)
	g.private.GET("/subscriptions", h.ListSubscriptions)
	g.private.GET("/subscriptions/creator/:creatorId", h.SubscriptionStatus)
	g.private.DELETE("/subscriptions/:id", h.CancelSubscription)

	g.private.GET("/purchases", h.ListPurchases)
	g.private.GET("/tips/received", h.TipsReceived)
}
