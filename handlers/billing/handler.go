package billing

import (
	"io"
	"net/http"

	"nudfans-backend/apperrors"
	"nudfans-backend/middleware"
	"nudfans-backend/models"
	"nudfans-backend/services/checkout"
	"nudfans-backend/services/entitlements"
	"nudfans-backend/services/reconciler"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const maxWebhookBytes = int64(65536)

type Handler struct {
	db         *gorm.DB
	checkout   *checkout.Service
	store      *entitlements.Store
	reconciler *reconciler.Reconciler
}

func New(database *gorm.DB, checkoutService *checkout.Service, store *entitlements.Store, rec *reconciler.Reconciler) *Handler {
	return &Handler{db: database, checkout: checkoutService, store: store, reconciler: rec}
}

// CheckoutSubscription
// @Summary Start a subscription checkout
// @Description Returns the hosted checkout URL. Access is granted once the payment webhook is received.
// @Tags billing
// @Produce json
// @Security BearerAuth
// @Param creatorId path string true "Creator profile ID"
// @Success 200 {object} utils.Response
// @Failure 409 {object} utils.Response "Already subscribed"
// @Router /checkout/subscription/{creatorId} [post]
func (h *Handler) CheckoutSubscription(c *gin.Context) {
	redirect, err := h.checkout.StartSubscription(c.Request.Context(), middleware.CurrentUserID(c), c.Param("creatorId"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Checkout session created", redirect)
}

// CheckoutPPV
// @Summary Start a pay-per-view checkout
// @Tags billing
// @Produce json
// @Security BearerAuth
// @Param postId path string true "Post ID"
// @Success 200 {object} utils.Response
// @Failure 400 {object} utils.Response "Not a ppv post"
// @Failure 409 {object} utils.Response "Already purchased"
// @Router /checkout/ppv/{postId} [post]
func (h *Handler) CheckoutPPV(c *gin.Context) {
	redirect, err := h.checkout.StartPPV(c.Request.Context(), middleware.CurrentUserID(c), c.Param("postId"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Checkout session created", redirect)
}

// CheckoutTip
// @Summary Start a tip checkout
// @Tags billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param creatorId path string true "Creator profile ID"
// @Param tip body models.TipCreate true "Tip"
// @Success 200 {object} utils.Response
// @Failure 400 {object} utils.Response "Amount below minimum"
// @Router /checkout/tip/{creatorId} [post]
func (h *Handler) CheckoutTip(c *gin.Context) {
	var input models.TipCreate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}
	amount, err := utils.ParseAmount(input.Amount)
	if err != nil {
		utils.SendAppError(c, apperrors.Invalid(err.Error()))
		return
	}
	redirect, err := h.checkout.StartTip(c.Request.Context(), middleware.CurrentUserID(c), c.Param("creatorId"), checkout.TipRequest{
		AmountCents: amount,
		Message:     input.Message,
		PostID:      input.PostID,
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Checkout session created", redirect)
}

// SubscribeDirect
// @Summary Subscribe with a saved card
// @Description Charges the payment method synchronously and returns the subscription.
// @Tags billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payment body models.DirectSubscribeRequest true "Creator and payment method"
// @Success 201 {object} utils.Response
// @Failure 402 {object} utils.Response "Payment failed"
// @Failure 409 {object} utils.Response "Already subscribed"
// @Router /subscriptions/direct [post]
func (h *Handler) SubscribeDirect(c *gin.Context) {
	var input models.DirectSubscribeRequest
	if !utils.ValidateRequestBody(c, &input) {
		return
	}
	sub, err := h.checkout.DirectSubscribe(c.Request.Context(), middleware.CurrentUserID(c), input.CreatorID, input.PaymentMethodID)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, "Subscription created", sub)
}

// ListSubscriptions
// @Summary My subscriptions
// @Tags billing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response
// @Router /subscriptions [get]
func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs, err := h.store.ListSubscriptions(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", subs)
}

// SubscriptionStatus
// @Summary My subscription to a creator
// @Description Latest subscription of the caller to the creator, and whether it currently grants access.
// @Tags billing
// @Produce json
// @Security BearerAuth
// @Param creatorId path string true "Creator profile ID"
// @Success 200 {object} utils.Response
// @Router /subscriptions/creator/{creatorId} [get]
func (h *Handler) SubscriptionStatus(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.CurrentUserID(c)
	creatorID := c.Param("creatorId")
	latest, err := h.store.LatestSubscription(ctx, userID, creatorID)
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	active, err := h.store.ActiveSubscription(ctx, userID, creatorID)
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", gin.H{
		"subscribed":   active != nil,
		"subscription": latest,
	})
}

// CancelSubscription
// @Summary Cancel a subscription
// @Description Stops the renewal. Access is kept until the end of the paid period.
// @Tags billing
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subscription ID"
// @Success 200 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 409 {object} utils.Response "Not active"
// @Router /subscriptions/{id} [delete]
func (h *Handler) CancelSubscription(c *gin.Context) {
	sub, err := h.checkout.RequestCancel(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Cancellation requested, access remains until the end of the period", sub)
}

// ListPurchases
// @Summary My pay-per-view purchases
// @Tags billing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response
// @Router /purchases [get]
func (h *Handler) ListPurchases(c *gin.Context) {
	purchases, err := h.store.ListPurchases(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", purchases)
}

// TipsReceived
// @Summary Tips received by my creator profile
// @Tags billing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response
// @Failure 403 {object} utils.Response "Not a creator"
// @Router /tips/received [get]
func (h *Handler) TipsReceived(c *gin.Context) {
	viewer := middleware.CurrentViewer(c)
	if viewer == nil || viewer.CreatorID == "" {
		utils.SendAppError(c, apperrors.ErrForbidden)
		return
	}
	var tips []models.Tip
	if err := h.db.WithContext(c.Request.Context()).Preload("Sender").
		Where("creator_id = ? AND status = ?", viewer.CreatorID, models.PurchaseCompleted).
		Order("created_at DESC").Find(&tips).Error; err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", tips)
}

// Webhook
// @Summary Payment provider webhook
// @Description Verified with the Stripe-Signature header. Replayed events are acknowledged without effect.
// @Tags billing
// @Accept json
// @Produce json
// @Success 200 {object} utils.Response
// @Failure 400 {object} utils.Response "Signature verification failed"
// @Failure 500 {object} utils.Response "Retry later"
// @Router /stripe/webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Could not read request body")
		return
	}

	if err := h.reconciler.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		if apperrors.KindOf(err) == apperrors.KindWebhookVerification {
			utils.SendAppError(c, err)
			return
		}
		utils.LogError(err, "webhook processing failed, provider will retry")
		utils.SendError(c, http.StatusInternalServerError, "Webhook processing failed")
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Event processed", nil)
}
