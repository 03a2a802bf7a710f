package notifications

import (
	"net/http"
	"strconv"

	"nudfans-backend/apperrors"
	"nudfans-backend/middleware"
	"nudfans-backend/services/notify"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	notifier *notify.Notifier
}

func New(notifier *notify.Notifier) *Handler {
	return &Handler{notifier: notifier}
}

// List
// @Summary My notifications
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "Only unread notifications"
// @Param limit query int false "Number of notifications"
// @Success 200 {object} utils.Response
// @Router /notifications [get]
func (h *Handler) List(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, unread, err := h.notifier.List(c.Request.Context(), middleware.CurrentUserID(c), unreadOnly, limit)
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", gin.H{
		"notifications": items,
		"unreadCount":   unread,
	})
}

// MarkRead
// @Summary Mark a notification as read
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /notifications/{id}/read [post]
func (h *Handler) MarkRead(c *gin.Context) {
	if err := h.notifier.MarkRead(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Notification marked as read", nil)
}

// MarkAllRead
// @Summary Mark every notification as read
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response
// @Router /notifications/read-all [post]
func (h *Handler) MarkAllRead(c *gin.Context) {
	n, err := h.notifier.MarkAllRead(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Notifications marked as read", gin.H{"updated": n})
}
