package admin

import (
	"net/http"
	"strconv"

	"nudfans-backend/apperrors"
	"nudfans-backend/middleware"
	"nudfans-backend/models"
	"nudfans-backend/services/ledger"
	"nudfans-backend/services/social"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	social *social.Service
}

func New(database *gorm.DB, l *ledger.Ledger, socialService *social.Service) *Handler {
	return &Handler{db: database, ledger: l, social: socialService}
}

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListUsers
// @Summary List users
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param search query string false "Email or username prefix"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} utils.Response
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	limit, offset := pagination(c)
	q := h.db.WithContext(c.Request.Context()).Model(&models.User{})
	if search := c.Query("search"); search != "" {
		q = q.Where("email LIKE ? OR user_name LIKE ?", search+"%", search+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	var users []models.User
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", gin.H{"users": users, "total": total})
}

// UpdateRole
// @Summary Change the role of a user
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param role body models.RoleUpdate true "New role"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /admin/users/{id}/role [put]
func (h *Handler) UpdateRole(c *gin.Context) {
	var input models.RoleUpdate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}
	userID := c.Param("id")
	if userID == middleware.CurrentUserID(c) && input.Role != models.AdminRole {
		utils.SendAppError(c, apperrors.Invalid("you cannot remove your own admin role"))
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.User{}).Where("id = ?", userID).Update("role", input.Role)
	if res.Error != nil {
		utils.SendAppError(c, apperrors.Internal(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		utils.SendAppError(c, apperrors.NotFound("user"))
		return
	}
	utils.LogSuccessWithUser(middleware.CurrentUserID(c), "role of "+userID+" set to "+string(input.Role))
	utils.SendSuccess(c, http.StatusOK, "Role updated", gin.H{"id": userID, "role": input.Role})
}

// VerifyCreator
// @Summary Mark a creator as verified
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Creator profile ID"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /admin/creators/{id}/verify [put]
func (h *Handler) VerifyCreator(c *gin.Context) {
	creatorID := c.Param("id")
	res := h.db.WithContext(c.Request.Context()).Model(&models.CreatorProfile{}).Where("id = ?", creatorID).Update("is_verified", true)
	if res.Error != nil {
		utils.SendAppError(c, apperrors.Internal(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		utils.SendAppError(c, apperrors.NotFound("creator"))
		return
	}
	utils.LogSuccessWithUser(middleware.CurrentUserID(c), "creator verified: "+creatorID)
	utils.SendSuccess(c, http.StatusOK, "Creator verified", gin.H{"id": creatorID, "isVerified": true})
}

// ListTransactions
// @Summary Ledger entries
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param creatorId query string false "Filter by creator profile"
// @Param userId query string false "Filter by paying user"
// @Param type query string false "subscription, subscription_renewal, ppv or tip"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} utils.Response
// @Router /admin/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	limit, offset := pagination(c)
	rows, total, err := h.ledger.List(c.Request.Context(), ledger.ListFilter{
		CreatorID: c.Query("creatorId"),
		UserID:    c.Query("userId"),
		Type:      models.TransactionType(c.Query("type")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", gin.H{"transactions": rows, "total": total})
}

// Stats
// @Summary Platform statistics
// @Description Revenue totals come from completed ledger entries.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response
// @Router /admin/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	totals, err := h.ledger.PlatformTotals(ctx)
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}

	counts := map[string]int64{}
	for key, query := range map[string]*gorm.DB{
		"users":               h.db.WithContext(ctx).Model(&models.User{}),
		"creators":            h.db.WithContext(ctx).Model(&models.CreatorProfile{}),
		"posts":               h.db.WithContext(ctx).Model(&models.Post{}),
		"activeSubscriptions": h.db.WithContext(ctx).Model(&models.Subscription{}).Where("status IN ?", []models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPastDue}),
		"openReports":         h.db.WithContext(ctx).Model(&models.Report{}).Where("status = ?", models.ReportOpen),
	} {
		var n int64
		if err := query.Count(&n).Error; err != nil {
			utils.SendAppError(c, apperrors.Internal(err))
			return
		}
		counts[key] = n
	}

	utils.SendSuccess(c, http.StatusOK, "", gin.H{
		"revenue":      totals,
		"platformFees": utils.FormatCents(totals.PlatformFeeCents),
		"grossVolume":  utils.FormatCents(totals.AmountCents),
		"counts":       counts,
	})
}

// RecomputeEarnings
// @Summary Rebuild a creator's earnings from the ledger
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Creator profile ID"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /admin/creators/{id}/recompute-earnings [post]
func (h *Handler) RecomputeEarnings(c *gin.Context) {
	drift, err := h.ledger.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	if drift == nil {
		utils.SendSuccess(c, http.StatusOK, "Earnings already consistent", gin.H{"corrected": false})
		return
	}
	utils.LogWarn("creator earnings corrected", map[string]interface{}{
		"creator_id": drift.CreatorID, "cached_cents": drift.CachedCents, "ledger_cents": drift.LedgerCents,
	})
	utils.SendSuccess(c, http.StatusOK, "Earnings corrected", gin.H{"corrected": true, "drift": drift})
}

// RecomputeAllEarnings
// @Summary Rebuild every creator's earnings from the ledger
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response
// @Router /admin/earnings/recompute [post]
func (h *Handler) RecomputeAllEarnings(c *gin.Context) {
	drifts, err := h.ledger.RecomputeAll(c.Request.Context())
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", gin.H{"corrected": drifts})
}

// ListReports
// @Summary Reported posts
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "OPEN, RESOLVED or DISMISSED"
// @Success 200 {object} utils.Response
// @Router /admin/reports [get]
func (h *Handler) ListReports(c *gin.Context) {
	reports, err := h.social.ListReports(c.Request.Context(), models.ReportStatus(c.Query("status")))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", reports)
}

// UpdateReport
// @Summary Resolve or dismiss a report
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param status body models.ReportStatusUpdate true "New status"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /admin/reports/{id} [put]
func (h *Handler) UpdateReport(c *gin.Context) {
	var input models.ReportStatusUpdate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}
	report, err := h.social.UpdateReportStatus(c.Request.Context(), c.Param("id"), input.Status)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Report updated", report)
}
