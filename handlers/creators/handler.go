package creators

import (
	"errors"
	"net/http"

	"nudfans-backend/apperrors"
	"nudfans-backend/db"
	"nudfans-backend/middleware"
	"nudfans-backend/models"
	"nudfans-backend/services/entitlements"
	"nudfans-backend/services/ledger"
	"nudfans-backend/services/social"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrAlreadyCreator = apperrors.New(apperrors.KindConflict, "ALREADY_CREATOR", "this account already has a creator profile")

type Handler struct {
	db            *gorm.DB
	store         *entitlements.Store
	ledger        *ledger.Ledger
	social        *social.Service
	minPriceCents int64
}

func New(database *gorm.DB, store *entitlements.Store, l *ledger.Ledger, socialService *social.Service, minPriceCents int64) *Handler {
	return &Handler{db: database, store: store, ledger: l, social: socialService, minPriceCents: minPriceCents}
}

// ProfileView is the public creator page.
type ProfileView struct {
	models.CreatorProfile
	SubscriptionPrice  string                    `json:"subscriptionPrice"`
	FollowersCount     int64                     `json:"followersCount"`
	SubscribersCount   int64                     `json:"subscribersCount"`
	IsFollowing        bool                      `json:"isFollowing"`
	SubscriptionStatus models.SubscriptionStatus `json:"subscriptionStatus,omitempty"`
}

func (h *Handler) parsePrice(raw string) (int64, error) {
	cents, err := utils.ParseAmount(raw)
	if err != nil {
		return 0, apperrors.Invalid(err.Error())
	}
	if cents < h.minPriceCents {
		return 0, apperrors.ErrInvalidPrice
	}
	return cents, nil
}

// GetProfile
// @Summary Creator profile
// @Description Public creator page, looked up by profile id or username
// @Tags creators
// @Produce json
// @Param id path string true "Creator profile id or username"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /creators/{id} [get]
func (h *Handler) GetProfile(c *gin.Context) {
	ref := c.Param("id")
	q := h.db.Preload("User")
	var profile models.CreatorProfile
	var err error
	if _, parseErr := uuid.Parse(ref); parseErr == nil {
		err = q.First(&profile, "id = ?", ref).Error
	} else {
		err = q.Joins("JOIN users ON users.id = creator_profiles.user_id").
			Where("users.user_name = ?", ref).First(&profile).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.SendAppError(c, apperrors.NotFound("creator"))
			return
		}
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	if profile.User != nil && !profile.User.Enable {
		utils.SendAppError(c, apperrors.NotFound("creator"))
		return
	}

	ctx := c.Request.Context()
	view := ProfileView{CreatorProfile: profile, SubscriptionPrice: utils.FormatCents(profile.SubscriptionPriceCents)}
	if view.FollowersCount, err = h.store.CountFollowers(ctx, profile.ID); err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	if view.SubscribersCount, err = h.store.CountSubscribers(ctx, profile.ID); err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	if userID := middleware.CurrentUserID(c); userID != "" {
		if view.IsFollowing, err = h.store.IsFollowing(ctx, userID, profile.ID); err != nil {
			utils.SendAppError(c, apperrors.Internal(err))
			return
		}
		sub, err := h.store.LatestSubscription(ctx, userID, profile.ID)
		if err != nil {
			utils.SendAppError(c, apperrors.Internal(err))
			return
		}
		if sub != nil {
			view.SubscriptionStatus = sub.Status
		}
	}
	utils.SendSuccess(c, http.StatusOK, "", view)
}

// BecomeCreator
// @Summary Become a creator
// @Description Create the creator profile of the authenticated user. The subscription price must reach the configured minimum.
// @Tags creators
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body models.CreatorProfileCreate true "Creator profile"
// @Success 201 {object} utils.Response
// @Failure 400 {object} utils.Response "Invalid price"
// @Failure 409 {object} utils.Response "Already a creator"
// @Router /creators [post]
func (h *Handler) BecomeCreator(c *gin.Context) {
	var input models.CreatorProfileCreate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}
	price, err := h.parsePrice(input.SubscriptionPrice)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	userID := middleware.CurrentUserID(c)
	profile := &models.CreatorProfile{
		UserID:                 userID,
		Headline:               input.Headline,
		SubscriptionPriceCents: price,
		AIChatEnabled:          input.AIChatEnabled,
	}
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(profile).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).Update("user_type", models.CreatorType).Error
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			utils.SendAppError(c, ErrAlreadyCreator)
			return
		}
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}

	utils.LogSuccessWithUser(userID, "creator profile created: "+profile.ID)
	utils.SendSuccess(c, http.StatusCreated, "Creator profile created", profile)
}

// UpdateMe
// @Summary Update my creator profile
// @Description A new subscription price only applies to new subscribers.
// @Tags creators
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body models.CreatorProfileUpdate true "Fields to update"
// @Success 200 {object} utils.Response
// @Failure 400 {object} utils.Response
// @Failure 403 {object} utils.Response "Not a creator"
// @Router /creators/me [put]
func (h *Handler) UpdateMe(c *gin.Context) {
	viewer := middleware.CurrentViewer(c)
	if viewer == nil || viewer.CreatorID == "" {
		utils.SendAppError(c, apperrors.ErrForbidden)
		return
	}
	var input models.CreatorProfileUpdate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}

	updates := map[string]interface{}{}
	if input.Headline != nil {
		updates["headline"] = *input.Headline
	}
	if input.AIChatEnabled != nil {
		updates["ai_chat_enabled"] = *input.AIChatEnabled
	}
	if input.IsOnline != nil {
		updates["is_online"] = *input.IsOnline
	}
	if input.SubscriptionPrice != nil {
		price, err := h.parsePrice(*input.SubscriptionPrice)
		if err != nil {
			utils.SendAppError(c, err)
			return
		}
		updates["subscription_price_cents"] = price
	}
	if len(updates) > 0 {
		if err := h.db.Model(&models.CreatorProfile{}).Where("id = ?", viewer.CreatorID).Updates(updates).Error; err != nil {
			utils.SendAppError(c, apperrors.Internal(err))
			return
		}
	}

	var profile models.CreatorProfile
	if err := h.db.First(&profile, "id = ?", viewer.CreatorID).Error; err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	utils.LogSuccessWithUser(viewer.UserID, "creator profile updated")
	utils.SendSuccess(c, http.StatusOK, "Creator profile updated", profile)
}

// Analytics
// @Summary My earnings and audience
// @Description Earnings come from the ledger, not from the cached total.
// @Tags creators
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response
// @Failure 403 {object} utils.Response "Not a creator"
// @Router /creators/me/analytics [get]
func (h *Handler) Analytics(c *gin.Context) {
	viewer := middleware.CurrentViewer(c)
	if viewer == nil || viewer.CreatorID == "" {
		utils.SendAppError(c, apperrors.ErrForbidden)
		return
	}
	ctx := c.Request.Context()
	summary, err := h.ledger.Summary(ctx, viewer.CreatorID)
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	followers, err := h.store.CountFollowers(ctx, viewer.CreatorID)
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	subscribers, err := h.store.CountSubscribers(ctx, viewer.CreatorID)
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	var posts int64
	if err := h.db.Model(&models.Post{}).Where("creator_id = ?", viewer.CreatorID).Count(&posts).Error; err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}

	utils.SendSuccess(c, http.StatusOK, "", gin.H{
		"earnings":         summary,
		"totalEarnings":    utils.FormatCents(summary.CreatorEarningsCents),
		"followersCount":   followers,
		"subscribersCount": subscribers,
		"postsCount":       posts,
	})
}

// ToggleFollow
// @Summary Follow or unfollow a creator
// @Tags creators
// @Produce json
// @Security BearerAuth
// @Param id path string true "Creator profile id"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /creators/{id}/follow [post]
func (h *Handler) ToggleFollow(c *gin.Context) {
	following, err := h.social.ToggleFollow(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	message := "Creator unfollowed"
	if following {
		message = "Creator followed"
	}
	utils.SendSuccess(c, http.StatusOK, message, gin.H{"following": following})
}
