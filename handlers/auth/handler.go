package auth

import (
	"errors"
	"net/http"
	"strings"

	"nudfans-backend/apperrors"
	"nudfans-backend/db"
	"nudfans-backend/middleware"
	"nudfans-backend/models"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	db          *gorm.DB
	jwtSecret   string
	jwtTTLHours int
}

func New(database *gorm.DB, jwtSecret string, jwtTTLHours int) *Handler {
	return &Handler{db: database, jwtSecret: jwtSecret, jwtTTLHours: jwtTTLHours}
}

// Register
// @Summary Create a new account
// @Description Create a fan or creator account. A creator still has to set up a creator profile before publishing.
// @Tags auth
// @Accept json
// @Produce json
// @Param user body models.UserCreate true "User information"
// @Success 201 {object} utils.Response
// @Failure 400 {object} utils.Response "Invalid input"
// @Failure 409 {object} utils.Response "Email or username already used"
// @Router /register [post]
func (h *Handler) Register(c *gin.Context) {
	var input models.UserCreate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}

	if err := checkPasswordStrength(input.Password); err != nil {
		utils.SendAppError(c, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	var existing int64
	if err := h.db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	if existing > 0 {
		utils.SendAppError(c, apperrors.ErrEmailTaken)
		return
	}
	if err := h.db.Model(&models.User{}).Where("user_name = ?", input.UserName).Count(&existing).Error; err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	if existing > 0 {
		utils.SendAppError(c, apperrors.ErrUsernameTaken)
		return
	}

	passwordHash, err := hashPassword(input.Password)
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	userType := input.UserType
	if userType == "" {
		userType = models.FanType
	}
	user := models.User{
		Email:       email,
		Password:    passwordHash,
		UserName:    input.UserName,
		DisplayName: input.UserName,
		Role:        models.UserRole,
		UserType:    userType,
		Enable:      true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		if db.IsUniqueViolation(err) {
			utils.SendAppError(c, apperrors.New(apperrors.KindConflict, "ACCOUNT_EXISTS", "this email or username is already used"))
			return
		}
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}

	utils.LogSuccessWithUser(user.ID, "account created")
	utils.SendSuccess(c, http.StatusCreated, "User created successfully", gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.UserName,
	})
}

// Login
// @Summary Log in
// @Description Exchange credentials for a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body models.UserLogin true "Credentials"
// @Success 200 {object} utils.Response
// @Failure 400 {object} utils.Response "Invalid input"
// @Failure 401 {object} utils.Response "Wrong credentials"
// @Router /login [post]
func (h *Handler) Login(c *gin.Context) {
	var input models.UserLogin
	if !utils.ValidateRequestBody(c, &input) {
		return
	}

	var user models.User
	err := h.db.Where("email = ?", strings.ToLower(strings.TrimSpace(input.Email))).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	if err != nil || !samePassword(input.Password, user.Password) {
		utils.SendError(c, http.StatusUnauthorized, "Wrong credentials")
		return
	}
	if !user.Enable {
		utils.SendError(c, http.StatusForbidden, "This account is disabled")
		return
	}

	token, err := utils.GenerateJWT(user, h.jwtSecret, h.jwtTTLHours)
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	utils.LogSuccessWithUser(user.ID, "logged in")
	utils.SendSuccess(c, http.StatusOK, "Login successful", gin.H{
		"token": token,
		"user":  user,
	})
}

// Me
// @Summary Current user
// @Description Return the authenticated user and its creator profile if any
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Router /me [get]
func (h *Handler) Me(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.SendAppError(c, apperrors.NotFound("user"))
			return
		}
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}

	var profile *models.CreatorProfile
	var p models.CreatorProfile
	err := h.db.Where("user_id = ?", user.ID).First(&p).Error
	switch {
	case err == nil:
		profile = &p
	case !errors.Is(err, gorm.ErrRecordNotFound):
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}

	utils.SendSuccess(c, http.StatusOK, "", gin.H{
		"user":           user,
		"creatorProfile": profile,
	})
}

func checkPasswordStrength(password string) error {
	hasLower := strings.ContainsAny(password, "abcdefghijklmnopqrstuvwxyz")
	hasUpper := strings.ContainsAny(password, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	hasDigit := strings.ContainsAny(password, "0123456789")
	if !hasLower || !hasUpper || !hasDigit {
		return apperrors.Invalid("The password must contain at least one lowercase, one uppercase and one digit")
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

func samePassword(formPassword string, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(formPassword))
	return err == nil
}
