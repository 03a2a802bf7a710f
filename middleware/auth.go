package middleware

import (
	"net/http"
	"strings"

	"nudfans-backend/models"
	"nudfans-backend/services/access"
	"nudfans-backend/services/entitlements"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
	viewerKey = "viewer"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := strings.Trim(c.GetHeader("Authorization"), "\"' ")
	if authHeader == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		authHeader = "Bearer " + authHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return strings.Trim(parts[1], "\"' "), true
}

func extractJwtClaims(c *gin.Context, secret string) (jwt.MapClaims, bool) {
	if c.GetHeader("Authorization") == "" {
		utils.SendError(c, http.StatusUnauthorized, "Authorization header missing")
		c.Abort()
		return nil, false
	}
	tokenString, ok := bearerToken(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "Invalid authorization format, expected: Bearer <token>")
		c.Abort()
		return nil, false
	}

	claims, err := utils.DecodeJWT(tokenString, secret)
	if err != nil {
		utils.SendError(c, http.StatusUnauthorized, "Invalid or expired token")
		c.Abort()
		return nil, false
	}
	if id, _ := claims["user_id"].(string); id == "" {
		utils.SendError(c, http.StatusUnauthorized, "Invalid token: user not found")
		c.Abort()
		return nil, false
	}
	return claims, true
}

func setClaims(c *gin.Context, claims jwt.MapClaims) {
	c.Set(userIDKey, claims["user_id"])
	c.Set(roleKey, claims["role"])
}

func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := extractJwtClaims(c, secret)
		if !ok {
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and lets anonymous
// requests through otherwise.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c); ok {
			if claims, err := utils.DecodeJWT(tokenString, secret); err == nil {
				if id, _ := claims["user_id"].(string); id != "" {
					setClaims(c, claims)
				}
			}
		}
		c.Next()
	}
}

func AdminAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := extractJwtClaims(c, secret)
		if !ok {
			return
		}
		setClaims(c, claims)

		role, exists := claims["role"]
		if !exists {
			utils.SendError(c, http.StatusUnauthorized, "Role not found in token")
			c.Abort()
			return
		}
		if role != string(models.AdminRole) {
			utils.SendError(c, http.StatusForbidden, "Access denied: admin role required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// LoadViewer resolves the access viewer of an authenticated caller. It runs after JWTAuth
// or OptionalAuth; anonymous requests get a nil viewer.
func LoadViewer(store *entitlements.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := CurrentUserID(c)
		if userID == "" {
			c.Next()
			return
		}
		viewer, err := store.ViewerFor(c.Request.Context(), userID)
		if err != nil {
			utils.LogErrorWithUser(userID, err, "could not resolve viewer")
			utils.SendError(c, http.StatusInternalServerError, "internal error")
			c.Abort()
			return
		}
		c.Set(viewerKey, viewer)
		c.Next()
	}
}

func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	id, _ := v.(string)
	return id
}

func IsAdmin(c *gin.Context) bool {
	v, _ := c.Get(roleKey)
	role, _ := v.(string)
	return role == string(models.AdminRole)
}

// CurrentViewer returns the viewer set by LoadViewer, nil for anonymous callers.
func CurrentViewer(c *gin.Context) *access.Viewer {
	v, _ := c.Get(viewerKey)
	viewer, _ := v.(*access.Viewer)
	return viewer
}
