package utils

import (
	"net/http"

	"nudfans-backend/apperrors"

	"github.com/gin-gonic/gin"
)

// Response structure standard pour les réponses API
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SendSuccess envoie une réponse de succès
func SendSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SendError envoie une réponse d'erreur
func SendError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error:   message,
	})
}

// SendAppError maps err through the apperrors taxonomy. Internal causes are logged, never
// returned.
func SendAppError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	code, message := apperrors.Public(err)
	if status >= http.StatusInternalServerError || apperrors.KindOf(err) == apperrors.KindPaymentProvider {
		userID, _ := c.Get("user_id")
		LogErrorWithUser(userID, err, c.Request.Method+" "+c.FullPath()+" failed")
	}
	c.JSON(status, Response{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// ValidateRequestBody vérifie si le body de la requête est valide
func ValidateRequestBody(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "INVALID_INPUT",
		})
		return false
	}
	return true
}
