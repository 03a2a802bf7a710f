package messages

import (
	"net/http"
	"strconv"

	"nudfans-backend/middleware"
	"nudfans-backend/models"
	"nudfans-backend/services/messaging"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	messaging *messaging.Service
}

func New(messagingService *messaging.Service) *Handler {
	return &Handler{messaging: messagingService}
}

// ListConversations
// @Summary My conversations
// @Description Conversations as a fan and, for creators, with their fans. Most recent first.
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response
// @Router /conversations [get]
func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.messaging.List(c.Request.Context(), middleware.CurrentViewer(c))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", convs)
}

// StartConversation
// @Summary Open a conversation with a creator
// @Description Returns the existing conversation when there is one.
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param conversation body models.ConversationCreate true "Creator"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /conversations [post]
func (h *Handler) StartConversation(c *gin.Context) {
	var input models.ConversationCreate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}
	conv, err := h.messaging.Start(c.Request.Context(), middleware.CurrentViewer(c), input.CreatorID)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", conv)
}

// ListMessages
// @Summary Messages of a conversation
// @Description Oldest first. Reading marks the other side's messages as read.
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param limit query int false "Number of messages (max 200)"
// @Success 200 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Router /conversations/{id}/messages [get]
func (h *Handler) ListMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, err := h.messaging.Messages(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"), limit)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", msgs)
}

// SendMessage
// @Summary Send a message
// @Description When the creator has AI chat enabled, the generated reply is returned after the sent message.
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param message body models.MessageCreate true "Message"
// @Success 201 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Router /conversations/{id}/messages [post]
func (h *Handler) SendMessage(c *gin.Context) {
	var input models.MessageCreate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}
	msgs, err := h.messaging.Send(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"), input.Content)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, "Message sent", msgs)
}
