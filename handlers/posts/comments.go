package posts

import (
	"net/http"
	"strconv"

	"nudfans-backend/middleware"
	"nudfans-backend/models"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
)

// ListComments
// @Summary Comments of a post
// @Tags comments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} utils.Response
// @Failure 403 {object} utils.Response "Post locked"
// @Router /posts/{id}/comments [get]
func (h *Handler) ListComments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	comments, err := h.social.ListComments(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"), limit, offset)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", comments)
}

// AddComment
// @Summary Comment a post
// @Tags comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param comment body models.CommentCreate true "Comment"
// @Success 201 {object} utils.Response
// @Failure 403 {object} utils.Response "Post locked"
// @Router /posts/{id}/comments [post]
func (h *Handler) AddComment(c *gin.Context) {
	var input models.CommentCreate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}
	comment, err := h.social.AddComment(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"), input.Content)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, "Comment added", comment)
}

// DeleteComment
// @Summary Delete a comment
// @Description Allowed to the author, the creator of the post and admins.
// @Tags comments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Comment ID"
// @Success 200 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /comments/{id} [delete]
func (h *Handler) DeleteComment(c *gin.Context) {
	err := h.social.DeleteComment(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"), middleware.IsAdmin(c))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Comment deleted", nil)
}

// ToggleCommentLike
// @Summary Like or unlike a comment
// @Tags comments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Comment ID"
// @Success 200 {object} utils.Response
// @Router /comments/{id}/like [post]
func (h *Handler) ToggleCommentLike(c *gin.Context) {
	liked, err := h.social.ToggleCommentLike(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", gin.H{"liked": liked})
}
