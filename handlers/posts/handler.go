package posts

import (
	"context"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"nudfans-backend/apperrors"
	"nudfans-backend/middleware"
	"nudfans-backend/models"
	"nudfans-backend/services/access"
	"nudfans-backend/services/content"
	"nudfans-backend/services/social"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
)

// maxUploadBytes bounds a whole multipart request: one video plus form fields.
const maxUploadBytes = 210 << 20

type Handler struct {
	content *content.Service
	social  *social.Service
}

func New(contentService *content.Service, socialService *social.Service) *Handler {
	return &Handler{content: contentService, social: socialService}
}

func pageFrom(c *gin.Context) content.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return content.Page{Limit: limit, Offset: offset}
}

// Feed
// @Summary Home feed
// @Description Posts of followed and subscribed creators, newest first. Locked media come without their URL.
// @Tags posts
// @Produce json
// @Param limit query int false "Page size (max 50)"
// @Param offset query int false "Offset"
// @Success 200 {object} utils.Response
// @Router /posts/feed [get]
func (h *Handler) Feed(c *gin.Context) {
	views, err := h.content.ListFeed(c.Request.Context(), middleware.CurrentViewer(c), pageFrom(c))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", views)
}

// GetPost
// @Summary Get a post
// @Description The media of a post the viewer cannot access are returned as blurred previews.
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /posts/{id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	view, err := h.content.GetPost(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", view)
}

// CreatorPosts
// @Summary Posts of a creator
// @Tags posts
// @Produce json
// @Param id path string true "Creator profile ID"
// @Param limit query int false "Page size (max 50)"
// @Param offset query int false "Offset"
// @Success 200 {object} utils.Response
// @Router /creators/{id}/posts [get]
func (h *Handler) CreatorPosts(c *gin.Context) {
	views, err := h.content.ListByCreator(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"), pageFrom(c))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "", views)
}

// CreatePost
// @Summary Create a post
// @Description Accepts JSON, or multipart/form-data with one or more "media" files.
// @Tags posts
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param content formData string false "Text"
// @Param postType formData string true "free, subscription or ppv"
// @Param ppvPrice formData string false "Price of a ppv post"
// @Param media formData file false "Image or video"
// @Success 201 {object} utils.Response
// @Failure 400 {object} utils.Response
// @Failure 403 {object} utils.Response "Not a creator"
// @Router /posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	viewer := middleware.CurrentViewer(c)
	isMultipart := strings.HasPrefix(c.ContentType(), "multipart/")
	if isMultipart {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	}

	var input models.PostCreate
	if err := c.ShouldBind(&input); err != nil {
		utils.SendAppError(c, apperrors.Invalid("Invalid request body: "+err.Error()))
		return
	}
	draft, err := content.DraftFromCreate(input)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	var files []*multipart.FileHeader
	if isMultipart {
		form, err := c.MultipartForm()
		if err != nil {
			utils.SendAppError(c, apperrors.Invalid("Invalid multipart form: "+err.Error()))
			return
		}
		files = form.File["media"]
	}

	ctx := c.Request.Context()
	post, err := h.content.Create(ctx, viewer, draft)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	for _, fh := range files {
		if err := h.attach(ctx, viewer, post.ID, fh); err != nil {
			if discardErr := h.content.Discard(ctx, viewer, post.ID); discardErr != nil {
				utils.LogError(discardErr, "could not discard incomplete post "+post.ID)
			}
			utils.SendAppError(c, err)
			return
		}
	}

	view, err := h.content.ViewPost(ctx, viewer, post.ID)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, "Post created", view)
}

func (h *Handler) attach(ctx context.Context, viewer *access.Viewer, postID string, fh *multipart.FileHeader) error {
	file, err := fh.Open()
	if err != nil {
		return apperrors.Internal(err)
	}
	defer file.Close()
	_, err = h.content.AddMedia(ctx, viewer, postID, file, fh.Size)
	return err
}

// UpdatePost
// @Summary Update a post
// @Description A ppv post keeps unlocking for its past buyers even if its type changes.
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param post body models.PostUpdate true "Fields to update"
// @Success 200 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /posts/{id} [put]
func (h *Handler) UpdatePost(c *gin.Context) {
	var input models.PostUpdate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}
	post, err := h.content.Update(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"), input)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Post updated", post)
}

// DeletePost
// @Summary Delete a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /posts/{id} [delete]
func (h *Handler) DeletePost(c *gin.Context) {
	err := h.content.Delete(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"), middleware.IsAdmin(c))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Post deleted", nil)
}

// AddMedia
// @Summary Attach a media file to a post
// @Tags posts
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param file formData file true "Image or video"
// @Success 201 {object} utils.Response
// @Failure 400 {object} utils.Response "Unsupported or too large file"
// @Router /posts/{id}/media [post]
func (h *Handler) AddMedia(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		utils.SendAppError(c, apperrors.Invalid("file is required"))
		return
	}
	file, err := fh.Open()
	if err != nil {
		utils.SendAppError(c, apperrors.Internal(err))
		return
	}
	defer file.Close()

	media, err := h.content.AddMedia(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"), file, fh.Size)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, "Media added", media)
}

// RemoveMedia
// @Summary Remove a media file from a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param mediaId path string true "Media ID"
// @Success 200 {object} utils.Response
// @Router /posts/{id}/media/{mediaId} [delete]
func (h *Handler) RemoveMedia(c *gin.Context) {
	err := h.content.RemoveMedia(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"), c.Param("mediaId"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, "Media removed", nil)
}

// ToggleLike
// @Summary Like or unlike a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} utils.Response
// @Failure 403 {object} utils.Response "Post locked"
// @Router /posts/{id}/like [post]
func (h *Handler) ToggleLike(c *gin.Context) {
	liked, err := h.social.ToggleLike(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	message := "Post unliked"
	if liked {
		message = "Post liked"
	}
	utils.SendSuccess(c, http.StatusOK, message, gin.H{"liked": liked})
}

// ReportPost
// @Summary Report a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param report body models.ReportCreate true "Reason"
// @Success 201 {object} utils.Response
// @Failure 409 {object} utils.Response "Already reported"
// @Router /posts/{id}/report [post]
func (h *Handler) ReportPost(c *gin.Context) {
	var input models.ReportCreate
	if !utils.ValidateRequestBody(c, &input) {
		return
	}
	report, err := h.social.Report(c.Request.Context(), middleware.CurrentViewer(c), c.Param("id"), input.Reason)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, "Report sent", report)
}
