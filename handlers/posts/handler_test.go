package posts

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"nudfans-backend/middleware"
	"nudfans-backend/models"
	"nudfans-backend/services/access"
	"nudfans-backend/services/content"
	"nudfans-backend/services/entitlements"
	"nudfans-backend/services/notify"
	"nudfans-backend/services/social"
	"nudfans-backend/services/storage"
	"nudfans-backend/testutils"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "test-secret"

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestMain(m *testing.M) {
	testutils.InitTestMain()
	log.SetOutput(io.Discard)
	exitCode := m.Run()
	log.SetOutput(os.Stdout)
	os.Exit(exitCode)
}

type fixture struct {
	db      *gorm.DB
	router  *gin.Engine
	blobs   *storage.Memory
	fan     *models.User
	creator *models.User
	profile *models.CreatorProfile
}

func setup(t *testing.T) *fixture {
	t.Helper()
	database := testutils.SetupSQLiteDB(t)
	store := entitlements.New(database)
	evaluator := access.NewEvaluator(0)
	blobs := storage.NewMemory("https://media.test")
	h := New(content.New(database, store, evaluator, blobs), social.New(database, store, evaluator, notify.New(database)))

	r := testutils.SetupTestRouter()
	public := r.Group("", middleware.OptionalAuth(secret), middleware.LoadViewer(store))
	public.GET("/posts/feed", h.Feed)
	public.GET("/posts/:id", h.GetPost)
	public.GET("/creators/:id/posts", h.CreatorPosts)
	private := r.Group("", middleware.JWTAuth(secret), middleware.LoadViewer(store))
	private.POST("/posts", h.CreatePost)
	private.PUT("/posts/:id", h.UpdatePost)
	private.DELETE("/posts/:id", h.DeletePost)
	private.POST("/posts/:id/media", h.AddMedia)
	private.DELETE("/posts/:id/media/:mediaId", h.RemoveMedia)
	private.POST("/posts/:id/like", h.ToggleLike)
	private.POST("/posts/:id/report", h.ReportPost)
	private.GET("/posts/:id/comments", h.ListComments)
	private.POST("/posts/:id/comments", h.AddComment)
	private.DELETE("/comments/:id", h.DeleteComment)
	private.POST("/comments/:id/like", h.ToggleCommentLike)

	f := &fixture{db: database, router: r, blobs: blobs}
	f.fan = testutils.CreateUser(t, database, "fan", models.FanType)
	f.creator, f.profile = testutils.CreateCreator(t, database, "alice", 1999)
	return f
}

func (f *fixture) do(req *http.Request, user *models.User) (*httptest.ResponseRecorder, utils.Response) {
	if user != nil {
		tok, _ := utils.GenerateJWT(*user, secret, 1)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var resp utils.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func (f *fixture) json(method, path string, user *models.User, body interface{}) (*httptest.ResponseRecorder, utils.Response) {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewBuffer(raw)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return f.do(req, user)
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile(fileField, "upload.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestCreatePostJSON(t *testing.T) {
	f := setup(t)

	w, resp := f.json(http.MethodPost, "/posts", f.fan, map[string]string{"content": "hi", "postType": "free"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_CREATOR", resp.Code)

	w, _ = f.json(http.MethodPost, "/posts", f.creator, map[string]string{"content": "hi", "postType": "ppv"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = f.json(http.MethodPost, "/posts", f.creator, map[string]string{"content": "hi", "postType": "ppv", "ppvPrice": "4.99"})
	require.Equal(t, http.StatusCreated, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "4.99", data["ppvPrice"])
	assert.Equal(t, true, data["hasAccess"])
}

func TestCreatePostMultipartWithMedia(t *testing.T) {
	f := setup(t)
	body, contentType := multipartBody(t, map[string]string{"content": "pic", "postType": "subscription"}, "media", pngHeader)
	req, _ := http.NewRequest(http.MethodPost, "/posts", body)
	req.Header.Set("Content-Type", contentType)

	w, resp := f.do(req, f.creator)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := resp.Data.(map[string]interface{})
	media := data["media"].([]interface{})
	require.Len(t, media, 1)
	postID := data["id"].(string)

	// a fan without subscription only gets the preview
	w, _ = f.json(http.MethodGet, "/posts/"+postID, f.fan, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "https://media.test/full/")
	assert.Contains(t, w.Body.String(), "https://media.test/preview/")

	testutils.CreateSubscription(t, f.db, f.fan.ID, f.profile.ID, models.SubscriptionActive, time.Now().Add(24*time.Hour))
	w, _ = f.json(http.MethodGet, "/posts/"+postID, f.fan, nil)
	assert.Contains(t, w.Body.String(), "https://media.test/full/")
}

func TestCreatePostMultipart_FailedUploadLeavesNothing(t *testing.T) {
	f := setup(t)
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("content", "album"))
	require.NoError(t, mw.WriteField("postType", "subscription"))
	for _, file := range [][]byte{pngHeader, []byte("just some text")} {
		part, err := mw.CreateFormFile("media", "upload.bin")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req, _ := http.NewRequest(http.MethodPost, "/posts", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w, _ := f.do(req, f.creator)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var posts, media int64
	require.NoError(t, f.db.Unscoped().Model(&models.Post{}).Count(&posts).Error)
	require.NoError(t, f.db.Unscoped().Model(&models.PostMedia{}).Count(&media).Error)
	assert.Zero(t, posts)
	assert.Zero(t, media)
}

func TestCreatePost_OwnViewNotCounted(t *testing.T) {
	f := setup(t)
	w, resp := f.json(http.MethodPost, "/posts", f.creator, map[string]string{"content": "hi", "postType": "free"})
	require.Equal(t, http.StatusCreated, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(0), data["viewsCount"])

	var stored models.Post
	require.NoError(t, f.db.First(&stored, "id = ?", data["id"]).Error)
	assert.Zero(t, stored.ViewsCount)
}

func TestCreatePost_BrokenMultipartIsRejected(t *testing.T) {
	f := setup(t)
	req, _ := http.NewRequest(http.MethodPost, "/posts", bytes.NewBufferString("--x\r\nnot a form"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")

	w, _ := f.do(req, f.creator)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var posts int64
	require.NoError(t, f.db.Model(&models.Post{}).Count(&posts).Error)
	assert.Zero(t, posts)
}

func TestAddAndRemoveMedia(t *testing.T) {
	f := setup(t)
	post := testutils.CreatePost(t, f.db, f.profile.ID, models.PostFree, 0)

	body, contentType := multipartBody(t, nil, "file", []byte("just some text"))
	req, _ := http.NewRequest(http.MethodPost, "/posts/"+post.ID+"/media", body)
	req.Header.Set("Content-Type", contentType)
	w, _ := f.do(req, f.creator)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, contentType = multipartBody(t, nil, "file", pngHeader)
	req, _ = http.NewRequest(http.MethodPost, "/posts/"+post.ID+"/media", body)
	req.Header.Set("Content-Type", contentType)
	w, _ = f.do(req, f.fan)
	assert.Equal(t, http.StatusForbidden, w.Code)

	body, contentType = multipartBody(t, nil, "file", pngHeader)
	req, _ = http.NewRequest(http.MethodPost, "/posts/"+post.ID+"/media", body)
	req.Header.Set("Content-Type", contentType)
	w, resp := f.do(req, f.creator)
	require.Equal(t, http.StatusCreated, w.Code)
	mediaID := resp.Data.(map[string]interface{})["id"].(string)

	w, _ = f.json(http.MethodDelete, "/posts/"+post.ID+"/media/"+mediaID, f.creator, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFeedAndCreatorPosts(t *testing.T) {
	f := setup(t)
	testutils.CreatePost(t, f.db, f.profile.ID, models.PostFree, 0)
	testutils.CreatePost(t, f.db, f.profile.ID, models.PostPPV, 500)

	w, resp := f.json(http.MethodGet, "/posts/feed", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.([]interface{}), 2)

	w, resp = f.json(http.MethodGet, "/creators/"+f.profile.ID+"/posts?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.([]interface{}), 1)
}

func TestLikeRequiresAccess(t *testing.T) {
	f := setup(t)
	locked := testutils.CreatePost(t, f.db, f.profile.ID, models.PostSubscription, 0)
	free := testutils.CreatePost(t, f.db, f.profile.ID, models.PostFree, 0)

	w, resp := f.json(http.MethodPost, "/posts/"+locked.ID+"/like", f.fan, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "POST_LOCKED", resp.Code)

	w, resp = f.json(http.MethodPost, "/posts/"+free.ID+"/like", f.fan, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["liked"])

	w, _ = f.json(http.MethodPost, "/posts/"+free.ID+"/like", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCommentsLifecycle(t *testing.T) {
	f := setup(t)
	post := testutils.CreatePost(t, f.db, f.profile.ID, models.PostFree, 0)

	w, resp := f.json(http.MethodPost, "/posts/"+post.ID+"/comments", f.fan, map[string]string{"content": "nice"})
	require.Equal(t, http.StatusCreated, w.Code)
	commentID := resp.Data.(map[string]interface{})["id"].(string)

	w, resp = f.json(http.MethodGet, "/posts/"+post.ID+"/comments", f.fan, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.([]interface{}), 1)

	w, resp = f.json(http.MethodPost, "/comments/"+commentID+"/like", f.creator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["liked"])

	other := testutils.CreateUser(t, f.db, "other", models.FanType)
	w, _ = f.json(http.MethodDelete, "/comments/"+commentID, other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// the creator of the post moderates its comments
	w, _ = f.json(http.MethodDelete, "/comments/"+commentID, f.creator, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var stored models.Post
	require.NoError(t, f.db.First(&stored, "id = ?", post.ID).Error)
	assert.EqualValues(t, 0, stored.CommentsCount)
}

func TestReportPost(t *testing.T) {
	f := setup(t)
	post := testutils.CreatePost(t, f.db, f.profile.ID, models.PostSubscription, 0)

	w, _ := f.json(http.MethodPost, "/posts/"+post.ID+"/report", f.fan, map[string]string{"reason": "nonsense"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.json(http.MethodPost, "/posts/"+post.ID+"/report", f.fan, map[string]string{"reason": "SCAM"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w, resp := f.json(http.MethodPost, "/posts/"+post.ID+"/report", f.fan, map[string]string{"reason": "SCAM"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_REPORTED", resp.Code)
}

func TestUpdateAndDeletePost(t *testing.T) {
	f := setup(t)
	post := testutils.CreatePost(t, f.db, f.profile.ID, models.PostFree, 0)

	w, _ := f.json(http.MethodPut, "/posts/"+post.ID, f.fan, map[string]string{"content": "hacked"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.json(http.MethodPut, "/posts/"+post.ID, f.creator, map[string]string{"content": "edited"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "edited")

	w, _ = f.json(http.MethodDelete, "/posts/"+post.ID, f.creator, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = f.json(http.MethodGet, "/posts/"+post.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
