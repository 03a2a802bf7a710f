package notifications

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"nudfans-backend/middleware"
	"nudfans-backend/models"
	"nudfans-backend/services/notify"
	"nudfans-backend/testutils"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestMain(m *testing.M) {
	testutils.InitTestMain()
	log.SetOutput(io.Discard)
	exitCode := m.Run()
	log.SetOutput(os.Stdout)
	os.Exit(exitCode)
}

func call(r *gin.Engine, method, path string, user *models.User) (*httptest.ResponseRecorder, utils.Response) {
	req, _ := http.NewRequest(method, path, nil)
	tok, _ := utils.GenerateJWT(*user, secret, 1)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp utils.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestNotifications(t *testing.T) {
	database := testutils.SetupSQLiteDB(t)
	user := testutils.CreateUser(t, database, "alice", models.CreatorType)
	other := testutils.CreateUser(t, database, "bob", models.FanType)
	notifier := notify.New(database)
	ctx := context.Background()
	notifier.Send(ctx, user.ID, models.NotificationNewFollower, "you have a new follower", nil)
	notifier.Send(ctx, user.ID, models.NotificationTip, "you got a tip", map[string]interface{}{"amountCents": 500})

	h := New(notifier)
	r := testutils.SetupTestRouter()
	g := r.Group("/notifications", middleware.JWTAuth(secret))
	g.GET("", h.List)
	g.POST("/read-all", h.MarkAllRead)
	g.POST("/:id/read", h.MarkRead)

	w, resp := call(r, http.MethodGet, "/notifications", user)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	items := data["notifications"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, float64(2), data["unreadCount"])
	firstID := items[0].(map[string]interface{})["id"].(string)

	w, _ = call(r, http.MethodPost, "/notifications/"+firstID+"/read", other)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = call(r, http.MethodPost, "/notifications/"+firstID+"/read", user)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = call(r, http.MethodGet, "/notifications?unread=true", user)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.(map[string]interface{})["notifications"].([]interface{}), 1)

	w, resp = call(r, http.MethodPost, "/notifications/read-all", user)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["updated"])
}
