package ping

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"nudfans-backend/testutils"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	testutils.InitTestMain()
	log.SetOutput(io.Discard)
	exitCode := m.Run()
	log.SetOutput(os.Stdout)
	os.Exit(exitCode)
}

func get(r *gin.Engine, path string) (*httptest.ResponseRecorder, utils.Response) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	var response utils.Response
	_ = json.Unmarshal(w.Body.Bytes(), &response)
	return w, response
}

func TestHandlePing(t *testing.T) {
	r := testutils.SetupTestRouter()
	handler := New(nil)
	r.GET("/ping", handler.HandlePing)

	w, response := get(r, "/ping")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, response.Success)
	assert.Equal(t, "Ping successful", response.Message)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "pong", data["message"])
}

func TestHandleHealth(t *testing.T) {
	database := testutils.SetupSQLiteDB(t)
	r := testutils.SetupTestRouter()
	r.GET("/health", New(database).HandleHealth)

	w, response := get(r, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "up", response.Data.(map[string]interface{})["database"])

	sqlDB, err := database.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w, response = get(r, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, response.Success)
}
