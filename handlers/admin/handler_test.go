package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"nudfans-backend/middleware"
	"nudfans-backend/models"
	"nudfans-backend/services/access"
	"nudfans-backend/services/entitlements"
	"nudfans-backend/services/ledger"
	"nudfans-backend/services/notify"
	"nudfans-backend/services/social"
	"nudfans-backend/testutils"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "test-secret"

func TestMain(m *testing.M) {
	testutils.InitTestMain()
	log.SetOutput(io.Discard)
	exitCode := m.Run()
	log.SetOutput(os.Stdout)
	os.Exit(exitCode)
}

func setupRouter(database *gorm.DB) *gin.Engine {
	store := entitlements.New(database)
	l := ledger.New(database, decimal.RequireFromString("0.20"))
	h := New(database, l, social.New(database, store, access.NewEvaluator(0), notify.New(database)))

	r := testutils.SetupTestRouter()
	g := r.Group("/admin", middleware.AdminAuth(secret))
	g.GET("/users", h.ListUsers)
	g.PUT("/users/:id/role", h.UpdateRole)
	g.PUT("/creators/:id/verify", h.VerifyCreator)
	g.POST("/creators/:id/recompute-earnings", h.RecomputeEarnings)
	g.POST("/earnings/recompute", h.RecomputeAllEarnings)
	g.GET("/transactions", h.ListTransactions)
	g.GET("/stats", h.Stats)
	g.GET("/reports", h.ListReports)
	g.PUT("/reports/:id", h.UpdateReport)
	return r
}

func createAdmin(t *testing.T, database *gorm.DB) *models.User {
	t.Helper()
	admin := testutils.CreateUser(t, database, "root", models.FanType)
	require.NoError(t, database.Model(admin).Update("role", models.AdminRole).Error)
	admin.Role = models.AdminRole
	return admin
}

func call(r *gin.Engine, method, path string, user *models.User, body interface{}) (*httptest.ResponseRecorder, utils.Response) {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewBuffer(raw)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	tok, _ := utils.GenerateJWT(*user, secret, 1)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp utils.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestAdminOnly(t *testing.T) {
	database := testutils.SetupSQLiteDB(t)
	fan := testutils.CreateUser(t, database, "fan", models.FanType)
	r := setupRouter(database)

	w, _ := call(r, http.MethodGet, "/admin/users", fan, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUsersAndRoles(t *testing.T) {
	database := testutils.SetupSQLiteDB(t)
	admin := createAdmin(t, database)
	fan := testutils.CreateUser(t, database, "fan", models.FanType)
	r := setupRouter(database)

	w, resp := call(r, http.MethodGet, "/admin/users?search=fan", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["total"])
	assert.NotContains(t, w.Body.String(), "hashed")

	w, _ = call(r, http.MethodPut, "/admin/users/"+fan.ID+"/role", admin, map[string]string{"role": "OWNER"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(r, http.MethodPut, "/admin/users/"+fan.ID+"/role", admin, map[string]string{"role": "ADMIN"})
	require.Equal(t, http.StatusOK, w.Code)
	var stored models.User
	require.NoError(t, database.First(&stored, "id = ?", fan.ID).Error)
	assert.Equal(t, models.AdminRole, stored.Role)

	w, _ = call(r, http.MethodPut, "/admin/users/"+admin.ID+"/role", admin, map[string]string{"role": "USER"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(r, http.MethodPut, "/admin/users/00000000-0000-0000-0000-000000000000/role", admin, map[string]string{"role": "USER"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerifyCreatorAndRecompute(t *testing.T) {
	database := testutils.SetupSQLiteDB(t)
	admin := createAdmin(t, database)
	fan := testutils.CreateUser(t, database, "fan", models.FanType)
	_, profile := testutils.CreateCreator(t, database, "alice", 1999)
	r := setupRouter(database)

	w, _ := call(r, http.MethodPut, "/admin/creators/"+profile.ID+"/verify", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stored models.CreatorProfile
	require.NoError(t, database.First(&stored, "id = ?", profile.ID).Error)
	assert.True(t, stored.IsVerified)

	l := ledger.New(database, decimal.RequireFromString("0.20"))
	_, err := l.Record(database, ledger.Entry{
		CreatorID: profile.ID, UserID: fan.ID, Type: models.TransactionPPV, AmountCents: 999, Currency: "brl", PaymentRef: "cs:ppv_1",
	})
	require.NoError(t, err)

	w, resp := call(r, http.MethodPost, "/admin/creators/"+profile.ID+"/recompute-earnings", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["corrected"])

	// corrupt the cache
	require.NoError(t, database.Model(&models.CreatorProfile{}).Where("id = ?", profile.ID).Update("total_earnings_cents", 1).Error)
	w, resp = call(r, http.MethodPost, "/admin/creators/"+profile.ID+"/recompute-earnings", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["corrected"])
	require.NoError(t, database.First(&stored, "id = ?", profile.ID).Error)
	assert.Equal(t, int64(799), stored.TotalEarningsCents)

	require.NoError(t, database.Model(&models.CreatorProfile{}).Where("id = ?", profile.ID).Update("total_earnings_cents", 0).Error)
	w, resp = call(r, http.MethodPost, "/admin/earnings/recompute", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.(map[string]interface{})["corrected"].([]interface{}), 1)

	w, _ = call(r, http.MethodPost, "/admin/creators/00000000-0000-0000-0000-000000000000/recompute-earnings", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = call(r, http.MethodGet, "/admin/transactions?type=ppv", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["total"])

	w, resp = call(r, http.MethodGet, "/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := resp.Data.(map[string]interface{})
	assert.Equal(t, "2.00", stats["platformFees"])
	assert.Equal(t, "9.99", stats["grossVolume"])
}

func TestReports(t *testing.T) {
	database := testutils.SetupSQLiteDB(t)
	admin := createAdmin(t, database)
	fan := testutils.CreateUser(t, database, "fan", models.FanType)
	_, profile := testutils.CreateCreator(t, database, "alice", 1999)
	post := testutils.CreatePost(t, database, profile.ID, models.PostFree, 0)
	report := &models.Report{PostID: post.ID, ReportedBy: fan.ID, Reason: models.ReportReason("SCAM"), Status: models.ReportOpen}
	require.NoError(t, database.Create(report).Error)
	r := setupRouter(database)

	w, resp := call(r, http.MethodGet, "/admin/reports?status=OPEN", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.([]interface{}), 1)

	w, _ = call(r, http.MethodPut, "/admin/reports/"+report.ID, admin, map[string]string{"status": "RESOLVED"})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = call(r, http.MethodGet, "/admin/reports?status=OPEN", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp.Data)
}

func TestListUsersDatabaseError(t *testing.T) {
	gormDB, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	r := setupRouter(gormDB)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users"`).WillReturnError(gorm.ErrInvalidDB)
	admin := &models.User{Base: models.Base{ID: "admin-1"}, Role: models.AdminRole}
	w, _ := call(r, http.MethodGet, "/admin/users", admin, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
