package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/linkupchat/linkup/api/rest"
	"github.com/linkupchat/linkup/model"
	"github.com/linkupchat/linkup/presence"
	"github.com/linkupchat/linkup/realtime"
	"github.com/linkupchat/linkup/scheduler"
	"github.com/linkupchat/linkup/testutil"
)

const adminKey = "test-admin-key"

func newAdminRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	registry := presence.NewRegistry(db, c, testutil.Logger())
	hub := realtime.NewHub(ps, testutil.Logger())
	require.NoError(t, hub.Start(context.Background()))
	t.Cleanup(hub.Close)
	sched := scheduler.New(testutil.Logger())
	t.Cleanup(sched.Stop)

	h := rest.NewAdminHandler(db, hub, registry, sched, testutil.Logger())
	r := gin.New()
	grp := r.Group("/api/admin", rest.AdminAuth(adminKey))
	grp.GET("/metrics", h.Metrics)
	grp.GET("/connections", h.ListConnections)
	grp.POST("/kick/:id", h.KickUser)
	grp.POST("/users/:id/ban", h.BanUser)
	grp.POST("/presence/reconcile", h.ReconcilePresence)
	grp.GET("/scheduler", h.ListSchedulerTasks)
	return r, db
}

func doAdmin(r *gin.Engine, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminAuth_MissingKey(t *testing.T) {
	r, _ := newAdminRouter(t)
	w := doAdmin(r, http.MethodGet, "/api/admin/metrics", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_WrongKey(t *testing.T) {
	r, _ := newAdminRouter(t)
	w := doAdmin(r, http.MethodGet, "/api/admin/metrics", "nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_EmptyConfiguredKeyDisablesRoutes(t *testing.T) {
	r := gin.New()
	r.GET("/api/admin/metrics", rest.AdminAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doAdmin(r, http.MethodGet, "/api/admin/metrics", "anything")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminMetrics(t *testing.T) {
	r, db := newAdminRouter(t)
	testutil.CreateUser(t, db, "a@example.com", "a")
	testutil.CreateUser(t, db, "b@example.com", "b")

	w := doAdmin(r, http.MethodGet, "/api/admin/metrics", adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_users":2`)
	assert.Contains(t, w.Body.String(), `"local_connections":0`)
}

func TestAdminConnections_Empty(t *testing.T) {
	r, _ := newAdminRouter(t)

	w := doAdmin(r, http.MethodGet, "/api/admin/connections", adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

func TestAdminKick_NotConnected(t *testing.T) {
	r, _ := newAdminRouter(t)

	w := doAdmin(r, http.MethodPost, "/api/admin/kick/42", adminKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func postAdminJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", adminKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminBanUser(t *testing.T) {
	r, db := newAdminRouter(t)
	u := testutil.CreateUser(t, db, "target@example.com", "target")

	w := postAdminJSON(r, "/api/admin/users/"+itoa(u.ID)+"/ban", map[string]bool{"ban": true})
	require.Equal(t, http.StatusOK, w.Code)

	var got model.User
	require.NoError(t, db.First(&got, u.ID).Error)
	assert.True(t, got.Banned)

	w = postAdminJSON(r, "/api/admin/users/"+itoa(u.ID)+"/ban", map[string]bool{"ban": false})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, db.First(&got, u.ID).Error)
	assert.False(t, got.Banned)
}

func TestAdminBanUser_Unknown(t *testing.T) {
	r, _ := newAdminRouter(t)

	w := doAdmin(r, http.MethodPost, "/api/admin/users/99999/ban", adminKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminReconcileAndScheduler(t *testing.T) {
	r, _ := newAdminRouter(t)

	w := doAdmin(r, http.MethodPost, "/api/admin/presence/reconcile", adminKey)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doAdmin(r, http.MethodGet, "/api/admin/scheduler", adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tasks":[]`)
}
