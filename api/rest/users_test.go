package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/linkupchat/linkup/api/rest"
	mw "github.com/linkupchat/linkup/middleware"
	"github.com/linkupchat/linkup/model"
	"github.com/linkupchat/linkup/presence"
	"github.com/linkupchat/linkup/testutil"
)

type usersFixture struct {
	db       *gorm.DB
	registry *presence.Registry
	alice    *model.User
	bob      *model.User
}

func newUsersRouter(t *testing.T, actAs func() int64) (*gin.Engine, *usersFixture) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	registry := presence.NewRegistry(db, c, testutil.Logger())
	h := rest.NewUserHandler(db, registry, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(mw.UserIDKey, actAs())
		c.Next()
	})
	r.GET("/api/users", h.List)
	r.GET("/api/users/online", h.Online)
	r.GET("/api/users/me", h.Me)
	r.PATCH("/api/users/me", h.UpdateProfile)
	r.PUT("/api/users/me/status", h.SetStatus)
	r.GET("/api/users/:id", h.Get)

	fix := &usersFixture{
		db:       db,
		registry: registry,
		alice:    testutil.CreateUser(t, db, "alice@example.com", "alice"),
		bob:      testutil.CreateUser(t, db, "bob@example.com", "bob"),
	}
	return r, fix
}

func TestMe_IncludesEmail(t *testing.T) {
	var caller int64
	r, fix := newUsersRouter(t, func() int64 { return caller })
	caller = fix.alice.ID

	w := do(r, http.MethodGet, "/api/users/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice@example.com")
}

func TestGetUser_HidesEmail(t *testing.T) {
	var caller int64
	r, fix := newUsersRouter(t, func() int64 { return caller })
	caller = fix.alice.ID

	w := do(r, http.MethodGet, "/api/users/"+itoa(fix.bob.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "bob@example.com")
	assert.Contains(t, w.Body.String(), `"username":"bob"`)
}

func TestGetUser_NotFound(t *testing.T) {
	r, _ := newUsersRouter(t, func() int64 { return 1 })

	w := do(r, http.MethodGet, "/api/users/99999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/users/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListUsers_OrderedByUsername(t *testing.T) {
	r, _ := newUsersRouter(t, func() int64 { return 1 })

	w := do(r, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Users []struct {
			Username string `json:"username"`
		} `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Users, 2)
	assert.Equal(t, "alice", resp.Users[0].Username)
	assert.Equal(t, "bob", resp.Users[1].Username)
}

func TestUpdateProfile(t *testing.T) {
	var caller int64
	r, fix := newUsersRouter(t, func() int64 { return caller })
	caller = fix.alice.ID

	w := do(r, http.MethodPatch, "/api/users/me", map[string]string{
		"bio":        "gopher",
		"avatar_url": "https://cdn.example.com/alice.png",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var u model.User
	require.NoError(t, fix.db.First(&u, fix.alice.ID).Error)
	assert.Equal(t, "gopher", u.Bio)
	assert.Equal(t, "alice", u.Username, "fields not in the request stay untouched")
}

func TestUpdateProfile_EmptyBody(t *testing.T) {
	var caller int64
	r, fix := newUsersRouter(t, func() int64 { return caller })
	caller = fix.alice.ID

	w := do(r, http.MethodPatch, "/api/users/me", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetStatusEndpoint(t *testing.T) {
	var caller int64
	r, fix := newUsersRouter(t, func() int64 { return caller })
	caller = fix.alice.ID

	_, err := fix.registry.MarkOnline(context.Background(), fix.alice.ID)
	require.NoError(t, err)

	w := do(r, http.MethodPut, "/api/users/me/status", map[string]string{"status": model.StatusBusy})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.StatusBusy)

	w = do(r, http.MethodPut, "/api/users/me/status", map[string]string{"status": "invisible"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOnlineEndpoint(t *testing.T) {
	var caller int64
	r, fix := newUsersRouter(t, func() int64 { return caller })
	caller = fix.alice.ID

	_, err := fix.registry.MarkOnline(context.Background(), fix.alice.ID)
	require.NoError(t, err)
	_, err = fix.registry.MarkOnline(context.Background(), fix.bob.ID)
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/api/users/online", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)
}
