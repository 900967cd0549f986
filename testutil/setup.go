package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/linkupchat/linkup/cache"
	"github.com/linkupchat/linkup/config"
	dbadapter "github.com/linkupchat/linkup/db"
	"github.com/linkupchat/linkup/model"
)

// SetupTestDB creates a private in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeSQLiteMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.Config{} // empty RedisAddr → LocalCache
	c, err := cache.New(cfg)
	require.NoError(t, err, "SetupTestCache: New")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// Logger returns a no-op logger for tests.
func Logger() *zap.Logger {
	return zap.NewNop()
}

// CreateUser inserts a user row and returns it.
func CreateUser(t *testing.T, db *gorm.DB, email, username string) *model.User {
	t.Helper()
	u := &model.User{
		Email:        email,
		Username:     username,
		PasswordHash: "x",
		Status:       model.StatusOffline,
	}
	require.NoError(t, db.Create(u).Error, "CreateUser")
	return u
}

// Eventually polls cond until it returns true or the timeout elapses.
// Useful for asserting on asynchronous fan-out.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, timeout, 5*time.Millisecond)
}
