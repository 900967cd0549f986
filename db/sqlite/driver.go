package sqlite

import (
	"fmt"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var memoryDBCounter int64

// Open creates a GORM *DB backed by a SQLite file.
func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// OpenMemory creates a fresh in-memory SQLite DB. Each call returns an
// isolated database; used by tests, requires no external services.
func OpenMemory() (*gorm.DB, error) {
	n := atomic.AddInt64(&memoryDBCounter, 1)
	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids
	// "database is locked" under concurrent access.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
