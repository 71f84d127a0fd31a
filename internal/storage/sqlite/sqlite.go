// Package sqlitestorage keeps the known-device history in a SQLite file
// through GORM. An empty path opens a private in-memory database.
package sqlitestorage

import (
	"fmt"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	gormstorage "github.com/jangxx/UniversalTrackerMarkers/internal/storage/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	Path string
}

// memoryDBs numbers in-memory databases so two backends never share one.
var memoryDBs atomic.Int64

// Backend stores known devices in SQLite.
type Backend struct {
	*gormstorage.Backend
	cfg Config
}

// New opens the database. The schema is created by Init.
func New(cfg Config) (*Backend, error) {
	db, err := open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}
	return &Backend{Backend: gormstorage.New(db), cfg: cfg}, nil
}

func open(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:devices%d?mode=memory&cache=shared", memoryDBs.Add(1))
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA synchronous = NORMAL;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}
