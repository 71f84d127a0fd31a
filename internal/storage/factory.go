package storage

import (
	"fmt"

	"github.com/jangxx/UniversalTrackerMarkers/internal/config"
	"github.com/jangxx/UniversalTrackerMarkers/internal/storage/memory"
	pgstorage "github.com/jangxx/UniversalTrackerMarkers/internal/storage/postgres"
	sqlitestorage "github.com/jangxx/UniversalTrackerMarkers/internal/storage/sqlite"
)

// NewStore creates a known-device store based on configuration
func NewStore(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{Path: cfg.Path})
	case "postgres":
		return pgstorage.New(pgstorage.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Username: cfg.Postgres.Username,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
