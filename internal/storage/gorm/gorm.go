// Package gormstorage implements the known-device store on top of any GORM
// dialector. The sqlite and postgres packages only open the connection.
package gormstorage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
)

// Backend stores known devices in a SQL database.
type Backend struct {
	db *gorm.DB
}

// New wraps an open connection.
func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if err := b.db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Close()
}

// RecordSeen upserts the given devices with LastSeen set to at. FirstSeen
// of an existing row is left alone.
func (b *Backend) RecordSeen(devices []model.KnownDevice, at time.Time) error {
	if len(devices) == 0 {
		return nil
	}

	rows := make([]model.KnownDevice, len(devices))
	for i, d := range devices {
		rows[i] = model.KnownDevice{
			Serial:    d.Serial,
			Class:     d.Class,
			FirstSeen: at,
			LastSeen:  at,
		}
	}

	err := b.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "serial"}},
		DoUpdates: clause.AssignmentColumns([]string{"class", "last_seen"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to record devices: %w", err)
	}
	return nil
}

// Known returns all recorded devices ordered by serial.
func (b *Backend) Known() ([]model.KnownDevice, error) {
	var out []model.KnownDevice
	if err := b.db.Order("serial").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}
	return out, nil
}
