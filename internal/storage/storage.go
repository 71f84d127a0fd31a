package storage

import (
	"time"

	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
)

// Store remembers every tracked device that has been seen at least once,
// so configured serials can be listed even while the device is off.
type Store interface {
	// Lifecycle
	Init() error
	Close() error

	// RecordSeen upserts devices; FirstSeen is kept for known serials.
	RecordSeen(devices []model.KnownDevice, at time.Time) error

	// Known returns all recorded devices ordered by serial.
	Known() ([]model.KnownDevice, error)
}
