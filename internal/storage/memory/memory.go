// Package memory keeps the known-device history in process memory.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
)

// Backend stores known devices in a map keyed by serial
type Backend struct {
	devices map[string]model.KnownDevice
	mu      sync.RWMutex
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{
		devices: make(map[string]model.KnownDevice),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// RecordSeen upserts the given devices with LastSeen set to at.
func (b *Backend) RecordSeen(devices []model.KnownDevice, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, d := range devices {
		existing, ok := b.devices[d.Serial]
		if ok {
			existing.Class = d.Class
			existing.LastSeen = at
			b.devices[d.Serial] = existing
			continue
		}
		d.FirstSeen = at
		d.LastSeen = at
		b.devices[d.Serial] = d
	}
	return nil
}

// Known returns all recorded devices ordered by serial.
func (b *Backend) Known() ([]model.KnownDevice, error) {
	b.mu.RLock()
	out := make([]model.KnownDevice, 0, len(b.devices))
	for _, d := range b.devices {
		out = append(out, d)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out, nil
}
