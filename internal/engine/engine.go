// Package engine ties the device registry, the overlay manager and the
// proximity scheduler together behind the operations a host application
// calls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/afero"

	"github.com/jangxx/UniversalTrackerMarkers/internal/cache"
	"github.com/jangxx/UniversalTrackerMarkers/internal/devices"
	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
	"github.com/jangxx/UniversalTrackerMarkers/internal/overlay"
	"github.com/jangxx/UniversalTrackerMarkers/internal/proximity"
	"github.com/jangxx/UniversalTrackerMarkers/internal/storage"
	"github.com/jangxx/UniversalTrackerMarkers/internal/vr"
)

// unknownClass is reported for serials that are configured but have never
// been seen.
const unknownClass = "Unknown"

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Dependencies holds everything the engine needs. Store, Labels, Fs and
// Logger are optional.
type Dependencies struct {
	Runtime      vr.Runtime
	Fs           afero.Fs
	Labels       overlay.LabelTextures
	Store        storage.Store
	Logger       Logger
	TickInterval time.Duration
}

// DeviceStatus is one row of the device list.
type DeviceStatus struct {
	Serial    string `json:"serial"`
	Class     string `json:"class"`
	Connected bool   `json:"connected"`
}

// PairStatus describes one live marker overlay.
type PairStatus struct {
	MarkerID int    `json:"markerId"`
	Name     string `json:"name"`
	Serial   string `json:"serial"`
	Visible  bool   `json:"visible"`
	Fading   bool   `json:"fading"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	Running     bool         `json:"running"`
	ShowSerials bool         `json:"showSerials"`
	Devices     int          `json:"devices"`
	Markers     int          `json:"markers"`
	Pairs       []PairStatus `json:"pairs"`
}

// Engine is safe for concurrent use.
type Engine struct {
	registry  *devices.Registry
	overlays  *overlay.Manager
	scheduler *proximity.Scheduler
	addresses *cache.AddressIndex
	store     storage.Store
	logger    Logger

	mu          sync.Mutex
	markers     []model.Marker
	showSerials bool
}

// New wires the components. Nothing touches the runtime until the first
// call.
func New(deps Dependencies) (*Engine, error) {
	if deps.Runtime == nil {
		return nil, errors.New("engine: runtime is required")
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}

	registry := devices.NewRegistry(deps.Runtime)

	overlays, err := overlay.NewManager(overlay.Options{
		Runtime: deps.Runtime,
		Devices: registry,
		Fs:      deps.Fs,
		Labels:  deps.Labels,
		Logger:  deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating overlay manager: %w", err)
	}

	scheduler, err := proximity.New(proximity.Dependencies{
		System:   deps.Runtime,
		Target:   overlays,
		Logger:   deps.Logger,
		Interval: deps.TickInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("creating proximity scheduler: %w", err)
	}

	return &Engine{
		registry:  registry,
		overlays:  overlays,
		scheduler: scheduler,
		addresses: cache.NewAddressIndex(),
		store:     deps.Store,
		logger:    deps.Logger,
	}, nil
}

// RefreshDevices re-reads the device table, records the devices in the
// store and updates serial labels when they are shown.
func (e *Engine) RefreshDevices() error {
	if err := e.registry.Refresh(); err != nil {
		e.logger.Warn("device refresh failed", "error", err)
		return err
	}

	list := e.registry.List()
	e.logger.Debug("devices refreshed", "count", len(list))

	if e.store != nil {
		known := make([]model.KnownDevice, len(list))
		for i, d := range list {
			known[i] = model.KnownDevice{Serial: d.Serial, Class: d.Class.String()}
		}
		if err := e.store.RecordSeen(known, time.Now().UTC()); err != nil {
			e.logger.Warn("recording devices failed", "error", err)
		}
	}

	e.mu.Lock()
	shown := e.showSerials
	e.mu.Unlock()

	if shown {
		if err := e.overlays.SyncLabels(true, list); err != nil {
			e.logger.Warn("updating serial labels failed", "error", err)
			return err
		}
	}
	return nil
}

// ListDevices returns the connected devices followed by devices that were
// seen before or are referenced by a marker but are not connected now.
func (e *Engine) ListDevices() []DeviceStatus {
	connected := e.registry.List()

	out := make([]DeviceStatus, 0, len(connected))
	listed := make(map[string]struct{}, len(connected))
	for _, d := range connected {
		out = append(out, DeviceStatus{Serial: d.Serial, Class: d.Class.String(), Connected: true})
		listed[d.Serial] = struct{}{}
	}

	var offline []DeviceStatus
	add := func(serial, class string) {
		if _, ok := listed[serial]; ok {
			return
		}
		listed[serial] = struct{}{}
		offline = append(offline, DeviceStatus{Serial: serial, Class: class})
	}

	if e.store != nil {
		known, err := e.store.Known()
		if err != nil {
			e.logger.Warn("loading known devices failed", "error", err)
		}
		for _, k := range known {
			add(k.Serial, k.Class)
		}
	}

	e.mu.Lock()
	for _, m := range e.markers {
		if m.TrackerSerial != nil {
			add(*m.TrackerSerial, unknownClass)
		}
	}
	e.mu.Unlock()

	sort.Slice(offline, func(i, j int) bool { return offline[i].Serial < offline[j].Serial })
	return append(out, offline...)
}

// UpdateOverlays takes the full marker list after any configuration change
// and reconciles the overlays against it.
func (e *Engine) UpdateOverlays(markers []model.Marker) error {
	snapshot := make([]model.Marker, len(markers))
	copy(snapshot, markers)

	e.mu.Lock()
	e.markers = snapshot
	e.mu.Unlock()

	e.addresses.Rebuild(snapshot)

	if err := e.overlays.Reconcile(snapshot); err != nil {
		e.logger.Warn("overlay update failed", "error", err)
		return err
	}
	return nil
}

// SetVisibility shows or hides the overlays of one marker.
func (e *Engine) SetVisibility(markerID int, visible bool) error {
	if err := e.overlays.SetVisibility(markerID, visible); err != nil {
		e.logger.Warn("visibility change failed", "marker", markerID, "error", err)
		return err
	}
	return nil
}

// HandleRemoteToggle applies a boolean toggle to every gated marker
// listening on address.
func (e *Engine) HandleRemoteToggle(address string, value bool) error {
	ids, ok := e.addresses.Get(address)
	if !ok {
		return nil
	}

	var errs []error
	for _, id := range ids {
		e.logger.Debug("remote toggle", "address", address, "marker", id, "visible", value)
		errs = append(errs, e.SetVisibility(id, value))
	}
	return errors.Join(errs...)
}

// RelativeTransform returns the pose of serialB relative to serialA.
func (e *Engine) RelativeTransform(serialA, serialB string) (mgl64.Mat4, error) {
	return e.overlays.RelativeTransform(serialA, serialB)
}

// SetSerialLabelsShown toggles the serial number labels above every device.
func (e *Engine) SetSerialLabelsShown(shown bool) error {
	e.mu.Lock()
	e.showSerials = shown
	e.mu.Unlock()

	if err := e.overlays.SyncLabels(shown, e.registry.List()); err != nil {
		e.logger.Warn("updating serial labels failed", "error", err)
		return err
	}
	return nil
}

// Start spawns the proximity loop if it is not running.
func (e *Engine) Start(ctx context.Context) {
	e.scheduler.Start(ctx)
}

// Stop halts the proximity loop and waits for it to exit.
func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// Status reports the current engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		ShowSerials: e.showSerials,
		Markers:     len(e.markers),
	}
	e.mu.Unlock()

	st.Running = e.scheduler.Running()
	st.Devices = e.registry.Len()

	for _, p := range e.overlays.Pairs() {
		st.Pairs = append(st.Pairs, PairStatus{
			MarkerID: p.MarkerID,
			Name:     p.Name,
			Serial:   p.Serial,
			Visible:  p.Visible,
			Fading:   p.Proximity != nil,
		})
	}
	return st
}

// Close stops the loop and destroys every overlay.
func (e *Engine) Close() error {
	e.Stop()
	return e.overlays.Close()
}
