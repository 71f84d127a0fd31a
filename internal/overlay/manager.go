// Package overlay owns the front/back overlay pairs drawn for each marker
// and the serial number labels drawn above each tracked device.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/metric"

	"github.com/jangxx/UniversalTrackerMarkers/internal/devices"
	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
	"github.com/jangxx/UniversalTrackerMarkers/internal/posemath"
	"github.com/jangxx/UniversalTrackerMarkers/internal/proximity"
	"github.com/jangxx/UniversalTrackerMarkers/internal/vr"
)

const keyPrefix = "com.jangxx.markers."

// ErrDuplicateMarker is returned by Reconcile when two markers share an id.
var ErrDuplicateMarker = errors.New("duplicate marker id")

// backSide turns the front quad around and mirrors it on X so the texture
// reads correctly from behind.
var backSide = posemath.ComposeTransform(mgl64.Vec3{0, math.Pi, 0}, mgl64.Vec3{}, mgl64.Vec3{-1, 1, 1})

// ProximitySettings are the fade parameters the scheduler reads from a pair.
type ProximitySettings struct {
	Reference  model.ProximityDevice
	FadeNear   float64
	FadeFar    float64
	MaxOpacity float64
}

// Pair is the runtime state of one marker.
type Pair struct {
	MarkerID    int
	Name        string
	Serial      string
	Front       vr.OverlayHandle
	Back        vr.OverlayHandle
	TexturePath string
	DeviceIndex uint32
	Offset      mgl64.Vec3
	// Visible is the wanted visibility. The runtime may lag behind it after
	// a failed Show or Hide until the next reconcile.
	Visible     bool
	Proximity   *ProximitySettings

	shown bool
	// dying is set when a destroy failed halfway; the next pass finishes it.
	dying bool
}

func (p *Pair) clone() Pair {
	c := *p
	if p.Proximity != nil {
		prox := *p.Proximity
		c.Proximity = &prox
	}
	return c
}

// DeviceLookup resolves serial numbers to runtime devices.
type DeviceLookup interface {
	Lookup(serial string) (devices.Device, bool)
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Manager. Fs defaults to the OS filesystem.
type Options struct {
	Runtime vr.Runtime
	Devices DeviceLookup
	Fs      afero.Fs
	Labels  LabelTextures
	Logger  Logger
}

// Manager reconciles overlay pairs against the marker list. The pair lock
// and the label lock are never held together, and neither is held while
// the device registry is queried.
type Manager struct {
	rt       vr.Runtime
	devices  DeviceLookup
	fs       afero.Fs
	textures LabelTextures
	logger   Logger

	mu    sync.Mutex
	pairs map[int]*Pair

	labelMu sync.Mutex
	labels  map[string]*label

	created   metric.Int64Counter
	destroyed metric.Int64Counter
	active    metric.Int64ObservableGauge
}

// NewManager creates a manager without any overlays.
// Uses the global OTel meter for metrics (no-op if not configured).
func NewManager(opts Options) (*Manager, error) {
	if opts.Runtime == nil || opts.Devices == nil {
		return nil, errors.New("overlay: runtime and device lookup are required")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	m := &Manager{
		rt:       opts.Runtime,
		devices:  opts.Devices,
		fs:       opts.Fs,
		textures: opts.Labels,
		logger:   opts.Logger,
		pairs:    make(map[int]*Pair),
		labels:   make(map[string]*label),
	}

	mt := meter()

	var err error
	m.created, err = mt.Int64Counter(
		"overlay.pairs.created",
		metric.WithDescription("Total overlay pairs created"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating created counter: %w", err)
	}

	m.destroyed, err = mt.Int64Counter(
		"overlay.pairs.destroyed",
		metric.WithDescription("Total overlay pairs destroyed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating destroyed counter: %w", err)
	}

	m.active, err = mt.Int64ObservableGauge(
		"overlay.pairs.active",
		metric.WithDescription("Current number of overlay pairs"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating active gauge: %w", err)
	}

	_, err = mt.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			o.ObserveInt64(m.active, int64(len(m.pairs)))
			return nil
		},
		m.active,
	)
	if err != nil {
		return nil, fmt.Errorf("registering active callback: %w", err)
	}

	return m, nil
}

// desired is a marker with everything resolved that needs I/O or the
// registry lock.
type desired struct {
	marker  model.Marker
	texture string
	device  devices.Device
	exists  bool
}

func (m *Manager) resolve(markers []model.Marker) []desired {
	out := make([]desired, 0, len(markers))
	for _, marker := range markers {
		d := desired{marker: marker}
		if marker.Enabled && marker.IsValid() {
			d.texture, d.exists = m.textureFile(*marker.TexturePath)
			if d.exists {
				d.device, d.exists = m.devices.Lookup(*marker.TrackerSerial)
			}
		}
		out = append(out, d)
	}
	return out
}

func (m *Manager) textureFile(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	info, err := m.fs.Stat(abs)
	if err != nil || info.IsDir() {
		return "", false
	}
	return abs, true
}

// Reconcile makes the set of overlay pairs match markers and refreshes the
// transform, width, texture and opacity of every pair. Markers that are not
// in the list lose their pair. The pass stops at the first runtime error;
// markers handled before it keep their new state.
func (m *Manager) Reconcile(markers []model.Marker) error {
	ids := make(map[int]struct{}, len(markers))
	for _, marker := range markers {
		if _, dup := ids[marker.ID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateMarker, marker.ID)
		}
		ids[marker.ID] = struct{}{}
	}

	wanted := m.resolve(markers)

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int]struct{}, len(wanted))
	for _, d := range wanted {
		seen[d.marker.ID] = struct{}{}

		pair, ok := m.pairs[d.marker.ID]
		if ok && pair.dying {
			if err := m.destroyPair(pair); err != nil {
				return err
			}
			pair, ok = nil, false
		}

		switch {
		case ok && !d.exists:
			if err := m.destroyPair(pair); err != nil {
				return err
			}
			continue
		case !ok && d.exists:
			var err error
			if pair, err = m.createPair(d); err != nil {
				return err
			}
		case !ok:
			continue
		}

		if err := m.refreshPair(pair, d); err != nil {
			return fmt.Errorf("marker %d: %w", d.marker.ID, err)
		}
	}

	for _, id := range m.sortedIDs() {
		if _, ok := seen[id]; ok {
			continue
		}
		if err := m.destroyPair(m.pairs[id]); err != nil {
			return err
		}
	}

	return nil
}

// createPair creates both overlays and records the pair as soon as both
// handles exist. Texture and visibility failures leave the pair recorded
// for refreshPair to finish. Callers hold m.mu.
func (m *Manager) createPair(d desired) (*Pair, error) {
	id := d.marker.ID

	front, code := m.rt.CreateOverlay(
		fmt.Sprintf("%sid_front_%d", keyPrefix, id),
		fmt.Sprintf("Universal Tracker Marker %d Front", id),
	)
	if err := vr.Check("CreateOverlay", code); err != nil {
		return nil, fmt.Errorf("marker %d: %w", id, err)
	}

	back, code := m.rt.CreateOverlay(
		fmt.Sprintf("%sid_back_%d", keyPrefix, id),
		fmt.Sprintf("Universal Tracker Marker %d Back", id),
	)
	if err := vr.Check("CreateOverlay", code); err != nil {
		if !gone(m.rt.DestroyOverlay(front)) {
			// keep the front key tracked so the next pass releases it
			m.pairs[id] = &Pair{MarkerID: id, Front: front, Back: vr.InvalidOverlayHandle, dying: true}
		}
		return nil, fmt.Errorf("marker %d: %w", id, err)
	}

	pair := &Pair{
		MarkerID:    id,
		Name:        d.marker.DisplayName(),
		Serial:      d.device.Serial,
		Front:       front,
		Back:        back,
		DeviceIndex: d.device.Index,
		Visible:     !d.marker.StartsHidden(),
	}
	m.pairs[id] = pair
	m.created.Add(context.Background(), 1)

	if err := m.both(pair, "SetOverlayFromFile", func(h vr.OverlayHandle) vr.OverlayError {
		return m.rt.SetOverlayFromFile(h, d.texture)
	}); err != nil {
		return nil, fmt.Errorf("marker %d: %w", id, err)
	}
	pair.TexturePath = d.texture

	if pair.Visible {
		if err := m.applyVisibility(pair); err != nil {
			return nil, fmt.Errorf("marker %d: %w", id, err)
		}
	}

	m.debug("overlay pair created", "marker", id, "name", pair.Name, "serial", pair.Serial, "visible", pair.Visible)
	return pair, nil
}

// destroyPair destroys both overlays. An overlay the runtime no longer
// knows counts as destroyed. If either destroy fails the pair stays in the
// map marked dying so the next pass retries it. Callers hold m.mu.
func (m *Manager) destroyPair(pair *Pair) error {
	var errs []error
	for _, h := range []vr.OverlayHandle{pair.Front, pair.Back} {
		if code := m.rt.DestroyOverlay(h); !gone(code) {
			errs = append(errs, vr.Check("DestroyOverlay", code))
		}
	}
	if err := errors.Join(errs...); err != nil {
		pair.dying = true
		pair.shown = false
		return fmt.Errorf("marker %d: %w", pair.MarkerID, err)
	}

	delete(m.pairs, pair.MarkerID)
	m.destroyed.Add(context.Background(), 1)

	m.debug("overlay pair destroyed", "marker", pair.MarkerID)
	return nil
}

func gone(code vr.OverlayError) bool {
	return code == vr.OverlayErrorNone || code == vr.OverlayErrorUnknownOverlay
}

// refreshPair pushes the pose-dependent state of a pair. Callers hold m.mu.
func (m *Manager) refreshPair(pair *Pair, d desired) error {
	marker := d.marker

	front := posemath.Translation(marker.Offset).Mul4(posemath.Rotation(posemath.Deg2Rad(marker.Rotation)))
	back := front.Mul4(backSide)

	pair.Name = marker.DisplayName()
	pair.Serial = d.device.Serial
	pair.DeviceIndex = d.device.Index
	pair.Offset = marker.Offset

	if err := vr.Check("SetOverlayTransformTrackedDeviceRelative",
		m.rt.SetOverlayTransformTrackedDeviceRelative(pair.Front, pair.DeviceIndex, posemath.ToMatrix34(front))); err != nil {
		return err
	}
	if err := vr.Check("SetOverlayTransformTrackedDeviceRelative",
		m.rt.SetOverlayTransformTrackedDeviceRelative(pair.Back, pair.DeviceIndex, posemath.ToMatrix34(back))); err != nil {
		return err
	}

	width := float32(marker.Width)
	if err := m.both(pair, "SetOverlayWidthInMeters", func(h vr.OverlayHandle) vr.OverlayError {
		return m.rt.SetOverlayWidthInMeters(h, width)
	}); err != nil {
		return err
	}

	if d.texture != pair.TexturePath {
		if err := m.both(pair, "SetOverlayFromFile", func(h vr.OverlayHandle) vr.OverlayError {
			return m.rt.SetOverlayFromFile(h, d.texture)
		}); err != nil {
			return err
		}
		pair.TexturePath = d.texture
	}

	if marker.Proximity.Enabled {
		pair.Proximity = &ProximitySettings{
			Reference:  marker.Proximity.Device,
			FadeNear:   marker.Proximity.FadeNear,
			FadeFar:    marker.Proximity.FadeFar,
			MaxOpacity: marker.Opacity,
		}
	} else {
		pair.Proximity = nil
		if err := m.setAlpha(pair, float32(marker.Opacity)); err != nil {
			return err
		}
	}

	if pair.shown != pair.Visible {
		return m.applyVisibility(pair)
	}
	return nil
}

// applyVisibility pushes pair.Visible to both overlays. Callers hold m.mu.
func (m *Manager) applyVisibility(pair *Pair) error {
	op, fn := "HideOverlay", m.rt.HideOverlay
	if pair.Visible {
		op, fn = "ShowOverlay", m.rt.ShowOverlay
	}
	if err := m.both(pair, op, fn); err != nil {
		return err
	}
	pair.shown = pair.Visible
	return nil
}

func (m *Manager) setAlpha(pair *Pair, alpha float32) error {
	return m.both(pair, "SetOverlayAlpha", func(h vr.OverlayHandle) vr.OverlayError {
		return m.rt.SetOverlayAlpha(h, alpha)
	})
}

// both applies op to the front and then the back overlay.
func (m *Manager) both(pair *Pair, op string, fn func(vr.OverlayHandle) vr.OverlayError) error {
	if err := vr.Check(op, fn(pair.Front)); err != nil {
		return err
	}
	return vr.Check(op, fn(pair.Back))
}

// SetVisibility shows or hides the pair of a marker. Unknown ids are ignored.
func (m *Manager) SetVisibility(markerID int, visible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pair, ok := m.pairs[markerID]
	if !ok || pair.dying {
		return nil
	}

	pair.Visible = visible
	if err := m.applyVisibility(pair); err != nil {
		return fmt.Errorf("marker %d: %w", markerID, err)
	}
	return nil
}

// ApplyFade writes the proximity opacity of every visible pair with fading
// enabled, using one pose snapshot for all of them.
func (m *Manager) ApplyFade(snap proximity.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.sortedIDs() {
		pair := m.pairs[id]
		if pair.Proximity == nil || !pair.shown {
			continue
		}

		p := pair.Proximity
		distance, ok := snap.Distance(p.Reference, pair.DeviceIndex, pair.Offset)
		alpha := proximity.Opacity(distance, ok, p.FadeNear, p.FadeFar, p.MaxOpacity)

		if err := m.setAlpha(pair, float32(alpha)); err != nil {
			return fmt.Errorf("marker %d: %w", id, err)
		}
	}

	return nil
}

// RelativeTransform returns the pose of serialB in the local frame of
// serialA, sampled once from the runtime.
func (m *Manager) RelativeTransform(serialA, serialB string) (mgl64.Mat4, error) {
	a, ok := m.devices.Lookup(serialA)
	if !ok {
		return mgl64.Mat4{}, fmt.Errorf("%w: %s", vr.ErrDeviceNotFound, serialA)
	}
	b, ok := m.devices.Lookup(serialB)
	if !ok {
		return mgl64.Mat4{}, fmt.Errorf("%w: %s", vr.ErrDeviceNotFound, serialB)
	}

	snap := proximity.Capture(m.rt)
	poseA, _ := snap.Pose(a.Index)
	poseB, _ := snap.Pose(b.Index)

	return posemath.RelativeTransform(
		posemath.FromMatrix34(poseA.DeviceToAbsolute),
		posemath.FromMatrix34(poseB.DeviceToAbsolute),
	)
}

// Pairs returns a copy of all pairs ordered by marker id.
func (m *Manager) Pairs() []Pair {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Pair, 0, len(m.pairs))
	for _, id := range m.sortedIDs() {
		if m.pairs[id].dying {
			continue
		}
		out = append(out, m.pairs[id].clone())
	}
	return out
}

// Pair returns a copy of the pair of markerID.
func (m *Manager) Pair(markerID int) (Pair, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pair, ok := m.pairs[markerID]
	if !ok || pair.dying {
		return Pair{}, false
	}
	return pair.clone(), true
}

// Close destroys every pair and label. All failures are reported.
func (m *Manager) Close() error {
	var errs []error

	m.mu.Lock()
	for _, id := range m.sortedIDs() {
		errs = append(errs, m.destroyPair(m.pairs[id]))
	}
	m.mu.Unlock()

	errs = append(errs, m.SyncLabels(false, nil))
	return errors.Join(errs...)
}

// sortedIDs returns the marker ids with a pair. Callers hold m.mu.
func (m *Manager) sortedIDs() []int {
	ids := make([]int, 0, len(m.pairs))
	for id := range m.pairs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (m *Manager) debug(msg string, kv ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, kv...)
	}
}
