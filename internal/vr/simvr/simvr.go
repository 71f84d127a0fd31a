// Package simvr is an in-memory tracking and overlay runtime. It keeps the
// state a real compositor would keep and records every overlay call, which
// makes it usable both as a headless runtime and as a test double.
package simvr

import (
	"sync"

	"github.com/jangxx/UniversalTrackerMarkers/internal/vr"
)

// Device is a simulated tracked device.
type Device struct {
	Class  vr.DeviceClass
	Serial string
	Role   vr.ControllerRole
	Pose   vr.DevicePose
}

// OverlayState is the compositor-side state of one overlay.
type OverlayState struct {
	Key         string
	Name        string
	Visible     bool
	TexturePath string
	Texture     vr.Texture
	Width       float32
	Alpha       float32
	DeviceIndex uint32
	Relative    bool
	Transform   vr.Matrix34
	Origin      vr.TrackingOrigin
}

// Call is one recorded overlay operation.
type Call struct {
	Op     string
	Handle vr.OverlayHandle
}

// Runtime implements vr.Runtime.
type Runtime struct {
	mu sync.Mutex

	devices    []Device
	overlays   map[vr.OverlayHandle]*OverlayState
	keys       map[string]vr.OverlayHandle
	nextHandle vr.OverlayHandle

	calls       []Call
	poseQueries int

	overlayFailures  map[string]vr.OverlayError
	propertyFailures map[uint32]vr.PropertyError
}

// New creates an empty runtime with no devices.
func New() *Runtime {
	return &Runtime{
		overlays:         make(map[vr.OverlayHandle]*OverlayState),
		keys:             make(map[string]vr.OverlayHandle),
		nextHandle:       1,
		overlayFailures:  make(map[string]vr.OverlayError),
		propertyFailures: make(map[uint32]vr.PropertyError),
	}
}

// PoseAt returns a valid, connected pose with identity rotation at (x, y, z).
func PoseAt(x, y, z float32) vr.DevicePose {
	return vr.DevicePose{
		DeviceToAbsolute: vr.Matrix34{
			{1, 0, 0, x},
			{0, 1, 0, y},
			{0, 0, 1, z},
		},
		PoseIsValid:       true,
		DeviceIsConnected: true,
	}
}

// AddDevice appends a device to the contiguous device table and returns its index.
func (r *Runtime) AddDevice(d Device) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, d)
	return uint32(len(r.devices) - 1)
}

// RemoveDevice drops a device; later devices shift down one index.
func (r *Runtime) RemoveDevice(serial string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.devices {
		if d.Serial == serial {
			r.devices = append(r.devices[:i], r.devices[i+1:]...)
			return true
		}
	}
	return false
}

// SetPose replaces the pose of the device at index.
func (r *Runtime) SetPose(index uint32, pose vr.DevicePose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(index) < len(r.devices) {
		r.devices[index].Pose = pose
	}
}

// SetRole assigns a controller role to the device at index, clearing it elsewhere.
func (r *Runtime) SetRole(role vr.ControllerRole, index uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.devices {
		if r.devices[i].Role == role {
			r.devices[i].Role = vr.RoleInvalid
		}
	}
	if int(index) < len(r.devices) {
		r.devices[index].Role = role
	}
}

// FailOverlay makes every following call of op return code until cleared
// with OverlayErrorNone.
func (r *Runtime) FailOverlay(op string, code vr.OverlayError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code == vr.OverlayErrorNone {
		delete(r.overlayFailures, op)
		return
	}
	r.overlayFailures[op] = code
}

// FailProperty makes property reads of the device at index fail with code.
func (r *Runtime) FailProperty(index uint32, code vr.PropertyError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code == vr.PropSuccess {
		delete(r.propertyFailures, index)
		return
	}
	r.propertyFailures[index] = code
}

// Calls returns a copy of the recorded overlay calls.
func (r *Runtime) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount counts recorded calls of op.
func (r *Runtime) CallCount(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log and the pose query counter.
func (r *Runtime) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.poseQueries = 0
}

// PoseQueries returns how often DevicePoses was called.
func (r *Runtime) PoseQueries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poseQueries
}

// OverlayByKey returns a copy of the overlay registered under key.
func (r *Runtime) OverlayByKey(key string) (OverlayState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.keys[key]
	if !ok {
		return OverlayState{}, false
	}
	return *r.overlays[h], true
}

// OverlayCount returns the number of live overlays.
func (r *Runtime) OverlayCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.overlays)
}

func (r *Runtime) DeviceClass(index uint32) vr.DeviceClass {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(index) >= len(r.devices) {
		return vr.ClassInvalid
	}
	return r.devices[index].Class
}

func (r *Runtime) StringProperty(index uint32, prop vr.DeviceProperty, buf []byte) (uint32, vr.PropertyError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code, ok := r.propertyFailures[index]; ok {
		return 0, code
	}
	if int(index) >= len(r.devices) {
		return 0, vr.PropErrorInvalidDevice
	}

	var value string
	switch prop {
	case vr.PropSerialNumber:
		value = r.devices[index].Serial
	case vr.PropModelNumber:
		value = "Simulated " + r.devices[index].Class.String()
	default:
		return 0, vr.PropErrorUnknownProperty
	}

	size := uint32(len(value) + 1)
	if int(size) > len(buf) {
		return size, vr.PropErrorBufferTooSmall
	}
	copy(buf, value)
	buf[len(value)] = 0
	return size, vr.PropSuccess
}

func (r *Runtime) DevicePoses(origin vr.TrackingOrigin, poses []vr.DevicePose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poseQueries++
	for i := range poses {
		if i < len(r.devices) {
			poses[i] = r.devices[i].Pose
		} else {
			poses[i] = vr.DevicePose{}
		}
	}
}

func (r *Runtime) ControllerIndexForRole(role vr.ControllerRole) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role == vr.RoleInvalid {
		return vr.InvalidDeviceIndex
	}
	for i, d := range r.devices {
		if d.Role == role {
			return uint32(i)
		}
	}
	return vr.InvalidDeviceIndex
}

// record logs the call and returns the injected failure for op, if any.
// Callers hold r.mu.
func (r *Runtime) record(op string, h vr.OverlayHandle) vr.OverlayError {
	r.calls = append(r.calls, Call{Op: op, Handle: h})
	if code, ok := r.overlayFailures[op]; ok {
		return code
	}
	return vr.OverlayErrorNone
}

// lookup returns the overlay for h. Callers hold r.mu.
func (r *Runtime) lookup(h vr.OverlayHandle) (*OverlayState, vr.OverlayError) {
	o, ok := r.overlays[h]
	if !ok {
		return nil, vr.OverlayErrorUnknownOverlay
	}
	return o, vr.OverlayErrorNone
}

func (r *Runtime) CreateOverlay(key, name string) (vr.OverlayHandle, vr.OverlayError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code := r.record("CreateOverlay", vr.InvalidOverlayHandle); code != vr.OverlayErrorNone {
		return vr.InvalidOverlayHandle, code
	}
	if _, ok := r.keys[key]; ok {
		return vr.InvalidOverlayHandle, vr.OverlayErrorKeyInUse
	}
	h := r.nextHandle
	r.nextHandle++
	r.overlays[h] = &OverlayState{Key: key, Name: name, Alpha: 1, Width: 1}
	r.keys[key] = h
	return h, vr.OverlayErrorNone
}

func (r *Runtime) DestroyOverlay(h vr.OverlayHandle) vr.OverlayError {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code := r.record("DestroyOverlay", h); code != vr.OverlayErrorNone {
		return code
	}
	o, code := r.lookup(h)
	if code != vr.OverlayErrorNone {
		return code
	}
	delete(r.keys, o.Key)
	delete(r.overlays, h)
	return vr.OverlayErrorNone
}

func (r *Runtime) ShowOverlay(h vr.OverlayHandle) vr.OverlayError {
	return r.mutate("ShowOverlay", h, func(o *OverlayState) { o.Visible = true })
}

func (r *Runtime) HideOverlay(h vr.OverlayHandle) vr.OverlayError {
	return r.mutate("HideOverlay", h, func(o *OverlayState) { o.Visible = false })
}

func (r *Runtime) SetOverlayFromFile(h vr.OverlayHandle, path string) vr.OverlayError {
	return r.mutate("SetOverlayFromFile", h, func(o *OverlayState) { o.TexturePath = path })
}

func (r *Runtime) SetOverlayTexture(h vr.OverlayHandle, tex vr.Texture) vr.OverlayError {
	return r.mutate("SetOverlayTexture", h, func(o *OverlayState) { o.Texture = tex })
}

func (r *Runtime) SetOverlayWidthInMeters(h vr.OverlayHandle, width float32) vr.OverlayError {
	if width <= 0 {
		return vr.OverlayErrorInvalidParameter
	}
	return r.mutate("SetOverlayWidthInMeters", h, func(o *OverlayState) { o.Width = width })
}

func (r *Runtime) SetOverlayAlpha(h vr.OverlayHandle, alpha float32) vr.OverlayError {
	return r.mutate("SetOverlayAlpha", h, func(o *OverlayState) { o.Alpha = alpha })
}

func (r *Runtime) SetOverlayTransformTrackedDeviceRelative(h vr.OverlayHandle, device uint32, m vr.Matrix34) vr.OverlayError {
	return r.mutate("SetOverlayTransformTrackedDeviceRelative", h, func(o *OverlayState) {
		o.Relative = true
		o.DeviceIndex = device
		o.Transform = m
	})
}

func (r *Runtime) SetOverlayTransformAbsolute(h vr.OverlayHandle, origin vr.TrackingOrigin, m vr.Matrix34) vr.OverlayError {
	return r.mutate("SetOverlayTransformAbsolute", h, func(o *OverlayState) {
		o.Relative = false
		o.Origin = origin
		o.Transform = m
	})
}

func (r *Runtime) mutate(op string, h vr.OverlayHandle, apply func(o *OverlayState)) vr.OverlayError {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code := r.record(op, h); code != vr.OverlayErrorNone {
		return code
	}
	o, code := r.lookup(h)
	if code != vr.OverlayErrorNone {
		return code
	}
	apply(o)
	return vr.OverlayErrorNone
}

// Textures hands out fake GPU textures for serial labels.
type Textures struct {
	mu       sync.Mutex
	next     uintptr
	live     map[uintptr]string
	released int
}

// NewTextures creates an empty texture source.
func NewTextures() *Textures {
	return &Textures{next: 1, live: make(map[uintptr]string)}
}

// SerialTexture returns a new texture for the given serial.
func (t *Textures) SerialTexture(serial string) (vr.Texture, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tex := vr.Texture{Handle: t.next}
	t.live[t.next] = serial
	t.next++
	return tex, nil
}

// ReleaseTexture frees a texture created by SerialTexture.
func (t *Textures) ReleaseTexture(tex vr.Texture) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.live[tex.Handle]; ok {
		delete(t.live, tex.Handle)
		t.released++
	}
}

// Live returns the number of unreleased textures.
func (t *Textures) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}
