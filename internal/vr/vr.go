// Package vr describes the tracking and overlay runtime the engine talks to.
// The runtime itself (SteamVR or a simulator) lives outside this module; the
// interfaces here mirror the small subset of its API the engine consumes.
package vr

// MaxTrackedDeviceCount is the size of the runtime's device table.
const MaxTrackedDeviceCount = 64

// HMDDeviceIndex is the index the runtime always assigns to the headset.
const HMDDeviceIndex uint32 = 0

// InvalidDeviceIndex is returned by role lookups when no device holds the role.
const InvalidDeviceIndex uint32 = 0xFFFFFFFF

// OverlayHandle identifies an overlay surface inside the runtime.
type OverlayHandle uint64

// InvalidOverlayHandle is never handed out by the runtime.
const InvalidOverlayHandle OverlayHandle = 0

// DeviceClass is the runtime's classification of a tracked device.
type DeviceClass int

const (
	ClassInvalid DeviceClass = iota
	ClassHMD
	ClassController
	ClassGenericTracker
	ClassTrackingReference
	ClassDisplayRedirect
)

func (c DeviceClass) String() string {
	switch c {
	case ClassInvalid:
		return "Invalid"
	case ClassHMD:
		return "HMD"
	case ClassController:
		return "Controller"
	case ClassGenericTracker:
		return "GenericTracker"
	case ClassTrackingReference:
		return "TrackingReference"
	case ClassDisplayRedirect:
		return "DisplayRedirect"
	default:
		return "Unknown"
	}
}

// DeviceProperty selects a string property of a tracked device.
type DeviceProperty int

const (
	PropSerialNumber DeviceProperty = 1002
	PropModelNumber  DeviceProperty = 1001
)

// ControllerRole is the runtime-assigned role of a controller.
type ControllerRole int

const (
	RoleInvalid ControllerRole = iota
	RoleLeftHand
	RoleRightHand
)

// TrackingOrigin selects the coordinate frame for absolute poses.
type TrackingOrigin int

const (
	OriginSeated TrackingOrigin = iota
	OriginStanding
	OriginRawAndUncalibrated
)

// Matrix34 is a row-major 3x4 affine transform as used by the runtime.
type Matrix34 [3][4]float32

// DevicePose is a single entry of the runtime's pose table.
type DevicePose struct {
	DeviceToAbsolute  Matrix34
	PoseIsValid       bool
	DeviceIsConnected bool
}

// Texture is an opaque GPU texture reference usable as overlay content.
type Texture struct {
	Handle uintptr
}

// System is the tracking half of the runtime.
type System interface {
	DeviceClass(index uint32) DeviceClass
	// StringProperty copies the property into buf and returns the full size
	// the property needs, including the terminating NUL.
	StringProperty(index uint32, prop DeviceProperty, buf []byte) (uint32, PropertyError)
	// DevicePoses fills poses with the current absolute pose of every device.
	DevicePoses(origin TrackingOrigin, poses []DevicePose)
	ControllerIndexForRole(role ControllerRole) uint32
}

// Overlay is the compositor overlay half of the runtime.
type Overlay interface {
	CreateOverlay(key, name string) (OverlayHandle, OverlayError)
	DestroyOverlay(h OverlayHandle) OverlayError
	ShowOverlay(h OverlayHandle) OverlayError
	HideOverlay(h OverlayHandle) OverlayError
	SetOverlayFromFile(h OverlayHandle, path string) OverlayError
	SetOverlayTexture(h OverlayHandle, tex Texture) OverlayError
	SetOverlayWidthInMeters(h OverlayHandle, width float32) OverlayError
	SetOverlayAlpha(h OverlayHandle, alpha float32) OverlayError
	SetOverlayTransformTrackedDeviceRelative(h OverlayHandle, device uint32, m Matrix34) OverlayError
	SetOverlayTransformAbsolute(h OverlayHandle, origin TrackingOrigin, m Matrix34) OverlayError
}

// Runtime combines both halves.
type Runtime interface {
	System
	Overlay
}
