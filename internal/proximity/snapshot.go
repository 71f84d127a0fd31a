// Package proximity fades marker overlays by the distance between the marker
// and a reference body part, on a fixed-rate background loop.
package proximity

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
	"github.com/jangxx/UniversalTrackerMarkers/internal/posemath"
	"github.com/jangxx/UniversalTrackerMarkers/internal/vr"
)

// Snapshot is one point-in-time sample of every device pose plus the
// devices currently holding the hand roles.
type Snapshot struct {
	Poses     []vr.DevicePose
	HMD       uint32
	LeftHand  uint32
	RightHand uint32
}

// Capture samples the runtime once. Hand roles are resolved on every call
// because role assignment can change while running.
func Capture(system vr.System) Snapshot {
	poses := make([]vr.DevicePose, vr.MaxTrackedDeviceCount)
	system.DevicePoses(vr.OriginRawAndUncalibrated, poses)

	return Snapshot{
		Poses:     poses,
		HMD:       vr.HMDDeviceIndex,
		LeftHand:  system.ControllerIndexForRole(vr.RoleLeftHand),
		RightHand: system.ControllerIndexForRole(vr.RoleRightHand),
	}
}

// Pose returns the pose at index, false when the index is out of range or
// the pose is not currently tracked.
func (s Snapshot) Pose(index uint32) (vr.DevicePose, bool) {
	if index >= uint32(len(s.Poses)) {
		return vr.DevicePose{}, false
	}
	p := s.Poses[index]
	return p, p.PoseIsValid
}

// Position returns the world position of the device at index.
func (s Snapshot) Position(index uint32) (mgl64.Vec3, bool) {
	p, ok := s.Pose(index)
	if !ok {
		return mgl64.Vec3{}, false
	}
	return posemath.PoseTranslation(p.DeviceToAbsolute), true
}

// Distance measures from the reference device to a point given in the local
// frame of the bound device. ok is false when a required pose is invalid.
func (s Snapshot) Distance(ref model.ProximityDevice, bound uint32, offset mgl64.Vec3) (float64, bool) {
	boundPose, ok := s.Pose(bound)
	if !ok {
		return 0, false
	}
	world := posemath.FromMatrix34(boundPose.DeviceToAbsolute).Mul4x1(offset.Vec4(1)).Vec3()

	from := func(index uint32) (float64, bool) {
		pos, ok := s.Position(index)
		if !ok {
			return 0, false
		}
		return world.Sub(pos).Len(), true
	}

	switch ref {
	case model.ProximityHMD:
		return from(s.HMD)
	case model.ProximityLeftHand:
		return from(s.LeftHand)
	case model.ProximityRightHand:
		return from(s.RightHand)
	case model.ProximityAnyHand:
		left, okLeft := from(s.LeftHand)
		right, okRight := from(s.RightHand)
		switch {
		case okLeft && okRight:
			return math.Min(left, right), true
		case okLeft:
			return left, true
		default:
			return right, okRight
		}
	default:
		return 0, false
	}
}

// Opacity maps a distance to an alpha value. Without a distance the
// configured maximum applies. A fade range with far <= near becomes a step
// at near.
func Opacity(distance float64, ok bool, near, far, max float64) float64 {
	if !ok {
		return max
	}
	if far <= near {
		if distance <= near {
			return max
		}
		return 0
	}
	return clamp01(1-(distance-near)/(far-near)) * max
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
