package model

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// ProximityDevice selects the reference device for proximity fading.
type ProximityDevice int

const (
	ProximityHMD ProximityDevice = iota
	ProximityLeftHand
	ProximityRightHand
	ProximityAnyHand
)

func (d ProximityDevice) String() string {
	switch d {
	case ProximityHMD:
		return "HMD"
	case ProximityLeftHand:
		return "LeftHand"
	case ProximityRightHand:
		return "RightHand"
	case ProximityAnyHand:
		return "AnyHand"
	default:
		return fmt.Sprintf("ProximityDevice(%d)", int(d))
	}
}

// Proximity configures opacity fading by distance to a reference device.
type Proximity struct {
	Enabled  bool
	Device   ProximityDevice
	FadeNear float64
	FadeFar  float64
}

// Gate configures remote show/hide toggling of a marker.
type Gate struct {
	Enabled     bool
	Address     string
	StartHidden bool
}

// Marker is the desired state of one tracker marker. The engine only reads it.
type Marker struct {
	ID            int
	Name          string
	Enabled       bool
	TrackerSerial *string
	TexturePath   *string

	// Opacity is the maximum alpha in [0,1].
	Opacity float64
	// Width of the overlay quad in meters.
	Width float64

	Offset mgl64.Vec3
	// Rotation is in degrees.
	Rotation mgl64.Vec3

	Proximity Proximity
	Gate      Gate
}

// NewMarker returns a marker with the application defaults.
func NewMarker(id int) Marker {
	return Marker{
		ID:      id,
		Enabled: true,
		Opacity: 1.0,
		Width:   1.0,
		Proximity: Proximity{
			Device:   ProximityHMD,
			FadeNear: 1.0,
			FadeFar:  2.0,
		},
	}
}

// IsValid reports whether both a tracker and a texture are configured.
func (m Marker) IsValid() bool {
	return m.TrackerSerial != nil && m.TexturePath != nil
}

// StartsHidden reports whether a freshly created overlay should stay hidden
// until a remote toggle shows it.
func (m Marker) StartsHidden() bool {
	return m.Gate.Enabled && m.Gate.StartHidden
}

// ListensOn reports whether a remote toggle on address applies to this marker.
func (m Marker) ListensOn(address string) bool {
	return m.Gate.Enabled && m.Gate.Address != "" && m.Gate.Address == address
}

// DisplayName is the human readable label used in overlay names and logs.
func (m Marker) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("Marker %d", m.ID)
}
