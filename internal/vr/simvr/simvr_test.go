package simvr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jangxx/UniversalTrackerMarkers/internal/vr"
)

func TestStringProperty_TwoPhase(t *testing.T) {
	rt := New()
	idx := rt.AddDevice(Device{Class: vr.ClassGenericTracker, Serial: "LHR-0123456789"})

	size, code := rt.StringProperty(idx, vr.PropSerialNumber, make([]byte, 4))
	assert.Equal(t, vr.PropErrorBufferTooSmall, code)
	assert.Equal(t, uint32(len("LHR-0123456789")+1), size)

	buf := make([]byte, size)
	_, code = rt.StringProperty(idx, vr.PropSerialNumber, buf)
	require.Equal(t, vr.PropSuccess, code)
	assert.Equal(t, "LHR-0123456789", string(buf[:size-1]))
}

func TestOverlayLifecycle(t *testing.T) {
	rt := New()

	h, code := rt.CreateOverlay("key", "name")
	require.Equal(t, vr.OverlayErrorNone, code)
	assert.NotEqual(t, vr.InvalidOverlayHandle, h)

	_, code = rt.CreateOverlay("key", "again")
	assert.Equal(t, vr.OverlayErrorKeyInUse, code)

	assert.Equal(t, vr.OverlayErrorNone, rt.ShowOverlay(h))
	assert.Equal(t, vr.OverlayErrorNone, rt.SetOverlayAlpha(h, 0.5))

	state, ok := rt.OverlayByKey("key")
	require.True(t, ok)
	assert.True(t, state.Visible)
	assert.Equal(t, float32(0.5), state.Alpha)

	assert.Equal(t, vr.OverlayErrorNone, rt.DestroyOverlay(h))
	assert.Equal(t, 0, rt.OverlayCount())
	assert.Equal(t, vr.OverlayErrorUnknownOverlay, rt.ShowOverlay(h))
}

func TestFailOverlay(t *testing.T) {
	rt := New()
	h, _ := rt.CreateOverlay("key", "name")

	rt.FailOverlay("SetOverlayAlpha", vr.OverlayErrorRequestFailed)
	assert.Equal(t, vr.OverlayErrorRequestFailed, rt.SetOverlayAlpha(h, 0.1))

	rt.FailOverlay("SetOverlayAlpha", vr.OverlayErrorNone)
	assert.Equal(t, vr.OverlayErrorNone, rt.SetOverlayAlpha(h, 0.1))
	assert.Equal(t, 2, rt.CallCount("SetOverlayAlpha"))
}

func TestRolesAndPoses(t *testing.T) {
	rt := New()
	rt.AddDevice(Device{Class: vr.ClassHMD, Serial: "HMD", Pose: PoseAt(0, 1.7, 0)})
	left := rt.AddDevice(Device{Class: vr.ClassController, Serial: "L", Role: vr.RoleLeftHand})

	assert.Equal(t, left, rt.ControllerIndexForRole(vr.RoleLeftHand))
	assert.Equal(t, vr.InvalidDeviceIndex, rt.ControllerIndexForRole(vr.RoleRightHand))

	poses := make([]vr.DevicePose, vr.MaxTrackedDeviceCount)
	rt.DevicePoses(vr.OriginRawAndUncalibrated, poses)
	assert.True(t, poses[0].PoseIsValid)
	assert.Equal(t, float32(1.7), poses[0].DeviceToAbsolute[1][3])
	assert.False(t, poses[5].PoseIsValid)
	assert.Equal(t, 1, rt.PoseQueries())
}

func TestTextures(t *testing.T) {
	tex := NewTextures()
	a, err := tex.SerialTexture("A")
	require.NoError(t, err)
	_, err = tex.SerialTexture("B")
	require.NoError(t, err)
	assert.Equal(t, 2, tex.Live())

	tex.ReleaseTexture(a)
	tex.ReleaseTexture(a)
	assert.Equal(t, 1, tex.Live())
}
