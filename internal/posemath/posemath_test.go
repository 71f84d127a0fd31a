package posemath

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jangxx/UniversalTrackerMarkers/internal/vr"
)

const eps = 1e-9

func assertVec3(t *testing.T, expected, actual mgl64.Vec3, msgAndArgs ...any) {
	t.Helper()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, expected[i], actual[i], 1e-7, msgAndArgs...)
	}
}

func assertMat4(t *testing.T, expected, actual mgl64.Mat4, delta float64) {
	t.Helper()
	for i := range expected {
		assert.InDelta(t, expected[i], actual[i], delta, "element %d: expected %v, got %v", i, expected, actual)
	}
}

func assertMat3(t *testing.T, expected, actual mgl64.Mat3, delta float64) {
	t.Helper()
	for i := range expected {
		assert.InDelta(t, expected[i], actual[i], delta, "element %d: expected %v, got %v", i, expected, actual)
	}
}

func TestComposeTransform_Identity(t *testing.T) {
	m := ComposeTransform(mgl64.Vec3{}, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})
	assertMat4(t, mgl64.Ident4(), m, eps)
}

func TestComposeTransform_TranslationInLastColumn(t *testing.T) {
	m := ComposeTransform(mgl64.Vec3{0.3, -0.2, 1.1}, mgl64.Vec3{1, 2, 3}, mgl64.Vec3{1, 1, 1})

	assertVec3(t, mgl64.Vec3{1, 2, 3}, ExtractTranslation(m))
	assert.Equal(t, mgl64.Vec4{0, 0, 0, 1}, m.Row(3))
}

func TestComposeTransform_MatchesRzRyRx(t *testing.T) {
	rot := mgl64.Vec3{0.4, -0.7, 1.3}

	expected := mgl64.HomogRotate3DZ(rot[2]).
		Mul4(mgl64.HomogRotate3DY(rot[1])).
		Mul4(mgl64.HomogRotate3DX(rot[0]))

	assertMat4(t, expected, Rotation(rot), eps)
}

func TestComposeTransform_ScaleIsPerColumn(t *testing.T) {
	m := ComposeTransform(mgl64.Vec3{0.1, 0.2, 0.3}, mgl64.Vec3{}, mgl64.Vec3{2, 3, 4})
	assertVec3(t, mgl64.Vec3{2, 3, 4}, ExtractScale(m))
}

func TestExtractScale_Mirrored(t *testing.T) {
	m := ComposeTransform(mgl64.Vec3{0, math.Pi, 0}, mgl64.Vec3{}, mgl64.Vec3{-1, 1, 1})

	// norms cannot see the sign, the determinant can
	assertVec3(t, mgl64.Vec3{1, 1, 1}, ExtractScale(m))
	assert.InDelta(t, -1, m.Det(), eps)
}

func TestDecomposeRotation_RoundTrip(t *testing.T) {
	angles := []float64{-79, -45, -10, 0, 15, 33, 60, 79}

	for _, x := range angles {
		for _, y := range angles {
			for _, z := range angles {
				deg := mgl64.Vec3{x, y, z}
				m := Rotation(Deg2Rad(deg))

				got := Rad2Deg(DecomposeRotation(m.Mat3()))
				assertVec3(t, deg, got, "rotation %v", deg)
			}
		}
	}
}

func TestExtractRotation_IgnoresScaleAndTranslation(t *testing.T) {
	rot := mgl64.Vec3{0.25, -0.5, 0.75}
	m := ComposeTransform(rot, mgl64.Vec3{4, 5, 6}, mgl64.Vec3{0.5, 2, 3})

	assertVec3(t, rot, ExtractRotation(m))
}

func TestExtractRotation_ZeroScale(t *testing.T) {
	m := ComposeTransform(mgl64.Vec3{1, 1, 1}, mgl64.Vec3{}, mgl64.Vec3{0, 1, 1})
	assert.Equal(t, mgl64.Vec3{}, ExtractRotation(m))
}

func TestMatToQuat_AllBranches(t *testing.T) {
	tests := []struct {
		name string
		m    mgl64.Mat3
	}{
		{"trace positive", Rotation(mgl64.Vec3{0.1, 0.2, 0.3}).Mat3()},
		{"x dominant", Rotation(mgl64.Vec3{math.Pi, 0, 0}).Mat3()},
		{"y dominant", Rotation(mgl64.Vec3{0, math.Pi, 0}).Mat3()},
		{"z dominant", Rotation(mgl64.Vec3{0, 0, math.Pi}).Mat3()},
		{"near gimbal lock", Rotation(mgl64.Vec3{0.3, math.Pi/2 - 1e-6, -0.4}).Mat3()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := MatToQuat(tt.m)

			assert.InDelta(t, 1, q.Len(), eps)
			back := QuatToMat(q)
			assertMat3(t, tt.m, back, 1e-7)
		})
	}
}

func TestQuatToEuler_NearNinetyPitchStaysFinite(t *testing.T) {
	m := Rotation(mgl64.Vec3{0, math.Pi / 2, 0})

	got := DecomposeRotation(m.Mat3())
	for i := 0; i < 3; i++ {
		assert.False(t, math.IsNaN(got[i]), "component %d is NaN", i)
	}
	assert.InDelta(t, math.Pi/2, got[1], 1e-6)
}

func TestRelativeTransform_SameDeviceIsIdentity(t *testing.T) {
	a := ComposeTransform(mgl64.Vec3{0.2, 1.0, -0.4}, mgl64.Vec3{1, 1.5, -2}, mgl64.Vec3{1, 1, 1})

	rel, err := RelativeTransform(a, a)
	require.NoError(t, err)
	assertMat4(t, mgl64.Ident4(), rel, eps)
}

func TestRelativeTransform_RecoversOffset(t *testing.T) {
	a := ComposeTransform(mgl64.Vec3{0, math.Pi / 2, 0}, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{1, 1, 1})
	local := Translation(mgl64.Vec3{0, 0, 2})
	b := a.Mul4(local)

	rel, err := RelativeTransform(a, b)
	require.NoError(t, err)
	assertMat4(t, local, rel, eps)
}

func TestRelativeTransform_Degenerate(t *testing.T) {
	_, err := RelativeTransform(mgl64.Mat4{}, mgl64.Ident4())
	assert.ErrorIs(t, err, ErrDegeneratePose)
}

func TestLookAt_ForwardPointsToViewer(t *testing.T) {
	from := mgl64.Vec3{0, 1.7, 0}
	to := mgl64.Vec3{2, 1.0, -1}

	m := LookAt(from, to)

	forward := m.Col(2).Vec3()
	assertVec3(t, from.Sub(to).Normalize(), forward)

	side := m.Col(0).Vec3()
	up := m.Col(1).Vec3()
	assert.InDelta(t, 0, side.Dot(up), eps)
	assert.InDelta(t, 0, side.Dot(forward), eps)
	assert.InDelta(t, 0, up.Dot(forward), eps)
	assert.InDelta(t, 1, m.Det(), eps)
}

func TestLookAt_StraightDownUsesFallbackUp(t *testing.T) {
	m := LookAt(mgl64.Vec3{0, 2, 0}, mgl64.Vec3{0, 0, 0})

	for _, v := range m {
		assert.False(t, math.IsNaN(v))
	}
	assertVec3(t, mgl64.Vec3{0, 1, 0}, m.Col(2).Vec3())
	assert.InDelta(t, 1, m.Det(), eps)
}

func TestLookAt_SamePoint(t *testing.T) {
	p := mgl64.Vec3{1, 1, 1}
	assert.Equal(t, mgl64.Ident4(), LookAt(p, p))
}

func TestMatrix34_RoundTrip(t *testing.T) {
	m := ComposeTransform(mgl64.Vec3{0.5, 0.25, -0.5}, mgl64.Vec3{0.1, 0.2, 0.3}, mgl64.Vec3{1, 1, 1})

	back := FromMatrix34(ToMatrix34(m))
	assertMat4(t, m, back, 1e-6)
}

func TestPoseTranslation(t *testing.T) {
	m := vr.Matrix34{
		{1, 0, 0, 0.5},
		{0, 1, 0, 1.5},
		{0, 0, 1, -2},
	}
	assert.Equal(t, mgl64.Vec3{0.5, 1.5, -2}, PoseTranslation(m))
}
