package posemath

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/jangxx/UniversalTrackerMarkers/internal/vr"
)

// FromMatrix34 widens a runtime 3x4 matrix to a 4x4 affine transform.
func FromMatrix34(m vr.Matrix34) mgl64.Mat4 {
	row := func(r int) mgl64.Vec4 {
		return mgl64.Vec4{float64(m[r][0]), float64(m[r][1]), float64(m[r][2]), float64(m[r][3])}
	}
	return mgl64.Mat4FromRows(row(0), row(1), row(2), mgl64.Vec4{0, 0, 0, 1})
}

// ToMatrix34 drops the last row of m for the runtime.
func ToMatrix34(m mgl64.Mat4) vr.Matrix34 {
	var out vr.Matrix34
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			out[r][c] = float32(m.At(r, c))
		}
	}
	return out
}

// PoseTranslation returns the position encoded in a runtime pose matrix.
func PoseTranslation(m vr.Matrix34) mgl64.Vec3 {
	return mgl64.Vec3{float64(m[0][3]), float64(m[1][3]), float64(m[2][3])}
}
