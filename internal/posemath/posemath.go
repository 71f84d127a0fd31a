// Package posemath builds and takes apart the 4x4 transforms used to place
// overlays relative to tracked devices.
//
// All angles are radians. Rotations are intrinsic X, then Y, then Z, which
// composes as Rz·Ry·Rx for column vectors.
package posemath

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrDegeneratePose is returned when a pose matrix cannot be inverted.
var ErrDegeneratePose = errors.New("degenerate pose")

const (
	// determinants below this are treated as singular
	singularDeterminant = 1e-12

	// |forward·up| at or above 1-lookAtEpsilon switches to the fallback up axis
	lookAtEpsilon = 1e-9
)

var (
	unitScale = mgl64.Vec3{1, 1, 1}
	worldUp   = mgl64.Vec3{0, 1, 0}
	worldSide = mgl64.Vec3{1, 0, 0}
)

// ComposeTransform builds Translate·Rz·Ry·Rx·Scale in one step. Scale is
// applied per column, translation occupies the last column.
func ComposeTransform(rot, translate, scale mgl64.Vec3) mgl64.Mat4 {
	sx, cx := math.Sincos(rot[0])
	sy, cy := math.Sincos(rot[1])
	sz, cz := math.Sincos(rot[2])

	return mgl64.Mat4FromRows(
		mgl64.Vec4{cy * cz * scale[0], (sx*sy*cz - cx*sz) * scale[1], (cx*sy*cz + sx*sz) * scale[2], translate[0]},
		mgl64.Vec4{cy * sz * scale[0], (sx*sy*sz + cx*cz) * scale[1], (cx*sy*sz - sx*cz) * scale[2], translate[1]},
		mgl64.Vec4{-sy * scale[0], sx * cy * scale[1], cx * cy * scale[2], translate[2]},
		mgl64.Vec4{0, 0, 0, 1},
	)
}

// Rotation returns a pure rotation matrix.
func Rotation(rot mgl64.Vec3) mgl64.Mat4 {
	return ComposeTransform(rot, mgl64.Vec3{}, unitScale)
}

// Translation returns a pure translation matrix.
func Translation(t mgl64.Vec3) mgl64.Mat4 {
	return ComposeTransform(mgl64.Vec3{}, t, unitScale)
}

// Deg2Rad converts a vector of degrees to radians.
func Deg2Rad(deg mgl64.Vec3) mgl64.Vec3 {
	return deg.Mul(math.Pi / 180)
}

// Rad2Deg converts a vector of radians to degrees.
func Rad2Deg(rad mgl64.Vec3) mgl64.Vec3 {
	return rad.Mul(180 / math.Pi)
}

// ExtractTranslation returns the last column of m.
func ExtractTranslation(m mgl64.Mat4) mgl64.Vec3 {
	return m.Col(3).Vec3()
}

// ExtractScale returns the L2 norm of each of the first three columns.
func ExtractScale(m mgl64.Mat4) mgl64.Vec3 {
	return mgl64.Vec3{
		m.Col(0).Vec3().Len(),
		m.Col(1).Vec3().Len(),
		m.Col(2).Vec3().Len(),
	}
}

// ExtractRotation returns the XYZ Euler angles of m after removing scale.
func ExtractRotation(m mgl64.Mat4) mgl64.Vec3 {
	s := ExtractScale(m)
	if s[0] == 0 || s[1] == 0 || s[2] == 0 {
		return mgl64.Vec3{}
	}
	c0 := m.Col(0).Vec3().Mul(1 / s[0])
	c1 := m.Col(1).Vec3().Mul(1 / s[1])
	c2 := m.Col(2).Vec3().Mul(1 / s[2])

	// mgl64 matrices are column-major
	rot := mgl64.Mat3{
		c0[0], c0[1], c0[2],
		c1[0], c1[1], c1[2],
		c2[0], c2[1], c2[2],
	}
	return DecomposeRotation(rot)
}

// DecomposeRotation converts a rotation matrix to XYZ Euler angles by way of
// a quaternion, which stays well-conditioned near ±90° pitch.
func DecomposeRotation(m mgl64.Mat3) mgl64.Vec3 {
	return QuatToEuler(MatToQuat(m))
}

// MatToQuat converts a rotation matrix to a unit quaternion, choosing the
// branch with the largest denominator.
func MatToQuat(m mgl64.Mat3) mgl64.Quat {
	m00, m01, m02 := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	m10, m11, m12 := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	m20, m21, m22 := m.At(2, 0), m.At(2, 1), m.At(2, 2)

	var qw, qx, qy, qz float64

	tr := m00 + m11 + m22
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2 // 4*qw
		qw = 0.25 * s
		qx = (m21 - m12) / s
		qy = (m02 - m20) / s
		qz = (m10 - m01) / s
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2 // 4*qx
		qw = (m21 - m12) / s
		qx = 0.25 * s
		qy = (m01 + m10) / s
		qz = (m02 + m20) / s
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2 // 4*qy
		qw = (m02 - m20) / s
		qx = (m01 + m10) / s
		qy = 0.25 * s
		qz = (m12 + m21) / s
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2 // 4*qz
		qw = (m10 - m01) / s
		qx = (m02 + m20) / s
		qy = (m12 + m21) / s
		qz = 0.25 * s
	}

	return mgl64.Quat{W: qw, V: mgl64.Vec3{qx, qy, qz}}.Normalize()
}

// QuatToMat converts a unit quaternion to a rotation matrix.
func QuatToMat(q mgl64.Quat) mgl64.Mat3 {
	w, x, y, z := q.W, q.V[0], q.V[1], q.V[2]

	m00 := 1 - 2*(y*y+z*z)
	m01 := 2 * (x*y - z*w)
	m02 := 2 * (x*z + y*w)
	m10 := 2 * (x*y + z*w)
	m11 := 1 - 2*(x*x+z*z)
	m12 := 2 * (y*z - x*w)
	m20 := 2 * (x*z - y*w)
	m21 := 2 * (y*z + x*w)
	m22 := 1 - 2*(x*x+y*y)

	return mgl64.Mat3{
		m00, m10, m20,
		m01, m11, m21,
		m02, m12, m22,
	}
}

// QuatToEuler returns the XYZ Euler angles of q.
func QuatToEuler(q mgl64.Quat) mgl64.Vec3 {
	w, x, y, z := q.W, q.V[0], q.V[1], q.V[2]

	rx := math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	ry := math.Asin(clamp(2*(w*y-z*x), -1, 1))
	rz := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	return mgl64.Vec3{rx, ry, rz}
}

// RelativeTransform expresses b in the local frame of a: inverse(a)·b.
func RelativeTransform(a, b mgl64.Mat4) (mgl64.Mat4, error) {
	if math.Abs(a.Det()) < singularDeterminant {
		return mgl64.Mat4{}, ErrDegeneratePose
	}
	return a.Inv().Mul4(b), nil
}

// LookAt returns a rotation whose forward (Z) axis points from to towards
// from, so a quad placed at to faces a viewer at from.
func LookAt(from, to mgl64.Vec3) mgl64.Mat4 {
	forward := from.Sub(to)
	if forward.Len() == 0 {
		return mgl64.Ident4()
	}
	forward = forward.Normalize()

	tmpUp := worldUp
	if math.Abs(forward.Dot(tmpUp)) >= 1-lookAtEpsilon {
		// looking straight up or down
		tmpUp = worldSide
	}

	side := tmpUp.Cross(forward).Normalize()
	up := forward.Cross(side).Normalize()

	return mgl64.Mat4{
		side[0], side[1], side[2], 0,
		up[0], up[1], up[2], 0,
		forward[0], forward[1], forward[2], 0,
		0, 0, 0, 1,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
