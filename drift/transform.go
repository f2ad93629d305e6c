package drift

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Euler angles in this package use the static (extrinsic) x-y-z convention:
// R = Rz(yaw) * Ry(pitch) * Rx(roll).

// QuaternionFromEuler encodes roll, pitch, yaw (radians) as a unit quaternion
func QuaternionFromEuler(roll, pitch, yaw float64) Quaternion {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)

	return Quaternion{
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
		W: cr*cp*cy + sr*sp*sy,
	}
}

// EulerFromQuaternion decodes a quaternion into roll, pitch, yaw (radians).
// A zero quaternion decodes as no rotation.
func EulerFromQuaternion(q Quaternion) (roll, pitch, yaw float64) {
	return eulerFromRotation(rotationFromQuaternion(q))
}

// Normalized returns q scaled to unit length, or identity for a zero quaternion
func (q Quaternion) Normalized() Quaternion {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if n < 1e-12 {
		return IdentityQuaternion()
	}
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// rotationFromQuaternion returns the row-major 3x3 rotation for q
func rotationFromQuaternion(q Quaternion) [3][3]float64 {
	q = q.Normalized()
	x, y, z, w := q.X, q.Y, q.Z, q.W

	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

func eulerFromRotation(r [3][3]float64) (roll, pitch, yaw float64) {
	cy := math.Sqrt(r[0][0]*r[0][0] + r[1][0]*r[1][0])
	if cy > 1e-9 {
		roll = math.Atan2(r[2][1], r[2][2])
		pitch = math.Atan2(-r[2][0], cy)
		yaw = math.Atan2(r[1][0], r[0][0])
		return roll, pitch, yaw
	}
	// gimbal lock: fold everything into roll
	roll = math.Atan2(-r[1][2], r[1][1])
	pitch = math.Atan2(-r[2][0], cy)
	return roll, pitch, 0
}

func quaternionFromRotation(r [3][3]float64) Quaternion {
	var q Quaternion
	tr := r[0][0] + r[1][1] + r[2][2]

	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = Quaternion{
			W: 0.25 * s,
			X: (r[2][1] - r[1][2]) / s,
			Y: (r[0][2] - r[2][0]) / s,
			Z: (r[1][0] - r[0][1]) / s,
		}
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := math.Sqrt(1+r[0][0]-r[1][1]-r[2][2]) * 2
		q = Quaternion{
			W: (r[2][1] - r[1][2]) / s,
			X: 0.25 * s,
			Y: (r[0][1] + r[1][0]) / s,
			Z: (r[0][2] + r[2][0]) / s,
		}
	case r[1][1] > r[2][2]:
		s := math.Sqrt(1+r[1][1]-r[0][0]-r[2][2]) * 2
		q = Quaternion{
			W: (r[0][2] - r[2][0]) / s,
			X: (r[0][1] + r[1][0]) / s,
			Y: 0.25 * s,
			Z: (r[1][2] + r[2][1]) / s,
		}
	default:
		s := math.Sqrt(1+r[2][2]-r[0][0]-r[1][1]) * 2
		q = Quaternion{
			W: (r[1][0] - r[0][1]) / s,
			X: (r[0][2] + r[2][0]) / s,
			Y: (r[1][2] + r[2][1]) / s,
			Z: 0.25 * s,
		}
	}
	return q.Normalized()
}

// HomogeneousMatrix builds the 4x4 rigid transform for a pose
func HomogeneousMatrix(p Pose) *mat.Dense {
	r := rotationFromQuaternion(p.Orientation)
	return mat.NewDense(4, 4, []float64{
		r[0][0], r[0][1], r[0][2], p.Position.X,
		r[1][0], r[1][1], r[1][2], p.Position.Y,
		r[2][0], r[2][1], r[2][2], p.Position.Z,
		0, 0, 0, 1,
	})
}

// InvertHomogeneous inverts a 4x4 transform. A singular or non-finite
// result is reported as ErrSingularTransform.
func InvertHomogeneous(m mat.Matrix) (*mat.Dense, error) {
	if !allFinite(m) {
		return nil, ErrSingularTransform
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularTransform, err)
	}
	if !allFinite(&inv) {
		return nil, ErrSingularTransform
	}
	return &inv, nil
}

// ComposeHomogeneous returns a * b (apply b first, then a)
func ComposeHomogeneous(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// TranslationOf returns the last column of a 4x4 transform
func TranslationOf(m mat.Matrix) Vector3 {
	return Vector3{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
}

// EulerFromMatrix decomposes the rotation block of a 4x4 transform
func EulerFromMatrix(m mat.Matrix) (roll, pitch, yaw float64) {
	return eulerFromRotation(rotationBlock(m))
}

// PoseFromMatrix converts a 4x4 rigid transform back into a Pose
func PoseFromMatrix(m mat.Matrix) Pose {
	return Pose{
		Position:    TranslationOf(m),
		Orientation: quaternionFromRotation(rotationBlock(m)),
	}
}

// TransformPose re-expresses p (given in the child frame of tf) in the parent frame
func TransformPose(tf Transform, p Pose) Pose {
	parent := HomogeneousMatrix(Pose{Position: tf.Translation, Orientation: tf.Rotation})
	return PoseFromMatrix(ComposeHomogeneous(parent, HomogeneousMatrix(p)))
}

// WrapAngle maps an angle in radians into (-pi, pi]
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

func rotationBlock(m mat.Matrix) [3][3]float64 {
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m.At(i, j)
		}
	}
	return r
}

func allFinite(m mat.Matrix) bool {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
