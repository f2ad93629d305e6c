package drift

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuaternionEulerRoundTrip(t *testing.T) {
	tests := []struct {
		roll, pitch, yaw float64
	}{
		{0, 0, 0},
		{0, 0, math.Pi / 2},
		{0.1, -0.2, 0.3},
		{-0.5, 0.4, -2.5},
		{RollPitchSentinel, RollPitchSentinel, 1.2},
	}

	for _, tt := range tests {
		q := QuaternionFromEuler(tt.roll, tt.pitch, tt.yaw)
		n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
		assert.InDelta(t, 1.0, n, 1e-12, "quaternion should be unit length")

		r, p, y := EulerFromQuaternion(q)
		assert.InDelta(t, tt.roll, r, 1e-9)
		assert.InDelta(t, tt.pitch, p, 1e-9)
		assert.InDelta(t, tt.yaw, y, 1e-9)
	}
}

func TestQuaternionFromEuler_YawOnly(t *testing.T) {
	q := QuaternionFromEuler(0, 0, math.Pi/2)
	assert.InDelta(t, 0, q.X, 1e-12)
	assert.InDelta(t, 0, q.Y, 1e-12)
	assert.InDelta(t, math.Sqrt2/2, q.Z, 1e-12)
	assert.InDelta(t, math.Sqrt2/2, q.W, 1e-12)
}

func TestEulerFromQuaternion_GimbalLock(t *testing.T) {
	q := QuaternionFromEuler(0, math.Pi/2, 0.3)
	_, p, _ := EulerFromQuaternion(q)
	assert.InDelta(t, math.Pi/2, p, 1e-6)
}

func TestQuaternion_NormalizedZero(t *testing.T) {
	assert.Equal(t, IdentityQuaternion(), Quaternion{}.Normalized())
}

func TestHomogeneousInverseRoundTrip(t *testing.T) {
	p := Pose{
		Position:    Vector3{X: 1.2, Y: -0.7, Z: 0.4},
		Orientation: QuaternionFromEuler(0.2, -0.1, 1.4),
	}
	m := HomogeneousMatrix(p)

	inv, err := InvertHomogeneous(m)
	require.NoError(t, err)

	identity := ComposeHomogeneous(m, inv)
	want := mat.NewDiagDense(4, []float64{1, 1, 1, 1})
	assert.True(t, mat.EqualApprox(identity, want, 1e-9), "T * inv(T) should be identity:\n%v", mat.Formatted(identity))

	back := PoseFromMatrix(m)
	assert.InDelta(t, p.Position.X, back.Position.X, 1e-12)
	r, pi, y := EulerFromQuaternion(back.Orientation)
	assert.InDelta(t, 0.2, r, 1e-9)
	assert.InDelta(t, -0.1, pi, 1e-9)
	assert.InDelta(t, 1.4, y, 1e-9)
}

func TestInvertHomogeneous_Singular(t *testing.T) {
	singular := mat.NewDense(4, 4, nil)
	_, err := InvertHomogeneous(singular)
	assert.ErrorIs(t, err, ErrSingularTransform)

	nonFinite := HomogeneousMatrix(Pose{Position: Vector3{X: math.Inf(1)}, Orientation: IdentityQuaternion()})
	_, err = InvertHomogeneous(nonFinite)
	assert.ErrorIs(t, err, ErrSingularTransform)
}

func TestTransformPose(t *testing.T) {
	// child frame rotated 90 degrees and shifted by (1, 0) in the parent
	tf := Transform{
		Translation: Vector3{X: 1},
		Rotation:    QuaternionFromEuler(0, 0, math.Pi/2),
	}
	p := Pose{Position: Vector3{X: 1}, Orientation: IdentityQuaternion()}

	got := TransformPose(tf, p)
	assert.InDelta(t, 1, got.Position.X, 1e-12)
	assert.InDelta(t, 1, got.Position.Y, 1e-12)
	_, _, yaw := EulerFromQuaternion(got.Orientation)
	assert.InDelta(t, math.Pi/2, yaw, 1e-9)
}

func TestWrapAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{4*math.Pi + 0.1, 0.1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, WrapAngle(tt.in), 1e-9, "WrapAngle(%f)", tt.in)
	}
}
