package drift

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeCorrection(t *testing.T) {
	tests := []struct {
		name     string
		known    KnownMarker
		observed Pose
		want     CandidateEstimate
	}{
		{
			name:     "no drift",
			known:    KnownMarker{ID: 1, Position: Vector3{X: 2, Y: 1}},
			observed: Pose{Position: Vector3{X: 2, Y: 1}, Orientation: IdentityQuaternion()},
			want:     CandidateEstimate{},
		},
		{
			name:     "pure translation",
			known:    KnownMarker{ID: 1, Position: Vector3{X: 2, Y: 1}},
			observed: Pose{Position: Vector3{X: 1, Y: 0.5}, Orientation: IdentityQuaternion()},
			want:     CandidateEstimate{X: 1, Y: 0.5},
		},
		{
			name:     "rotated marker",
			known:    KnownMarker{ID: 1, Position: Vector3{X: 2}, Yaw: 90},
			observed: Pose{Position: Vector3{X: 1}, Orientation: IdentityQuaternion()},
			want:     CandidateEstimate{X: 2, Y: -1, Yaw: math.Pi / 2},
		},
		{
			name:     "height does not leak into the planar result",
			known:    KnownMarker{ID: 1, Position: Vector3{X: 2, Y: 1, Z: 0.8}},
			observed: Pose{Position: Vector3{X: 1.5, Y: 1, Z: 0.3}, Orientation: IdentityQuaternion()},
			want:     CandidateEstimate{X: 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComposeCorrection(tt.known, tt.observed)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			assert.InDelta(t, tt.want.Yaw, got.Yaw, 1e-9)
		})
	}
}

func TestComposeCorrection_RecoversKnownPose(t *testing.T) {
	known := KnownMarker{ID: 4, Position: Vector3{X: 3.2, Y: -1.1}, Yaw: 35}
	observed := Pose{
		Position:    Vector3{X: 0.7, Y: 2.4},
		Orientation: QuaternionFromEuler(0, 0, deg2rad(-20)),
	}

	c, err := ComposeCorrection(known, observed)
	require.NoError(t, err)

	mapOdom := HomogeneousMatrix(Pose{
		Position:    Vector3{X: c.X, Y: c.Y},
		Orientation: QuaternionFromEuler(0, 0, c.Yaw),
	})
	mapMarker := ComposeHomogeneous(mapOdom, HomogeneousMatrix(observed))
	assert.True(t, mat.EqualApprox(mapMarker, HomogeneousMatrix(known.Pose()), 1e-9))
}

func TestComposeCorrection_Singular(t *testing.T) {
	known := KnownMarker{ID: 1, Position: Vector3{X: 1}}
	observed := Pose{Position: Vector3{X: math.NaN()}, Orientation: IdentityQuaternion()}

	_, err := ComposeCorrection(known, observed)
	assert.ErrorIs(t, err, ErrSingularTransform)
}

func TestCheckFreshness(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name    string
		stamp   time.Time
		wantErr bool
	}{
		{"fresh", now.Add(-time.Second), false},
		{"exactly at the limit", now.Add(-2 * time.Second), false},
		{"three seconds old", now.Add(-3 * time.Second), true},
		{"future stamp", now.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFreshness(tt.stamp, now, 2*time.Second)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrStaleObservation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
