package drift

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	store, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestHistoryStore_RecordAndRecent(t *testing.T) {
	store := openTestHistory(t)
	t0 := time.Unix(1700000000, 0)

	for i := 0; i < 3; i++ {
		tf := NewCorrection(CandidateEstimate{X: float64(i), Y: 1, Yaw: deg2rad(10 * float64(i))}, "map", "odom", t0.Add(time.Duration(i)*time.Second))
		decision := GateDecision{Publish: true, StepTranslation: 0.5, StepYawDeg: 10}
		require.NoError(t, store.Record(tf, 4, decision))
	}

	records, err := store.Recent(0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	newest := records[0]
	assert.Equal(t, 2.0, newest.X, "newest first")
	assert.Equal(t, 1.0, newest.Y)
	assert.InDelta(t, 20.0, newest.YawDeg, 1e-9)
	assert.Equal(t, 4, newest.MarkerID)
	assert.Equal(t, "map", newest.MapFrame)
	assert.Equal(t, "odom", newest.OdomFrame)
	assert.Equal(t, 0.5, newest.StepTranslation)
	assert.True(t, newest.PublishedAt.Equal(t0.Add(2*time.Second)))
	assert.NotEmpty(t, newest.ID)

	limited, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, 1.0, limited[1].X)
}

func TestHistoryStore_AssignsMissingID(t *testing.T) {
	store := openTestHistory(t)

	tf := NewCorrection(CandidateEstimate{X: 1}, "map", "odom", time.Now())
	tf.ID = ""
	require.NoError(t, store.Record(tf, 0, GateDecision{}))

	records, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0].ID, 36)
}

func TestHistoryStore_DuplicateID(t *testing.T) {
	store := openTestHistory(t)

	tf := NewCorrection(CandidateEstimate{X: 1}, "map", "odom", time.Now())
	require.NoError(t, store.Record(tf, 0, GateDecision{}))
	assert.Error(t, store.Record(tf, 0, GateDecision{}))
}

func TestHistoryStore_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := OpenHistory(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(NewCorrection(CandidateEstimate{X: 3}, "map", "odom", time.Now()), 1, GateDecision{}))
	require.NoError(t, store.Close())

	store, err = OpenHistory(path)
	require.NoError(t, err)
	defer store.Close()

	records, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3.0, records[0].X)
}
