package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMetaFlags(t *testing.T) {
	m := &SyncMeta{ID: "w1"}

	m.MarkLocalOnly()
	assert.False(t, m.IsSynced())
	assert.True(t, m.IsLocalOnly())

	m.MarkSynced()
	assert.True(t, m.IsSynced())
	assert.False(t, m.IsLocalOnly(), "remote ack clears local-only")

	m.MarkDirty()
	assert.False(t, m.IsSynced())
	assert.False(t, m.IsLocalOnly(), "an edit does not make a record local-only")
}

func TestSyncMetaTouch(t *testing.T) {
	m := &SyncMeta{ID: "w1", Synced: true}
	now := time.Now().UTC()

	m.Touch(now)

	assert.Equal(t, now, m.UpdatedAt)
	assert.False(t, m.IsSynced())
}

func TestWorkoutMergeRemote(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	local := &Workout{
		SyncMeta:    SyncMeta{ID: "w1", UpdatedAt: base.Add(time.Hour)},
		Name:        "Leg Day",
		Notes:       "felt strong",
		Rating:      5,
		TotalVolume: 1000,
		TotalSets:   10,
	}
	remote := &Workout{
		SyncMeta:    SyncMeta{ID: "w1", UpdatedAt: base},
		Name:        "Leg Day (old)",
		Notes:       "stale",
		Rating:      3,
		TotalVolume: 1250,
		TotalSets:   12,
		Exercises:   []WorkoutExercise{{ExerciseID: "squat", Name: "Squat"}},
	}

	local.MergeRemote(remote)

	// Computed aggregates always follow the remote copy.
	assert.Equal(t, 1250.0, local.TotalVolume)
	assert.Equal(t, 12, local.TotalSets)
	assert.Len(t, local.Exercises, 1)

	// Editable fields keep the newer (local) side.
	assert.Equal(t, "Leg Day", local.Name)
	assert.Equal(t, "felt strong", local.Notes)
	assert.Equal(t, 5, local.Rating)
}

func TestWorkoutMergeRemoteNewerRemoteEditable(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	local := &Workout{
		SyncMeta: SyncMeta{ID: "w1", UpdatedAt: base},
		Name:     "Leg Day",
	}
	remote := &Workout{
		SyncMeta: SyncMeta{ID: "w1", UpdatedAt: base.Add(time.Hour)},
		Name:     "Leg Day v2",
	}

	local.MergeRemote(remote)

	assert.Equal(t, "Leg Day v2", local.Name)
}

func TestParseTable(t *testing.T) {
	tests := []struct {
		in      string
		want    Table
		wantErr bool
	}{
		{"workouts", TableWorkouts, false},
		{"templates", TableTemplates, false},
		{"weight_log", TableWeightLog, false},
		{"measurements", TableMeasurements, false},
		{"personal_records", TablePersonalRecords, false},
		{"nope", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTable(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMutationRecordID(t *testing.T) {
	m := &Mutation{Data: []byte(`{"id":"w9","name":"Push Day"}`)}
	id, err := m.RecordID()
	require.NoError(t, err)
	assert.Equal(t, "w9", id)
}
