package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsync/internal/models"
)

func TestMergeItemsNewFromRemote(t *testing.T) {
	r, _, _ := newTestResolver(t, models.StrategyLatestWins)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	local := []*models.Workout{workoutAt("w1", base, true)}
	remote := []*models.Workout{workoutAt("w2", base, false)}

	merged, err := MergeItems(context.Background(), r, models.TableWorkouts, local, remote)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, "w1", merged[0].RecordID())
	assert.Equal(t, "w2", merged[1].RecordID())
	assert.True(t, merged[1].IsSynced(), "new from remote arrives synced")
}

func TestMergeItemsRemoteWinsWhenLocalCleanAndOlder(t *testing.T) {
	r, _, _ := newTestResolver(t, models.StrategyLatestWins)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	local := []*models.Workout{workoutAt("w1", base, true)}
	newer := workoutAt("w1", base.Add(time.Hour), false)
	newer.Name = "renamed elsewhere"

	merged, err := MergeItems(context.Background(), r, models.TableWorkouts, local, []*models.Workout{newer})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "renamed elsewhere", merged[0].Name)
	assert.True(t, merged[0].IsSynced())
}

func TestMergeItemsKeepsLocalWhenRemoteNotNewer(t *testing.T) {
	r, _, _ := newTestResolver(t, models.StrategyLatestWins)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	local := []*models.Workout{workoutAt("w1", base, true)}
	sameAge := workoutAt("w1", base, false)
	sameAge.Name = "should not land"

	merged, err := MergeItems(context.Background(), r, models.TableWorkouts, local, []*models.Workout{sameAge})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "Workout w1", merged[0].Name)
}

func TestMergeItemsPreservesDirtyLocal(t *testing.T) {
	// A dirty local record merged against a non-conflicting remote stays
	// dirty, never silently overwritten.
	r, _, _ := newTestResolver(t, models.StrategyLatestWins)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	dirty := workoutAt("w1", base.Add(time.Hour), false)
	dirty.Name = "local edit"
	olderRemote := workoutAt("w1", base, true)

	merged, err := MergeItems(context.Background(), r, models.TableWorkouts,
		[]*models.Workout{dirty}, []*models.Workout{olderRemote})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "local edit", merged[0].Name)
	assert.False(t, merged[0].IsSynced())
}

func TestMergeItemsLocalOnlyUntouchedByAbsence(t *testing.T) {
	// Deletions are never inferred from absence in the remote set.
	r, _, _ := newTestResolver(t, models.StrategyLatestWins)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	localOnly := workoutAt("w9", base, false)
	localOnly.MarkLocalOnly()

	merged, err := MergeItems(context.Background(), r, models.TableWorkouts,
		[]*models.Workout{localOnly}, nil)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].IsLocalOnly())
	assert.False(t, merged[0].IsSynced())
}

func TestMergeItemsConflictRoutesThroughResolver(t *testing.T) {
	r, _, _ := newTestResolver(t, models.StrategyLatestWins)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	dirty := workoutAt("w1", base, false)
	newerRemote := workoutAt("w1", base.Add(time.Hour), false)
	newerRemote.Name = "Leg Day v2"

	merged, err := MergeItems(context.Background(), r, models.TableWorkouts,
		[]*models.Workout{dirty}, []*models.Workout{newerRemote})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "Leg Day v2", merged[0].Name)
	assert.True(t, merged[0].IsSynced())
}

func TestMergeItemsIdempotent(t *testing.T) {
	// Merging the same remote snapshot twice equals merging it once.
	r, _, _ := newTestResolver(t, models.StrategyLatestWins)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	dirty := workoutAt("w1", base.Add(time.Hour), false)
	clean := workoutAt("w2", base, true)
	localOnly := workoutAt("w3", base, false)
	localOnly.MarkLocalOnly()

	remote := []*models.Workout{
		workoutAt("w1", base, true),
		workoutAt("w2", base.Add(time.Hour), true),
		workoutAt("w4", base, true),
	}

	once, err := MergeItems(context.Background(), r, models.TableWorkouts,
		[]*models.Workout{dirty, clean, localOnly}, remote)
	require.NoError(t, err)

	twice, err := MergeItems(context.Background(), r, models.TableWorkouts, once, remote)
	require.NoError(t, err)

	onceJSON, err := json.Marshal(once)
	require.NoError(t, err)
	twiceJSON, err := json.Marshal(twice)
	require.NoError(t, err)
	assert.JSONEq(t, string(onceJSON), string(twiceJSON))

	// Exactly one entry per id seen in either input.
	ids := map[string]bool{}
	for _, rec := range twice {
		assert.False(t, ids[rec.RecordID()], "duplicate id %s", rec.RecordID())
		ids[rec.RecordID()] = true
	}
	assert.Len(t, ids, 4)
}

func TestMergeItemsFieldLevelAggregates(t *testing.T) {
	// Server-computed aggregates follow the remote copy even when the local
	// record is kept.
	r, _, _ := newTestResolver(t, models.StrategyLatestWins)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	local := workoutAt("w1", base.Add(time.Hour), false)
	local.Name = "my name"
	local.TotalVolume = 100

	older := workoutAt("w1", base, true)
	older.Name = "server name"
	older.TotalVolume = 450

	merged, err := MergeItems(context.Background(), r, models.TableWorkouts,
		[]*models.Workout{local}, []*models.Workout{older})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "my name", merged[0].Name, "editable field keeps the newer local side")
	assert.Equal(t, 450.0, merged[0].TotalVolume, "aggregate always follows remote")
	assert.False(t, merged[0].IsSynced())
}
