package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsync/internal/config"
	"fitsync/internal/models"
)

func queuedCount(t *testing.T, e *Engine) int {
	t.Helper()
	mutations, err := e.QueuedMutations(context.Background())
	require.NoError(t, err)
	return len(mutations)
}

func TestSchedulerRunSkipsWhenOffline(t *testing.T) {
	engine, _, remote, _ := newTestEngine(t)
	ctx := context.Background()

	w := &models.Workout{SyncMeta: models.SyncMeta{ID: "w1", UpdatedAt: time.Now()}}
	require.NoError(t, AddItem[models.Workout](ctx, engine, models.TableWorkouts, w))

	s := NewScheduler(config.SyncConfig{AutoSync: true, Frequency: "30s"}, engine)
	s.SetNetwork(false, false)

	s.run()

	assert.Empty(t, remote.inserts, "offline pass must not touch the remote")
	assert.Equal(t, 1, queuedCount(t, engine), "queued work survives the skip")
}

func TestSchedulerRunWifiGating(t *testing.T) {
	engine, _, remote, _ := newTestEngine(t)
	ctx := context.Background()

	w := &models.Workout{SyncMeta: models.SyncMeta{ID: "w1", UpdatedAt: time.Now()}}
	require.NoError(t, AddItem[models.Workout](ctx, engine, models.TableWorkouts, w))

	s := NewScheduler(config.SyncConfig{AutoSync: true, WifiOnly: true, Frequency: "30s"}, engine)

	s.SetNetwork(true, false)
	s.run()
	assert.Empty(t, remote.inserts, "cellular pass is gated when wifi_only is set")
	assert.Equal(t, 1, queuedCount(t, engine))

	s.SetNetwork(true, true)
	s.run()
	assert.Equal(t, []string{"workouts"}, remote.inserts)
	assert.Zero(t, queuedCount(t, engine))
}

func TestSchedulerKicksOnReconnect(t *testing.T) {
	engine, _, remote, _ := newTestEngine(t)
	ctx := context.Background()

	w := &models.Workout{SyncMeta: models.SyncMeta{ID: "w1", UpdatedAt: time.Now()}}
	require.NoError(t, AddItem[models.Workout](ctx, engine, models.TableWorkouts, w))

	s := NewScheduler(config.SyncConfig{AutoSync: true, Frequency: "30s"}, engine)
	s.SetNetwork(false, true)
	require.Empty(t, remote.inserts)

	// Offline to online flushes the queue without waiting for the next tick.
	s.SetNetwork(true, true)

	require.Eventually(t, func() bool {
		return queuedCount(t, engine) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"workouts"}, remote.inserts)
}

func TestSchedulerForegroundKicks(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	w := &models.Workout{SyncMeta: models.SyncMeta{ID: "w1", UpdatedAt: time.Now()}}
	require.NoError(t, AddItem[models.Workout](ctx, engine, models.TableWorkouts, w))

	s := NewScheduler(config.SyncConfig{AutoSync: true, Frequency: "manual"}, engine)
	s.Foreground()

	require.Eventually(t, func() bool {
		return queuedCount(t, engine) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerStartRespectsManualAndAutoSync(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.SyncConfig
		wantEntries int
	}{
		{"manual frequency", config.SyncConfig{AutoSync: true, Frequency: "manual"}, 0},
		{"auto sync off", config.SyncConfig{AutoSync: false, Frequency: "30s"}, 0},
		{"periodic", config.SyncConfig{AutoSync: true, Frequency: "30s"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, _, _ := newTestEngine(t)
			s := NewScheduler(tt.cfg, engine)
			s.Start()
			defer s.Stop()

			assert.Len(t, s.cron.Entries(), tt.wantEntries)
		})
	}
}
