package sync

import (
	"context"
	gosync "sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fitsync/internal/config"
	"fitsync/internal/logger"
)

// Scheduler drives the periodic sync loop: a fixed-interval cron job plus
// immediate kicks on process start, offline-to-online transition, and app
// foreground. Stopping it never loses queued state; the queue is durable.
type Scheduler struct {
	cfg    config.SyncConfig
	engine *Engine
	cron   *cron.Cron

	mu     gosync.Mutex
	online bool
	onWifi bool
}

func NewScheduler(cfg config.SyncConfig, engine *Engine) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		cron:   cron.New(),
		online: true,
		onWifi: true,
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.AutoSync || s.cfg.Manual() {
		logger.Log.Info("Auto-sync disabled")
		return
	}

	interval := s.cfg.GetInterval()
	logger.Log.Info("Starting sync scheduler", zap.Duration("interval", interval))

	if _, err := s.cron.AddFunc("@every "+interval.String(), func() {
		s.run()
	}); err != nil {
		logger.Log.Error("Failed to schedule sync job", zap.Error(err))
		return
	}
	s.cron.Start()

	// Drain whatever queued up while the process was down.
	s.Kick()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	logger.Log.Info("Stopped sync scheduler")
}

// Kick triggers an immediate pass without waiting for the next tick.
func (s *Scheduler) Kick() {
	go s.run()
}

// SetNetwork records connectivity. A transition from offline to online kicks
// an immediate pass to flush the queue.
func (s *Scheduler) SetNetwork(online, onWifi bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.onWifi = onWifi
	s.mu.Unlock()

	if !wasOnline && online {
		logger.Log.Info("Back online, kicking sync")
		s.Kick()
	}
}

// Foreground is invoked when the app returns to the foreground.
func (s *Scheduler) Foreground() {
	s.Kick()
}

func (s *Scheduler) run() {
	s.mu.Lock()
	online, onWifi := s.online, s.onWifi
	s.mu.Unlock()

	if !online {
		logger.Log.Debug("Offline, skipping scheduled sync")
		return
	}
	if s.cfg.WifiOnly && !onWifi {
		logger.Log.Debug("Not on wifi, skipping scheduled sync")
		return
	}

	ctx := context.Background()

	if s.engine.Status() == "syncing" {
		logger.Log.Debug("Sync already running, skipping scheduled run")
		return
	}

	if _, err := s.engine.SyncAll(ctx); err != nil {
		logger.Log.Error("Scheduled drain failed", zap.Error(err))
	}
	if err := s.engine.PullAll(ctx); err != nil {
		logger.Log.Warn("Scheduled pull finished with errors", zap.Error(err))
	}
}
