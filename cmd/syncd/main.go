package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"fitsync/internal/api"
	"fitsync/internal/config"
	"fitsync/internal/events"
	"fitsync/internal/logger"
	"fitsync/internal/models"
	"fitsync/internal/remote"
	"fitsync/internal/store"
	"fitsync/internal/sync"
)

func main() {
	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting fitsync daemon")

	// Init Local Store
	localStore, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		logger.Log.Fatal("Failed to open local store", zap.Error(err))
	}
	defer localStore.Close()

	ctx := context.Background()

	strategy, err := localStore.Strategy(ctx)
	if err != nil {
		logger.Log.Fatal("Failed to read conflict strategy", zap.Error(err))
	}

	// Wire the sync subsystem
	bus := events.NewBus()
	resolver := sync.NewResolver(localStore, bus, strategy)
	client := remote.NewClient(cfg.Remote)
	engine := sync.NewEngine(localStore, client, resolver, bus, cfg.Sync.GetMaxAttempts())

	sync.BindTable[models.Workout](engine, models.TableWorkouts)
	sync.BindTable[models.Template](engine, models.TableTemplates)
	sync.BindTable[models.WeightEntry](engine, models.TableWeightLog)
	sync.BindTable[models.Measurement](engine, models.TableMeasurements)
	sync.BindTable[models.PersonalRecord](engine, models.TablePersonalRecords)

	// Change-stream listener
	listener := sync.NewStreamListener(cfg.Remote.StreamURL, cfg.Remote.APIKey, cfg.Remote.UserID, engine, bus)
	if cfg.Remote.StreamURL != "" {
		listener.Start(ctx)
	}

	// Periodic sync
	scheduler := sync.NewScheduler(cfg.Sync, engine)
	scheduler.Start()

	// Control API
	handler := api.NewHandler(engine, resolver, scheduler)
	router := handler.Routes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Log.Info("Control API listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down...")
	scheduler.Stop()
	if cfg.Remote.StreamURL != "" {
		listener.Stop()
	}
	server.Shutdown(context.Background())
}
