package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/trading-core/internal/apiclient"
	"github.com/aristath/trading-core/internal/backup"
	"github.com/aristath/trading-core/internal/config"
	"github.com/aristath/trading-core/internal/container"
	"github.com/aristath/trading-core/internal/healthhttp"
	"github.com/aristath/trading-core/internal/statestore"
	"github.com/aristath/trading-core/pkg/logger"
)

// backupTickInterval is how often the backup manager is polled to see
// whether its configured interval has elapsed, per Manager.Tick's own
// "called periodically, e.g. every 60s" contract.
const backupTickInterval = 60 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "info", Pretty: true}).Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Str("environment", string(cfg.Environment)).Str("data_dir", cfg.DataDir).Msg("starting trading-core")

	c, err := container.Bootstrap(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap container")
	}

	if err := container.Start(c); err != nil {
		log.Fatal().Err(err).Msg("failed to start container")
	}
	log.Info().Msg("startup reap complete, task ticker running")

	storeAny, err := c.Get(container.NameStateStore)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get statestore")
	}
	store := storeAny.(*statestore.Store)

	diagnosticsAny, err := c.Get(container.NameDiagnostics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get diagnostics")
	}

	var apiClient *apiclient.Client
	if len(cfg.APIKeys) > 0 {
		apiClientAny, err := c.Get(container.NameAPIClient)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get api client")
		}
		apiClient = apiClientAny.(*apiclient.Client)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.BackupEnabled {
		mgrAny, err := c.Get(container.NameBackupMgr)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get backup manager")
		}
		mgr := mgrAny.(*backup.Manager)
		go runBackupLoop(ctx, mgr)
	}

	handlers := healthhttp.New(store, apiClient, diagnosticsAny.(*container.Diagnostics), log)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HealthPort),
		Handler:      handlers.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HealthPort).Msg("health endpoint listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("health server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGraceSecs)*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("health server shutdown did not complete cleanly")
	}

	c.Shutdown()
	log.Info().Msg("shutdown complete")
}

// runBackupLoop drives Manager.Tick on backupTickInterval until ctx is
// cancelled. Tick itself decides whether cfg.IntervalHours has elapsed, so
// this loop only needs to fire often enough to not miss the window.
func runBackupLoop(ctx context.Context, mgr *backup.Manager) {
	ticker := time.NewTicker(backupTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.Tick()
		}
	}
}
