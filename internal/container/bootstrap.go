package container

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trading-core/internal/apiclient"
	"github.com/aristath/trading-core/internal/backup"
	appconfig "github.com/aristath/trading-core/internal/config"
	"github.com/aristath/trading-core/internal/database"
	"github.com/aristath/trading-core/internal/events"
	"github.com/aristath/trading-core/internal/markethours"
	"github.com/aristath/trading-core/internal/statestore"
	"github.com/aristath/trading-core/internal/tasks"
)

// Singleton names used across cmd/server and tests to Get() constructed
// components out of the Bootstrap container.
const (
	NameDatabase     = "database"
	NameStateStore   = "statestore"
	NameEventBus     = "event_bus"
	NameEventMgr     = "event_manager"
	NameAPIClient    = "api_client"
	NameBackupMgr    = "backup_manager"
	NameBackupHealth = "backup_health"
	NameTaskRegistry = "task_registry"
	NameTaskService  = "task_service"
	NameTaskTicker   = "task_ticker"
	NameDiagnostics  = "diagnostics"
	NameResources    = "resource_manager"
)

// Bootstrap registers a factory for every singleton SPEC_FULL names and
// wires their RegisterCleanup callbacks, following the teacher's sequential-
// construction-with-fatal-on-error idiom reworked into lazy-singleton
// factories: nothing is constructed or run until the first Get. Bootstrap
// starts no goroutines; Start runs the startup reaper sweep and starts the
// ticker, since those have no natural "first caller".
func Bootstrap(cfg *appconfig.Config, log zerolog.Logger) (*Container, error) {
	c := New(log)
	resources := NewResourceManager(log)

	c.RegisterSingleton(NameResources, func() (interface{}, error) { return resources, nil })

	c.RegisterSingleton(NameDatabase, func() (interface{}, error) {
		db, err := database.New(database.Config{
			Path:    cfg.DataDir + "/trading.db",
			Profile: database.ProfileStandard,
			Name:    "trading",
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	})
	c.RegisterCleanup(NameDatabase, func(ctx context.Context) error {
		db, err := c.Get(NameDatabase)
		if err != nil {
			return nil
		}
		return db.(*database.DB).Close()
	})

	c.RegisterSingleton(NameStateStore, func() (interface{}, error) {
		dbAny, err := c.Get(NameDatabase)
		if err != nil {
			return nil, err
		}
		store, err := statestore.New(dbAny.(*database.DB), log)
		if err != nil {
			return nil, fmt.Errorf("init statestore: %w", err)
		}
		return store, nil
	})

	c.RegisterSingleton(NameEventBus, func() (interface{}, error) { return events.NewBus(), nil })

	c.RegisterSingleton(NameEventMgr, func() (interface{}, error) {
		busAny, err := c.Get(NameEventBus)
		if err != nil {
			return nil, err
		}
		return events.NewManager(busAny.(*events.Bus), log), nil
	})

	c.RegisterSingleton(NameAPIClient, func() (interface{}, error) {
		client := apiclient.New(apiclient.Config{
			Name:              "provider",
			Keys:              cfg.APIKeys,
			RequestsPerMinute: cfg.RequestsPerMinute,
			BurstLimit:        cfg.BurstLimit,
			FailureThreshold:  cfg.FailureThreshold,
			RecoveryTimeout:   time.Duration(cfg.RecoveryTimeoutSecs) * time.Second,
			Retry: apiclient.RetryConfig{
				MaxAttempts:     cfg.MaxRetries,
				InitialBackoff:  durationFromSeconds(cfg.InitialBackoffSeconds),
				MaxBackoff:      durationFromSeconds(cfg.MaxBackoffSeconds),
				ExponentialBase: 2,
				Jitter:          cfg.JitterEnabled,
			},
			RequestTimeout: 45 * time.Second,
		}, log)
		return client, nil
	})

	c.RegisterSingleton(NameBackupMgr, func() (interface{}, error) {
		dbAny, err := c.Get(NameDatabase)
		if err != nil {
			return nil, err
		}
		mgr := backup.New(dbAny.(*database.DB), backup.Config{
			Enabled:       cfg.BackupEnabled,
			IntervalHours: cfg.BackupIntervalHours,
			MaxBackups:    cfg.MaxBackups,
			BackupDir:     cfg.DataDir + "/backups",
			DatabaseStem:  "trading",
		}, log)
		return mgr, nil
	})

	c.RegisterSingleton(NameBackupHealth, func() (interface{}, error) {
		dbAny, err := c.Get(NameDatabase)
		if err != nil {
			return nil, err
		}
		mgrAny, err := c.Get(NameBackupMgr)
		if err != nil {
			return nil, err
		}
		return backup.NewHealthMonitor(dbAny.(*database.DB), mgrAny.(*backup.Manager), log), nil
	})

	c.RegisterSingleton(NameTaskRegistry, func() (interface{}, error) { return tasks.NewRegistry(), nil })

	taskCfg := tasks.DefaultConfig()
	taskCfg.HandlerTimeout = time.Duration(cfg.DefaultHandlerSecs) * time.Second

	c.RegisterSingleton(NameTaskService, func() (interface{}, error) {
		storeAny, err := c.Get(NameStateStore)
		if err != nil {
			return nil, err
		}
		registryAny, err := c.Get(NameTaskRegistry)
		if err != nil {
			return nil, err
		}
		emitterAny, err := c.Get(NameEventMgr)
		if err != nil {
			return nil, err
		}
		svc := tasks.New(
			storeAny.(*statestore.Store),
			registryAny.(*tasks.Registry),
			taskCfg,
			emitterAny.(*events.Manager),
			log,
		)
		return svc, nil
	})
	c.RegisterCleanup(NameTaskService, func(ctx context.Context) error {
		svcAny, err := c.Get(NameTaskService)
		if err != nil {
			return nil
		}
		svcAny.(*tasks.Service).Stop()
		return nil
	})

	c.RegisterSingleton(NameTaskTicker, func() (interface{}, error) {
		storeAny, err := c.Get(NameStateStore)
		if err != nil {
			return nil, err
		}
		svcAny, err := c.Get(NameTaskService)
		if err != nil {
			return nil, err
		}
		tickerCfg := tasks.DefaultTickerConfig()
		if cfg.MarketHoursOnly {
			tickerCfg.MarketPredicate = markethours.NewPredicate("")
		}
		return tasks.NewTicker(storeAny.(*statestore.Store), svcAny.(*tasks.Service), tickerCfg, log), nil
	})
	c.RegisterCleanup(NameTaskTicker, func(ctx context.Context) error {
		tickerAny, err := c.Get(NameTaskTicker)
		if err != nil {
			return nil
		}
		tickerAny.(*tasks.Ticker).Stop()
		return nil
	})

	c.RegisterSingleton(NameDiagnostics, func() (interface{}, error) { return NewDiagnostics(), nil })

	return c, nil
}

// Start runs the startup reaper sweep (must happen before any worker or
// ticker goroutine begins claiming tasks) and then starts the task
// service's queue workers implicitly on first Submit and the ticker's
// background loop explicitly, since neither has a natural first caller the
// way Get() does for on-demand singletons.
func Start(c *Container) error {
	storeAny, err := c.Get(NameStateStore)
	if err != nil {
		return err
	}
	store := storeAny.(*statestore.Store)

	maxRunTime := tasks.DefaultMaxRunTime(0)
	if err := tasks.ReapStartupStale(store, maxRunTime, c.log); err != nil {
		return fmt.Errorf("startup reap failed: %w", err)
	}

	// Get(NameTaskTicker) also constructs NameTaskService as its
	// dependency, so the ticker's first Submit lands on a live worker.
	tickerAny, err := c.Get(NameTaskTicker)
	if err != nil {
		return err
	}
	tickerAny.(*tasks.Ticker).Start()

	return nil
}

func durationFromSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
