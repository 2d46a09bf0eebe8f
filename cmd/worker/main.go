// Package main is the entry point for the background worker.
//
// The worker owns periodic maintenance of the leaderboard projection:
// awards project scores best-effort, so a scheduled rebuild from the
// profiles table bounds how long a dropped update stays visible. Run one
// worker per deployment and set SCHEDULER_ENABLED=false on the API
// instances so only the worker rebuilds.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/skillforge/skillforge-engine/config"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/persistence/postgres"
	redisstore "github.com/skillforge/skillforge-engine/internal/infrastructure/persistence/redis"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/scheduler"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/scheduler/jobs"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/service"
	"github.com/skillforge/skillforge-engine/pkg/logger"
	"github.com/skillforge/skillforge-engine/pkg/timeutil"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Redis.Disabled {
		return fmt.Errorf("worker requires redis: an in-memory projection in a separate process serves nothing")
	}
	if !cfg.Features.IsEnabled(config.FeatureLeaderboardProjection, nil) {
		return fmt.Errorf("leaderboard projection is disabled by feature flag, nothing to do")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})
	timeutil.SetCanonicalTZ(cfg.App.Location)

	log.Info("starting projection worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.Duration("rebuild_interval", cfg.Scheduler.RebuildLeaderboardInterval),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS
	// ─────────────────────────────────────────────────────────────────────────
	redisCfg := redisstore.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	cache, err := redisstore.NewCache(redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer cache.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. PROJECTOR & SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	projector := service.NewLeaderboardProjector(service.LeaderboardProjectorConfig{
		Store:        redisstore.NewLeaderboardStore(cache),
		Profiles:     postgres.NewProfileRepository(dbConn),
		Logger:       log,
		RebuildLimit: cfg.Progression.LeaderboardSize,
	})

	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	sched := scheduler.NewScheduler(schedCfg)

	var schedule scheduler.Schedule = scheduler.NewIntervalSchedule(cfg.Scheduler.RebuildLeaderboardInterval)
	if cfg.Scheduler.LeaderboardCron != "" {
		cron, err := scheduler.ParseCronExpression(cfg.Scheduler.LeaderboardCron)
		if err != nil {
			return fmt.Errorf("invalid SCHEDULER_LEADERBOARD_CRON: %w", err)
		}
		schedule = cron
	}

	rebuildJob := jobs.NewRebuildLeaderboardJob(projector, log, cfg.Scheduler.JobTimeout)
	if err := sched.Register(rebuildJob, schedule); err != nil {
		return fmt.Errorf("failed to register rebuild job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Run one rebuild immediately so a fresh worker repairs the projection
	// without waiting a full interval.
	if _, err := sched.RunNow(ctx, rebuildJob.Name()); err != nil {
		log.Warn("initial rebuild failed", logger.Err(err))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. WAIT FOR SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("projection worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info("received shutdown signal", logger.String("signal", sig.String()))
	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed")
	return nil
}
