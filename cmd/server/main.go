// Package main is the entry point for the progression engine API server.
//
// The server owns the write path (awards, enrollments, progress) and the
// read path (profiles, history, leaderboard) behind one JSON API. The
// architecture follows Clean Architecture and DDD:
// - Domain: pure accounting rules with no external dependencies
// - Application: use case orchestration (Commands/Queries)
// - Infrastructure: repository implementations, event bus, projections
// - Interface: HTTP endpoints
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/skillforge/skillforge-engine/config"
	"github.com/skillforge/skillforge-engine/internal/application/command"
	"github.com/skillforge/skillforge-engine/internal/application/query"
	"github.com/skillforge/skillforge-engine/internal/domain/leaderboard"
	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/catalog"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/messaging"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/persistence/memory"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/persistence/postgres"
	redisstore "github.com/skillforge/skillforge-engine/internal/infrastructure/persistence/redis"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/scheduler"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/scheduler/jobs"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/service"
	httpserver "github.com/skillforge/skillforge-engine/internal/interface/http"
	"github.com/skillforge/skillforge-engine/internal/interface/http/handlers"
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

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})
	timeutil.SetCanonicalTZ(cfg.App.Location)

	log.Info("starting progression engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.Bool("debug", cfg.App.Debug),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("running database migrations")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	profileRepo := postgres.NewProfileRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)
	enrollmentRepo := postgres.NewEnrollmentRepository(dbConn)
	progressRepo := postgres.NewProgressRepository(dbConn)
	achievementRepo := postgres.NewAchievementRepository(dbConn)
	awardStore := postgres.NewAwardStore(dbConn, profileRepo, ledgerRepo)

	if err := achievementRepo.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("failed to seed achievements: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. LEADERBOARD STORE (Redis, or in-memory when disabled)
	// ─────────────────────────────────────────────────────────────────────────
	var lbStore leaderboard.Store
	var profileCache progression.ProfileCache
	var cacheCheck handlers.HealthCheckFunc
	var redisCache *redisstore.Cache

	if cfg.Redis.Disabled {
		log.Warn("redis disabled, using in-memory leaderboard store")
		lbStore = memory.NewLeaderboardStore()
	} else {
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

		redisCache, err = redisstore.NewCache(redisCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisCache.Close()

		lbStore = redisstore.NewLeaderboardStore(redisCache)
		profileCache = redisstore.NewProfileCache(redisCache)
		cacheCheck = handlers.NewCacheCheck(redisCache)
		log.Info("redis connection established", logger.String("addr", redisCfg.Addr()))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. CONTENT CATALOG
	// ─────────────────────────────────────────────────────────────────────────
	var contentProvider *catalog.StaticProvider
	if cfg.Content.CatalogPath != "" {
		contentProvider, err = catalog.NewStaticProviderFromFile(cfg.Content.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load content catalog: %w", err)
		}
		log.Info("content catalog loaded",
			logger.String("path", cfg.Content.CatalogPath),
			logger.Int("courses", contentProvider.CourseCount()),
		)
	} else {
		log.Warn("no content catalog configured, enrollment endpoints will reject unknown courses")
		contentProvider = catalog.NewStaticProvider(nil, nil, nil)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. EVENT BUS, DISPATCHER & PROJECTOR
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log

	var eventBus shared.EventBus
	if cfg.Messaging.EventBusBackend == "redis" {
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:  redisstore.NewEventBusPubSub(redisCache),
			Channel: cfg.Messaging.EventBusChannel,
			Local:   busCfg,
			Logger:  log,
		})
		if err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		defer func() {
			log.Info("closing event bus")
			_ = redisBus.Close()
		}()
		eventBus = redisBus
		log.Info("cross-instance event bus enabled",
			logger.String("channel", cfg.Messaging.EventBusChannel))
	} else {
		memBus := messaging.NewInMemoryEventBus(busCfg)
		defer func() {
			log.Info("closing event bus")
			_ = memBus.Close()
		}()
		eventBus = memBus
	}

	projector := service.NewLeaderboardProjector(service.LeaderboardProjectorConfig{
		Store:        lbStore,
		Profiles:     profileRepo,
		Logger:       log,
		RebuildLimit: cfg.Progression.LeaderboardSize,
	})

	// Projection handlers hang off the dispatcher so failures are retried
	// and dead-lettered instead of silently dropped.
	dispatcher := messaging.NewDispatcher(messaging.DispatcherConfig{
		Bus:    eventBus,
		Logger: log,
	})
	dispatcher.Use(messaging.RecoveryMiddleware(log))
	projectionEnabled := cfg.Features.IsEnabled(config.FeatureLeaderboardProjection, nil)
	if projectionEnabled {
		if err := dispatcher.RegisterSync(shared.EventXPAwarded, "leaderboard_projector", projector.HandleEvent); err != nil {
			return fmt.Errorf("failed to register projector: %w", err)
		}
	} else {
		log.Warn("leaderboard projection disabled by feature flag")
	}
	if profileCache != nil {
		invalidator := service.NewProfileCacheInvalidator(profileCache, log)
		if err := dispatcher.RegisterSync(shared.EventXPAwarded, "profile_cache_invalidator", invalidator.HandleEvent); err != nil {
			return fmt.Errorf("failed to register cache invalidator: %w", err)
		}
	}
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer dispatcher.Stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	awardCfg := command.AwardXPHandlerConfig{
		Limits: progression.RateLimits{
			HourlyCap: cfg.Progression.HourlyXPCap,
			DailyCap:  cfg.Progression.DailyXPCap,
		},
	}
	if !cfg.Features.IsEnabled(config.FeatureProgressionRateGuard, nil) {
		log.Warn("rate guard disabled by feature flag, rolling XP caps are not enforced")
		awardCfg.DisableRateGuard = true
	}
	awardHandler := command.NewAwardXPHandler(
		awardStore,
		achievementRepo,
		progression.NewRollingCounter(),
		eventBus,
		log,
		awardCfg,
	)
	completeLessonHandler := command.NewCompleteLessonHandler(
		contentProvider, enrollmentRepo, progressRepo, awardHandler, eventBus, log)
	completeTaskHandler := command.NewCompleteTaskHandler(
		contentProvider, enrollmentRepo, progressRepo, awardHandler, eventBus, log)
	enrollHandler := command.NewEnrollHandler(contentProvider, enrollmentRepo, eventBus, log)
	unenrollHandler := command.NewUnenrollHandler(enrollmentRepo, eventBus, log)

	getProfileHandler := query.NewGetProfileHandler(profileRepo, achievementRepo, profileCache)
	getXPHistoryHandler := query.NewGetXPHistoryHandler(ledgerRepo)
	getEnrollmentHandler := query.NewGetEnrollmentHandler(enrollmentRepo, progressRepo)
	listEnrollmentsHandler := query.NewListEnrollmentsHandler(enrollmentRepo)
	getLeaderboardHandler := query.NewGetLeaderboardHandler(lbStore)
	getUserRankHandler := query.NewGetUserRankHandler(lbStore)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	if cacheCheck != nil {
		healthChecker.AddCheck("cache", cacheCheck)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.RequestTimeout = cfg.HTTP.RequestTimeout
	httpCfg.APIKeys = cfg.HTTP.APIKeys

	server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		AwardXPHandler:        awardHandler,
		CompleteLessonHandler: completeLessonHandler,
		CompleteTaskHandler:   completeTaskHandler,
		EnrollHandler:         enrollHandler,
		UnenrollHandler:       unenrollHandler,

		GetProfileHandler:      getProfileHandler,
		GetXPHistoryHandler:    getXPHistoryHandler,
		GetEnrollmentHandler:   getEnrollmentHandler,
		ListEnrollmentsHandler: listEnrollmentsHandler,
		GetLeaderboardHandler:  getLeaderboardHandler,
		GetUserRankHandler:     getUserRankHandler,

		Logger:        log,
		HealthChecker: healthChecker,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 12. SCHEDULER (periodic projection repair)
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled && projectionEnabled {
		schedCfg := scheduler.DefaultSchedulerConfig()
		schedCfg.Logger = log
		sched = scheduler.NewScheduler(schedCfg)

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
		defer func() {
			log.Info("stopping scheduler")
			_ = sched.Stop()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 13. RUN & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()
	log.Info("progression engine is running", logger.String("address", server.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("server error", logger.Err(err))
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	log.Info("shutting down", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed")
	return nil
}
