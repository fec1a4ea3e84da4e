// Package main - точка входа для фонового процесса движка достижений.
//
// Worker отвечает за:
// - Инкрементальную оценку предикатов по событиям facts.recorded
// - Периодический полный обход организаций (sweep)
// - Прогрев рейтингов в кеше
// - REST API: коллекция, уведомления, рейтинги, приём фактов
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/config"
	"github.com/alem-hub/achievement-engine/internal/application/command"
	"github.com/alem-hub/achievement-engine/internal/application/eventhandler"
	"github.com/alem-hub/achievement-engine/internal/application/query"
	"github.com/alem-hub/achievement-engine/internal/application/saga"
	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/leaderboard"
	"github.com/alem-hub/achievement-engine/internal/domain/predicate"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/internal/infrastructure/facts"
	"github.com/alem-hub/achievement-engine/internal/infrastructure/messaging"
	"github.com/alem-hub/achievement-engine/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/achievement-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/achievement-engine/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/achievement-engine/internal/infrastructure/scheduler"
	"github.com/alem-hub/achievement-engine/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/alem-hub/achievement-engine/internal/interface/http"
	"github.com/alem-hub/achievement-engine/internal/interface/http/handlers"
	"github.com/alem-hub/achievement-engine/pkg/logger"
	"github.com/alem-hub/achievement-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// storage - леджер и каталог выбранного бэкенда.
type storage struct {
	ledger      achievement.Ledger
	definitions seedableDefinitions
	close       func() error
}

type seedableDefinitions interface {
	achievement.DefinitionRepository
	Seed(ctx context.Context, defs []achievement.Definition) (int, error)
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Level:     cfg.Log.Level,
		Encoding:  cfg.LogEncoding(),
		Output:    os.Stdout,
		AddCaller: true,
	}).With(zap.String("app", cfg.App.Name), zap.String("version", cfg.App.Version))
	defer func() { _ = log.Sync() }()

	log.Info("starting achievement engine worker",
		zap.String("env", string(cfg.App.Environment)),
		zap.String("timezone", cfg.App.Location.String()),
		zap.String("ledger", cfg.Database.LedgerBackend),
		zap.Bool("redis", !cfg.Redis.Disabled),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ И МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := postgres.NewConnection(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		dbConn.Close()
	}()

	migrations := postgres.GetMigrations()
	if cfg.Database.CreateFactSchema {
		migrations = append(migrations, postgres.GetFactSchemaMigrations()...)
	}
	if err := postgres.NewMigrator(dbConn, migrations).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	store, err := openStorage(ctx, cfg, dbConn, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			log.Warn("failed to close ledger storage", zap.Error(err))
		}
	}()

	if cfg.Database.SeedCatalog {
		added, err := store.definitions.Seed(ctx, achievement.DefaultCatalog())
		if err != nil {
			return fmt.Errorf("failed to seed catalog: %w", err)
		}
		log.Info("achievement catalog seeded", zap.Int("added", added))
	}

	factSource := facts.NewGuardedSource(postgres.NewFactSource(dbConn, log), log)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS: КЕШ РЕЙТИНГОВ, БЛОКИРОВКИ, EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	var (
		rankings    leaderboard.RankingCache
		locker      jobs.Locker = jobs.NewLocalLocker()
		bus         eventBus
		cachePinger handlers.Pinger
	)
	localBusCfg := messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: cfg.Engine.EventWorkers,
		Logger:         log,
	}

	if cfg.Redis.Disabled {
		bus = messaging.NewInMemoryEventBus(localBusCfg)
		log.Info("redis disabled, running single-node")
	} else {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		cache, err := redis.NewCache(redisCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer cache.Close()

		if cfg.Features.IsEnabled(config.FeatureRankingCache, nil) {
			rankings = redis.NewRankingCache(cache)
		}
		locker = cache
		cachePinger = cache

		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewGoRedisClient(cache.Client()),
			ChannelName:    cfg.Redis.FactChannel,
			LocalBusConfig: localBusCfg,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		bus = redisBus
		log.Info("redis connection established", zap.String("addr", redisCfg.Addr()))
	}
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ДВИЖОК ОЦЕНКИ И РЕЙТИНГИ
	// ─────────────────────────────────────────────────────────────────────────
	registry := predicate.DefaultRegistry()

	flowCfg := saga.DefaultEvaluationFlowConfig()
	flowCfg.Concurrency = cfg.Engine.Concurrency
	flowCfg.FactTimeout = cfg.Engine.FactTimeout
	flowCfg.CommitTimeout = cfg.Engine.CommitTimeout
	flowCfg.DefaultLocation = cfg.App.Location
	flowCfg.PublishEvents = cfg.Engine.PublishEarned

	flow := saga.NewEvaluationFlow(store.definitions, store.ledger, factSource, registry, bus, log, flowCfg)

	leaderboardHandler := query.NewGetLeaderboardHandler(
		store.ledger,
		store.definitions,
		factSource,
		leaderboard.NewCalculator(cfg.Ranking.GrowthWindow),
		rankings,
		query.LeaderboardConfig{TTL: cfg.Ranking.CacheTTL},
		log,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПОДПИСКИ НА СОБЫТИЯ
	// ─────────────────────────────────────────────────────────────────────────
	factCfg := eventhandler.DefaultFactRecordedConfig()
	factCfg.EvaluationTimeout = cfg.Engine.EventTimeout
	factCfg.DefaultLocation = cfg.App.Location
	onFact := eventhandler.NewOnFactRecordedHandler(flow, registry, rankings, log, factCfg)

	dispatcherCfg := messaging.DefaultDispatcherConfig()
	dispatcherCfg.DeadLetterSize = cfg.Engine.DeadLetterSize
	dispatcherCfg.Logger = log
	dispatcher := messaging.NewDispatcher(bus, dispatcherCfg)
	if err := dispatcher.Register(shared.EventFactRecorded, "on_fact_recorded",
		gateIncremental(cfg.Features, onFact.Handle)); err != nil {
		return fmt.Errorf("failed to register fact handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:     log,
		Timezone:   cfg.App.Location,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})

	if cfg.Scheduler.Enabled {
		sweepCfg := jobs.DefaultSweepAchievementsConfig()
		sweepCfg.Concurrency = cfg.Scheduler.SweepConcurrency
		sweepCfg.LockTTL = cfg.Scheduler.SweepLockTTL
		sweepCfg.Location = cfg.App.Location
		sweepCfg.Retrier = retry.FactSourceRetrier(shared.IsRetryable, func(attempt int, err error, delay time.Duration) {
			log.Warn("fact source unavailable, retrying sweep",
				zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		})

		var invalidator jobs.RankingInvalidator
		if rankings != nil {
			invalidator = rankings
		}
		sweep := jobs.NewSweepAchievementsJob(
			flaggedOrganizations{source: factSource, flags: cfg.Features, feature: config.FeatureScheduledSweep},
			flow, locker, invalidator, log, sweepCfg,
		)
		if err := sched.Register(sweep, cfg.Scheduler.SweepSpec); err != nil {
			return fmt.Errorf("failed to register sweep job: %w", err)
		}

		if cfg.Scheduler.WarmSpec != "" {
			warm := jobs.NewWarmRankingsJob(
				flaggedOrganizations{source: factSource, flags: cfg.Features, feature: config.FeatureRankingWarm},
				leaderboardHandler, log,
			)
			if err := sched.Register(warm, cfg.Scheduler.WarmSpec); err != nil {
				return fmt.Errorf("failed to register warm job: %w", err)
			}
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	var (
		server    *httpserver.Server
		serverErr <-chan error
	)
	if cfg.HTTP.Enabled {
		health := handlers.NewCompositeHealthChecker(cfg.App.Version)
		health.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
		health.AddDegradedCheck("fact_source", handlers.NewBreakerCheck(factSource.Breaker()))
		if cachePinger != nil {
			health.AddDegradedCheck("redis", handlers.NewCacheCheck(cachePinger))
		}

		server = httpserver.NewServer(httpserver.Config{
			Host:         cfg.HTTP.Host,
			Port:         cfg.HTTP.Port,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
			MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
			APIKeys:      cfg.HTTP.APIKeys,
			Version:      cfg.App.Version,
		}, httpserver.Dependencies{
			Collection:    query.NewGetCollectionHandler(store.definitions, store.ledger, flow, log),
			Leaderboard:   leaderboardHandler,
			Unnotified:    query.NewGetUnnotifiedHandler(store.definitions, store.ledger),
			MarkNotify:    command.NewMarkNotifiedHandler(store.ledger, log),
			Definitions:   command.NewUpdateDefinitionHandler(store.definitions, log),
			Evaluator:     flow,
			Facts:         handlers.NewFactWebhook(bus),
			HealthChecker: health,
			Logger:        log,
		})
		if len(cfg.HTTP.APIKeys) == 0 {
			log.Warn("HTTP_API_KEYS is empty, fact ingestion and admin endpoints are closed")
		}
		serverErr = server.StartAsync()
	}

	log.Info("achievement engine worker is running",
		zap.Int("predicates", len(registry.Codes())),
		zap.Bool("scheduler", cfg.Scheduler.Enabled),
		zap.Bool("http", cfg.HTTP.Enabled),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}
	log.Info("received shutdown signal, stopping", zap.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server did not stop cleanly", zap.Error(err))
		}
	}
	if sched.IsRunning() {
		if err := sched.Stop(shutdownCtx); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
			log.Warn("scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if dlq := dispatcher.DeadLetterQueue(); dlq != nil && dlq.Size() > 0 {
		log.Warn("dead letter queue not empty at shutdown", zap.Int("size", dlq.Size()))
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type eventBus interface {
	shared.EventBus
	Close() error
}

// openStorage выбирает бэкенд леджера. Факты всегда читаются из postgres.
func openStorage(ctx context.Context, cfg *config.Config, conn *postgres.Connection, log *zap.Logger) (*storage, error) {
	if cfg.Database.LedgerBackend == config.LedgerSQLite {
		st, err := sqlite.Open(ctx, cfg.Database.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
		}
		return &storage{ledger: st.Ledger(), definitions: st.Definitions(), close: st.Close}, nil
	}
	return &storage{
		ledger:      postgres.NewLedgerRepository(conn),
		definitions: postgres.NewDefinitionRepository(conn),
		close:       func() error { return nil },
	}, nil
}

// gateIncremental пропускает события организаций, для которых инкрементальная
// оценка выключена флагом.
func gateIncremental(flags *config.FeatureFlags, next shared.EventHandler) shared.EventHandler {
	return func(event shared.Event) error {
		fe, err := shared.AsFactRecorded(event)
		if err == nil && !flags.EnabledFor(config.FeatureIncrementalEvaluation, fe.OrganizationID) {
			return nil
		}
		return next(event)
	}
}

// flaggedOrganizations отдаёт только организации, для которых включён feature.
type flaggedOrganizations struct {
	source  jobs.OrganizationLister
	flags   *config.FeatureFlags
	feature string
}

func (f flaggedOrganizations) Organizations(ctx context.Context) ([]string, error) {
	orgs, err := f.source.Organizations(ctx)
	if err != nil {
		return nil, err
	}
	out := orgs[:0]
	for _, org := range orgs {
		if f.flags.EnabledFor(f.feature, org) {
			out = append(out, org)
		}
	}
	return out, nil
}
