// Package app assembles SkillPath Hub from configuration: storage backends,
// the event bus, and every command and query handler.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillpath/skillpath-hub/config"
	"github.com/skillpath/skillpath-hub/internal/application/command"
	"github.com/skillpath/skillpath-hub/internal/application/eventhandler"
	"github.com/skillpath/skillpath-hub/internal/application/query"
	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/gating"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
	"github.com/skillpath/skillpath-hub/internal/infrastructure/messaging"
	"github.com/skillpath/skillpath-hub/internal/infrastructure/persistence/memory"
	"github.com/skillpath/skillpath-hub/internal/infrastructure/persistence/postgres"
	"github.com/skillpath/skillpath-hub/internal/infrastructure/persistence/redis"
	"github.com/skillpath/skillpath-hub/pkg/logger"
	"github.com/skillpath/skillpath-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER SETS
// ══════════════════════════════════════════════════════════════════════════════

// Commands groups the write-side handlers.
type Commands struct {
	MarkLesson   *command.MarkLessonCompleteHandler
	AnswerLesson *command.AnswerLessonHandler
	PartScore    *command.UpdatePartScoreHandler
	PartQuiz     *command.SubmitPartQuizHandler
	ResetCourse  *command.ResetCourseHandler
	Import       *command.ImportProgressHandler
	Claim        *command.ClaimCredentialHandler
	Registry     *command.CourseRegistryHandler
	Soulbound    *command.SoulboundHandler
}

// Queries groups the read-side handlers.
type Queries struct {
	CourseProgress *query.GetCourseProgressHandler
	Eligibility    *query.CheckEligibilityHandler
	Export         *query.ExportProgressHandler
	Statistics     *query.GetStatisticsHandler
	Summary        *query.GetSummaryHandler
	Credentials    *query.GetUserCredentialsHandler
	Metadata       *query.GetCredentialMetadataHandler
	Ledger         *query.LedgerReadHandler
}

// eventBus is what the app needs from either bus implementation.
type eventBus interface {
	shared.EventBus
	Metrics() *messaging.EventBusMetrics
	Close() error
}

// ══════════════════════════════════════════════════════════════════════════════
// APP
// ══════════════════════════════════════════════════════════════════════════════

// App is a fully wired SkillPath Hub instance.
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Catalog  *catalog.Catalog
	Engine   *gating.Engine
	Progress progress.Repository
	Ledger   credential.Ledger
	Events   shared.EventBus

	Commands Commands
	Queries  Queries

	db    *postgres.Connection
	cache *redis.Cache
	bus   eventBus

	partFailures *eventhandler.OnPartFailedHandler
}

// New builds an App. Connections opened here are released by Close, also
// when New itself fails half-way.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *App, err error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Catalog, err = loadCatalog(cfg.Catalog); err != nil {
		return nil, err
	}
	a.Engine = gating.NewEngine(a.Catalog)
	log.Info("catalog loaded", logger.Int("courses", len(a.Catalog.CourseIDs())))

	if err = a.connect(ctx); err != nil {
		return nil, err
	}
	if err = a.buildStores(); err != nil {
		return nil, err
	}
	if err = a.buildEventBus(); err != nil {
		return nil, err
	}
	a.buildHandlers()
	if err = a.subscribeHandlers(); err != nil {
		return nil, err
	}

	if cfg.Ledger.RegisterCatalogCourses {
		seeded, err := a.Commands.Registry.RegisterCatalog(ctx, a.Catalog, cfg.Ledger.ImageBaseURI)
		if err != nil {
			return nil, fmt.Errorf("register catalog courses: %w", err)
		}
		log.Info("course registry seeded",
			logger.Int("added", len(seeded.Added)),
			logger.Int("already_registered", len(seeded.Skipped)))
	}

	return a, nil
}

func loadCatalog(cfg config.CatalogConfig) (*catalog.Catalog, error) {
	if cfg.Path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.Path, err)
	}
	return cat, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Infrastructure
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	if cfg.NeedsPostgres() {
		a.Log.Info("connecting to database...")
		pgCfg := PostgresConfig(cfg.Database)
		connect := retry.DatabaseRetrier().With(
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				a.Log.Warn("database not reachable, retrying",
					logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
			}),
		)
		conn, err := retry.DoWithData(ctx, connect, func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.NewConnection(ctx, pgCfg)
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = conn

		if cfg.Database.AutoMigrate {
			ran, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			a.Log.Info("migrations completed", logger.Int("applied", ran))
		}
	}

	if cfg.NeedsRedis() {
		a.Log.Info("connecting to Redis...")
		cache, err := redis.NewCache(RedisConfig(cfg.Redis))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.cache = cache
	}

	return nil
}

func (a *App) buildStores() error {
	switch a.Config.Storage.ProgressBackend {
	case config.BackendPostgres:
		a.Progress = postgres.NewProgressRepository(a.db, a.Log)
	case config.BackendRedis:
		a.Progress = redis.NewProgressStore(a.cache, a.Log)
	case config.BackendMemory:
		a.Progress = memory.NewProgressStore(a.Log)
	default:
		return fmt.Errorf("unknown progress backend %q", a.Config.Storage.ProgressBackend)
	}

	switch a.Config.Storage.LedgerBackend {
	case config.BackendPostgres:
		a.Ledger = postgres.NewCredentialLedger(a.db)
	case config.BackendMemory:
		a.Ledger = memory.NewLedger()
	default:
		return fmt.Errorf("unknown ledger backend %q", a.Config.Storage.LedgerBackend)
	}

	a.Log.Info("storage ready",
		logger.String("progress_backend", a.Config.Storage.ProgressBackend),
		logger.String("ledger_backend", a.Config.Storage.LedgerBackend))
	return nil
}

func (a *App) buildEventBus() error {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = a.Log

	if a.Config.Events.RedisFanOut {
		bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewCacheClient(a.cache),
			ChannelName:    a.Config.Events.Channel,
			LocalBusConfig: local,
			Logger:         a.Log,
		})
		if err != nil {
			return fmt.Errorf("start redis event bus: %w", err)
		}
		a.bus = bus
	} else {
		a.bus = messaging.NewInMemoryEventBus(local)
	}
	a.Events = a.bus

	return a.bus.SubscribeAll(eventhandler.NewActivityLogHandler(a.Log, eventhandler.DefaultActivityLogConfig()).Handle)
}

// subscribeHandlers attaches the reactions that need the query side.
func (a *App) subscribeHandlers() error {
	completed := eventhandler.NewOnCourseCompletedHandler(a.Queries.Eligibility, nil, a.Log,
		eventhandler.DefaultCourseCompletedConfig())
	if err := a.bus.Subscribe(shared.EventCourseCompleted, completed.Handle); err != nil {
		return err
	}

	a.partFailures = eventhandler.NewOnPartFailedHandler(nil, a.Log, eventhandler.DefaultPartFailedConfig())
	for _, t := range []shared.EventType{shared.EventPartScored, shared.EventProgressReset} {
		if err := a.bus.Subscribe(t, a.partFailures.Handle); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) buildHandlers() {
	cfg := a.Config
	features := cfg.Features

	eligibility := query.NewCheckEligibilityHandler(a.Progress, a.Ledger, a.Engine)
	marker := command.NewMarkLessonCompleteHandler(a.Progress, a.Engine, features, a.Events)
	scores := command.NewUpdatePartScoreHandler(a.Progress, a.Engine, a.Events)

	a.Commands = Commands{
		MarkLesson:   marker,
		AnswerLesson: command.NewAnswerLessonHandler(a.Catalog, marker),
		PartScore:    scores,
		PartQuiz:     command.NewSubmitPartQuizHandler(scores, a.Progress, a.Engine, features),
		ResetCourse:  command.NewResetCourseHandler(a.Progress, a.Catalog, a.Events),
		Import:       command.NewImportProgressHandler(a.Progress, a.Catalog, features, a.Events),
		Claim: command.NewClaimCredentialHandler(a.Ledger, eligibility, features, a.Events, a.Log,
			command.ClaimCredentialHandlerConfig{MaxAttempts: cfg.Ledger.ClaimMaxAttempts}),
		Registry:  command.NewCourseRegistryHandler(a.Ledger, cfg.Auth.AdminIdentity, a.Events),
		Soulbound: command.NewSoulboundHandler(a.Ledger),
	}

	a.Queries = Queries{
		CourseProgress: query.NewGetCourseProgressHandler(a.Progress, a.Engine),
		Eligibility:    eligibility,
		Export:         query.NewExportProgressHandler(a.Progress, a.Catalog),
		Statistics:     query.NewGetStatisticsHandler(a.Progress, a.Catalog),
		Summary:        query.NewGetSummaryHandler(a.Progress, a.Catalog),
		Credentials:    query.NewGetUserCredentialsHandler(a.Ledger),
		Metadata:       query.NewGetCredentialMetadataHandler(a.Ledger),
		Ledger:         query.NewLedgerReadHandler(a.Ledger),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Health pings every external dependency. The map holds "ok" or the error
// text per component; the error is non-nil when any component is down.
func (a *App) Health(ctx context.Context) (map[string]string, error) {
	status := map[string]string{"catalog": "ok"}
	var errs []error

	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			status["postgres"] = err.Error()
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		} else {
			status["postgres"] = "ok"
		}
	}
	if a.cache != nil {
		if err := a.cache.Ping(ctx); err != nil {
			status["redis"] = err.Error()
			errs = append(errs, fmt.Errorf("redis: %w", err))
		} else {
			status["redis"] = "ok"
		}
	}

	if snap, ok := a.EventMetrics(); ok {
		status["events"] = fmt.Sprintf("published=%d handler_failures=%d", snap.TotalPublished, snap.HandlerFailures)
	}

	return status, errors.Join(errs...)
}

// EventMetrics returns the event bus counters, if the bus keeps any.
func (a *App) EventMetrics() (messaging.EventBusMetricsSnapshot, bool) {
	if a.bus == nil || a.bus.Metrics() == nil {
		return messaging.EventBusMetricsSnapshot{}, false
	}
	return a.bus.Metrics().Snapshot(), true
}

// DB returns the PostgreSQL connection, or nil when no backend uses it.
func (a *App) DB() *postgres.Connection {
	return a.db
}

// Close releases the event bus and every connection. Safe to call twice;
// the second call returns nil.
func (a *App) Close() error {
	var errs []error
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
		a.bus = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		a.cache = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	return errors.Join(errs...)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// PostgresConfig maps the database section onto pool settings.
func PostgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig(c.URL)
	if c.MaxOpenConns > 0 {
		pc.MaxConns = int32(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 && int32(c.MaxIdleConns) <= pc.MaxConns {
		pc.MinConns = int32(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = c.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime > 0 {
		pc.MaxConnIdleTime = c.ConnMaxIdleTime
	}
	return pc
}

// RedisConfig maps the redis section onto client settings.
func RedisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	if c.Host != "" {
		rc.Host = c.Host
	}
	if c.Port > 0 {
		rc.Port = c.Port
	}
	rc.Password = c.Password
	rc.DB = c.DB
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		rc.MinIdleConns = c.MinIdleConns
	}
	if c.DialTimeout > 0 {
		rc.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		rc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		rc.WriteTimeout = c.WriteTimeout
	}
	rc.KeyPrefix = c.KeyPrefix
	return rc
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.Observability.LogFormat == string(logger.FormatConsole) {
		opts.Format = logger.FormatConsole
	}
	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}
