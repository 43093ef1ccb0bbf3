// Package app wires configuration, storage and services into one graph
// shared by the server and the admin CLI.
package app

import (
	"arbiter/backend/internal/adjudication"
	"arbiter/backend/internal/appeal"
	"arbiter/backend/internal/casehub"
	"arbiter/backend/internal/config"
	"arbiter/backend/internal/hearing"
	"arbiter/backend/internal/lifecycle"
	"arbiter/backend/internal/localization"
	"arbiter/backend/internal/logging"
	"arbiter/backend/internal/storage"
	"arbiter/backend/internal/verdict"
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// App holds the constructed dependencies.
type App struct {
	Config *config.Config
	Store  storage.Storage
	Redis  *storage.RedisService
	Hub    *casehub.Manager

	Cases    *lifecycle.Service
	Hearings *hearing.Service
	Appeals  *appeal.Controller
	Verdicts *verdict.Service

	logger  *slog.Logger
	closers []func() error
}

// New connects to the configured backends and builds every service.
// With the memory driver no database or redis is contacted and events are
// delivered in-process.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Hub: casehub.NewManager(), logger: logging.New("app")}

	var (
		publisher storage.Publisher = a.Hub
		locker    storage.Locker    = storage.NewMemoryLocker()
	)

	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		a.Store = storage.NewMemoryStore()
		a.logger.Warn("using in-memory storage, data is lost on restart")

	default:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("app: connect postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("app: postgres handle: %w", err)
		}
		a.closers = append(a.closers, sqlDB.Close)

		gs := storage.NewGormStorage(db)
		if err := gs.Migrate(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Store = gs

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: connect redis: %w", err)
		}
		a.Redis = storage.NewRedisService(rdb)
		publisher = a.Redis
		locker = a.Redis
		a.logger.Info("database and redis connections established, migrations complete")
	}

	adj, err := adjudication.NewFromConfig(cfg.Adjudicator, localization.Bundled())
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.logger.Info("adjudicator selected", "adjudicator", adj.Name())

	a.Cases = lifecycle.NewService(a.Store,
		lifecycle.WithPublisher(publisher),
		lifecycle.WithInvitationTTL(cfg.InvitationTTL))
	a.Hearings = hearing.NewService(a.Store, hearing.WithPublisher(publisher))
	a.Appeals = appeal.NewController(a.Store, appeal.WithPublisher(publisher))
	a.Verdicts = verdict.NewService(a.Store, adj,
		verdict.WithPublisher(publisher),
		verdict.WithLocker(locker),
		verdict.WithTimeout(cfg.Adjudicator.Timeout))
	return a, nil
}

// RunHub delivers case events to websocket clients until ctx is done.
// With redis configured it also listens for events from other instances.
func (a *App) RunHub(ctx context.Context) {
	if a.Redis != nil {
		a.Hub.StartPubSubListener(ctx, a.Redis)
	}
	a.Hub.Run(ctx)
}

// Close releases database and redis connections in reverse order.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
