// Package bootstrap brings up the logger and whichever storage backend the
// configuration selects.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/evabot/core/config"
	coredatabase "github.com/m3rciful/evabot/core/database"
	"github.com/m3rciful/evabot/core/logger"
	"github.com/m3rciful/evabot/core/storage/redisstore"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, coredatabase.Config) error
	OpenRedis  func(ctx context.Context, url string) (*redis.Client, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Storage Storage
}

// Close releases every connection opened by Run.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Storage.DB != nil {
		errs = append(errs, r.Storage.DB.Close())
	}
	if r.Storage.Redis != nil {
		errs = append(errs, r.Storage.Redis.Close())
	}
	return errors.Join(errs...)
}

// Run initializes the logger and opens the storage backend. SQL backends are
// migrated before Run returns.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	start := time.Now()
	backend := opts.Config.Storage.Backend
	res := &Result{Storage: Storage{Backend: backend}}

	switch backend {
	case coreconfig.BackendSQL:
		db, err := openSQL(ctx, opts)
		if err != nil {
			return nil, err
		}
		res.Storage.DB = db
	case coreconfig.BackendRedis:
		open := opts.OpenRedis
		if open == nil {
			open = redisstore.Open
		}
		client, err := open(ctx, opts.Config.Storage.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: redis initialization failed: %w", err)
		}
		res.Storage.Redis = client
	}

	logger.Info(ctx, logger.CompApp, "storage",
		slog.String("status", "ok"),
		slog.String("backend", backend),
		slog.Duration("took", logger.Took(start)),
	)
	return res, nil
}

func openSQL(ctx context.Context, opts Options) (*sqlx.DB, error) {
	dbCfg := opts.Database
	if err := dbCfg.Normalize(); err != nil {
		return nil, fmt.Errorf("bootstrap: database config: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, dbCfg); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	return db, nil
}
