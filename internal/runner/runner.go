// Package runner manages a database schema end to end from configuration:
// it opens the SQLite database, reads migrations from the configured
// directory and applies whatever is pending.
package runner

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/example/schema-manager/internal/config"
	"github.com/example/schema-manager/internal/logging"
	"github.com/example/schema-manager/internal/migration"
	"github.com/example/schema-manager/internal/migration/source"
	"github.com/example/schema-manager/internal/persistence/sqlite"
)

// Option customizes the manager built by Run.
type Option func(*migration.Manager)

// WithDataSources registers extra sources, such as code migrations, next to
// the configured directory.
func WithDataSources(sources ...migration.DataSource) Option {
	return func(m *migration.Manager) {
		m.AddDataSource(sources...)
	}
}

// WithIDGenerator replaces the run ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(m *migration.Manager) {
		m.WithIDGenerator(newID)
	}
}

// Run applies pending migrations to the database described by cfg. A migration
// failure is reported through Result.Failure and also returned as an error.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*migration.Result, error) {
	logger = logging.Resolve(ctx, logger).With("component", "runner")
	ctx = logging.ContextWithLogger(ctx, logger)

	action, err := cfg.BootstrapAction()
	if err != nil {
		return nil, err
	}

	schemaPath := cfg.Source.SchemaPath
	if schemaPath != "" {
		schemaPath = filepath.ToSlash(schemaPath)
	}
	src, err := source.NewDir(cfg.Source.Dir, schemaPath, filepath.ToSlash(cfg.Source.MigrationsDir))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open migration source")
	}

	db, err := sqlite.Open(ctx, cfg.SQLite)
	if err != nil {
		warnIfLocked(logger, cfg, err)
		return nil, errors.Wrap(err, "failed to open database")
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("failed to close database", "error", cerr)
		}
	}()

	manager := migration.NewManagerWithLogger(logger).AddDataSource(src)
	for _, opt := range opts {
		opt(manager)
	}

	downgrade, err := manager.IsDowngrade(ctx, db)
	if err != nil {
		warnIfLocked(logger, cfg, err)
		return nil, err
	}
	if downgrade {
		logger.Warn("database is newer than the known migrations", "dsn", cfg.SQLite.DSN)
	}

	result, err := manager.Apply(ctx, db, action)
	if err != nil {
		warnIfLocked(logger, cfg, err)
		return nil, err
	}
	if err := manager.LogStatus(ctx, db); err != nil {
		logger.Warn("failed to read schema status", "error", err)
	}
	if result.Failure != nil {
		warnIfLocked(logger, cfg, result.Failure)
		return result, result.Failure
	}
	return result, nil
}

func warnIfLocked(logger *slog.Logger, cfg config.Config, err error) {
	if errors.Is(err, sqlite.ErrLocked) {
		logger.Warn("database is locked by another connection",
			"dsn", cfg.SQLite.DSN, "busy_timeout", cfg.SQLite.BusyTimeout)
	}
}
