package migration

import (
	"context"
	"database/sql"
	"encoding/hex"
	"log/slog"
	"reflect"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/example/schema-manager/internal/logging"
)

const createTableSQL = "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER UNIQUE NOT NULL)"

// Manager computes and applies pending migrations from a set of DataSources.
// A Manager is not safe for concurrent use, and only one ManageSchema call may
// run against a database at a time.
type Manager struct {
	sources []DataSource
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Result describes one Apply run.
type Result struct {
	RunID    string
	Action   BootstrapAction
	Pending  []Migration
	Applied  []Migration
	Failure  *MigrationError // First migration that failed, nil when all pending migrations applied
	Duration time.Duration
}

// Count returns the number of migrations applied.
func (r *Result) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Applied)
}

// Status summarizes the tracking state of a database.
type Status struct {
	HasTable        bool
	OriginVersion   int64
	CurrentVersion  int64
	AppliedVersions []int64
	Pending         []Migration
	Downgrade       bool
}

// NewManager returns a Manager that logs through slog.Default.
func NewManager() *Manager {
	return NewManagerWithLogger(nil)
}

// NewManagerWithLogger returns a Manager that logs through logger unless the
// context carries one.
func NewManagerWithLogger(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// WithClock replaces the time source used for run timing.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// WithIDGenerator replaces the generator used for run IDs.
func (m *Manager) WithIDGenerator(newID func() string) *Manager {
	if newID != nil {
		m.newID = newID
	}
	return m
}

// AddDataSource adds sources to the set. Adding the same source again is a
// no-op. Sources are consulted in the order they were first added.
func (m *Manager) AddDataSource(sources ...DataSource) *Manager {
	for _, ds := range sources {
		if ds == nil || m.hasDataSource(ds) {
			continue
		}
		m.sources = append(m.sources, ds)
	}
	return m
}

// hasDataSource compares by identity. Sources whose dynamic type is not
// comparable are never considered duplicates.
func (m *Manager) hasDataSource(ds DataSource) bool {
	typ := reflect.TypeOf(ds)
	if !typ.Comparable() {
		return false
	}
	for _, existing := range m.sources {
		if reflect.TypeOf(existing) == typ && sameSource(existing, ds) {
			return true
		}
	}
	return false
}

// sameSource compares two sources of one type. A struct whose interface field
// holds a slice or map passes Comparable but panics here; such values are
// treated as distinct.
func sameSource(a, b DataSource) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// HasSchema reports whether any data source has a baseline schema.
func (m *Manager) HasSchema() bool {
	for _, ds := range m.sources {
		if ds.HasSchema() {
			return true
		}
	}
	return false
}

// Schema returns the first baseline schema found in the data source set, or
// nil when none has one.
func (m *Manager) Schema() (*Schema, error) {
	if len(m.sources) == 0 {
		return nil, ErrNoDataSources
	}
	for _, ds := range m.sources {
		if ds.HasSchema() {
			return ds.Schema(), nil
		}
	}
	return nil, nil
}

// Migrations returns the union of all sources' migrations, deduplicated by
// version and sorted ascending.
func (m *Manager) Migrations() ([]Migration, error) {
	if len(m.sources) == 0 {
		return nil, ErrNoDataSources
	}

	seen := make(map[int64]struct{})
	var all []Migration
	for _, ds := range m.sources {
		migrations, err := ds.Migrations()
		if err != nil {
			return nil, errors.Wrap(err, "failed to enumerate migrations")
		}
		for _, mig := range migrations {
			if _, ok := seen[mig.Version()]; ok {
				continue
			}
			seen[mig.Version()] = struct{}{}
			all = append(all, mig)
		}
	}

	slices.SortFunc(all, Migration.Compare)
	return all, nil
}

// HasMigrationsTable reports whether the tracking table exists.
func (m *Manager) HasMigrationsTable(ctx context.Context, db Database) (bool, error) {
	query, args, err := sq.Select("1").
		From("sqlite_master").
		Where("type = ?", "table").
		Where("name = ?", TableName).
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "failed to build catalog query")
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return false, NewDatabaseError(query, "check tracking table", err)
	}
	defer rows.Close()

	exists := rows.Next()
	if err := rows.Err(); err != nil {
		return false, NewDatabaseError(query, "check tracking table", err)
	}
	return exists, nil
}

// CreateMigrationsTable creates the tracking table if it does not exist.
func (m *Manager) CreateMigrationsTable(ctx context.Context, db Database) error {
	if err := db.Exec(ctx, createTableSQL); err != nil {
		return NewDatabaseError(createTableSQL, "create tracking table", err)
	}
	return nil
}

// ApplySchema executes the baseline schema. It does not create or seed the
// tracking table; the schema script is expected to.
func (m *Manager) ApplySchema(ctx context.Context, db Database) error {
	if !m.HasSchema() {
		return ErrNoSchema
	}
	schema, err := m.Schema()
	if err != nil {
		return err
	}

	script, err := schema.Content().Load()
	if err != nil {
		return errors.Wrapf(err, "failed to load schema %s", schema.Name())
	}
	m.log(ctx, "apply_schema").Info("applying baseline schema",
		"schema", schema.Name(), "checksum", Checksum(script))

	if err := ExecuteScript(ctx, db, script); err != nil {
		return errors.Wrapf(err, "failed to apply schema %s", schema.Name())
	}
	return nil
}

// OriginVersion returns the lowest tracked version, or NoVersions when the
// tracking table is empty.
func (m *Manager) OriginVersion(ctx context.Context, db Database) (int64, error) {
	return m.queryVersion(ctx, db, sq.Select("MIN(version)").From(TableName), "read origin version")
}

// CurrentVersion returns the highest tracked version, or NoVersions when the
// tracking table is empty.
func (m *Manager) CurrentVersion(ctx context.Context, db Database) (int64, error) {
	return m.queryVersion(ctx, db, sq.Select("MAX(version)").From(TableName), "read current version")
}

func (m *Manager) queryVersion(ctx context.Context, db Database, builder sq.SelectBuilder, operation string) (int64, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return NoVersions, errors.Wrap(err, "failed to build version query")
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return NoVersions, trackingQueryError(query, operation, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return NoVersions, trackingQueryError(query, operation, err)
		}
		return NoVersions, nil
	}

	var version sql.NullInt64
	if err := rows.Scan(&version); err != nil {
		return NoVersions, NewDatabaseError(query, operation, err)
	}
	if !version.Valid {
		return NoVersions, nil
	}
	return version.Int64, nil
}

// AppliedVersions returns every tracked version in ascending order.
func (m *Manager) AppliedVersions(ctx context.Context, db Database) ([]int64, error) {
	query, args, err := sq.Select("version").From(TableName).OrderBy("version").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build applied versions query")
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, trackingQueryError(query, "read applied versions", err)
	}
	defer rows.Close()

	versions := make([]int64, 0)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, NewDatabaseError(query, "scan applied version", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, trackingQueryError(query, "read applied versions", err)
	}
	return versions, nil
}

// InsertVersion records version as applied.
func (m *Manager) InsertVersion(ctx context.Context, db Database, version int64) error {
	if _, err := db.Insert(ctx, TableName, map[string]any{"version": version}); err != nil {
		return trackingQueryError("INSERT INTO "+TableName, "record version", err)
	}
	return nil
}

// PendingMigrations returns the known migrations that still need to run, in
// ascending order. Without a tracking table every known migration is pending.
// Otherwise migrations at or below the origin version are assumed to be part of
// the baseline the database was built from and are skipped, as are migrations
// already tracked.
func (m *Manager) PendingMigrations(ctx context.Context, db Database) ([]Migration, error) {
	all, err := m.Migrations()
	if err != nil {
		return nil, err
	}

	hasTable, err := m.HasMigrationsTable(ctx, db)
	if err != nil {
		return nil, err
	}
	if !hasTable {
		return all, nil
	}

	origin, err := m.OriginVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	versions, err := m.AppliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	applied := make(map[int64]struct{}, len(versions))
	for _, v := range versions {
		applied[v] = struct{}{}
	}

	pending := make([]Migration, 0, len(all))
	for _, mig := range all {
		if mig.Version() <= origin {
			continue
		}
		if _, ok := applied[mig.Version()]; ok {
			continue
		}
		pending = append(pending, mig)
	}
	return pending, nil
}

// IsDowngrade reports whether the database's current version is unknown to
// this manager, meaning a newer migration set has already been applied to it.
// A database without tracked versions is never a downgrade.
func (m *Manager) IsDowngrade(ctx context.Context, db Database) (bool, error) {
	hasTable, err := m.HasMigrationsTable(ctx, db)
	if err != nil || !hasTable {
		return false, err
	}

	current, err := m.CurrentVersion(ctx, db)
	if err != nil {
		return false, err
	}
	if current == NoVersions {
		return false, nil
	}

	migrations, err := m.Migrations()
	if err != nil {
		return false, err
	}
	for _, mig := range migrations {
		if mig.Version() == current {
			return false, nil
		}
	}
	return true, nil
}

// Status gathers the tracking state of db.
func (m *Manager) Status(ctx context.Context, db Database) (*Status, error) {
	status := &Status{OriginVersion: NoVersions, CurrentVersion: NoVersions}

	hasTable, err := m.HasMigrationsTable(ctx, db)
	if err != nil {
		return nil, err
	}
	status.HasTable = hasTable

	if hasTable {
		if status.OriginVersion, err = m.OriginVersion(ctx, db); err != nil {
			return nil, err
		}
		if status.CurrentVersion, err = m.CurrentVersion(ctx, db); err != nil {
			return nil, err
		}
		if status.AppliedVersions, err = m.AppliedVersions(ctx, db); err != nil {
			return nil, err
		}
		if status.Downgrade, err = m.IsDowngrade(ctx, db); err != nil {
			return nil, err
		}
	}

	if status.Pending, err = m.PendingMigrations(ctx, db); err != nil {
		return nil, err
	}
	return status, nil
}

// LogStatus logs the tracking state of db.
func (m *Manager) LogStatus(ctx context.Context, db Database) error {
	status, err := m.Status(ctx, db)
	if err != nil {
		return err
	}

	logger := m.log(ctx, "status")
	if !status.HasTable {
		logger.Info("database is not managed yet", "pending_count", len(status.Pending))
		return nil
	}
	logger.Info("database schema status",
		"origin_version", status.OriginVersion,
		"current_version", status.CurrentVersion,
		"applied_count", len(status.AppliedVersions),
		"pending_count", len(status.Pending),
		"downgrade", status.Downgrade,
	)
	return nil
}

// ManageSchema bootstraps db if needed and applies pending migrations. It
// returns the number of migrations applied. A failing migration halts the run
// without returning an error; use Apply to find out which migration failed.
func (m *Manager) ManageSchema(ctx context.Context, db Database, action BootstrapAction) (int, error) {
	result, err := m.Apply(ctx, db, action)
	if err != nil {
		return 0, err
	}
	return result.Count(), nil
}

// Apply runs the same algorithm as ManageSchema and reports the details.
//
// Everything runs in one outer transaction. When the tracking table is
// missing, action is performed once. Each pending migration then runs in its
// own inner transaction together with the insert of its version. The first
// migration that fails is rolled back and stops the run; migrations applied
// before it stay applied and the outer transaction is still committed.
//
// When the database itself abandons the outer transaction while a migration
// fails, nothing from the run can be kept and Apply returns an error matching
// ErrTransactionAborted.
func (m *Manager) Apply(ctx context.Context, db Database, action BootstrapAction) (*Result, error) {
	if len(m.sources) == 0 {
		return nil, ErrNoDataSources
	}

	result := &Result{RunID: m.newID(), Action: action}
	logger := m.log(ctx, "manage_schema", "run_id", result.RunID)
	started := m.now()

	if err := db.BeginTransaction(ctx); err != nil {
		return nil, NewDatabaseError("", "begin transaction", err)
	}

	if err := m.applyPending(ctx, db, action, result, logger); err != nil {
		if !errors.Is(err, ErrTransactionAborted) {
			if endErr := db.EndTransaction(ctx); endErr != nil {
				logger.Error("failed to roll back outer transaction", "error", endErr)
			}
		}
		logger.Error("schema management aborted", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}

	db.SetTransactionSuccessful()
	if err := db.EndTransaction(ctx); err != nil {
		logger.Error("failed to commit outer transaction", "error", err)
		return nil, NewDatabaseError("", "commit transaction", err)
	}

	result.Duration = m.now().Sub(started)
	logger.Info("schema management finished",
		"applied_count", len(result.Applied),
		"pending_count", len(result.Pending),
		"halted", result.Failure != nil,
		"duration", result.Duration,
	)
	return result, nil
}

func (m *Manager) applyPending(ctx context.Context, db Database, action BootstrapAction, result *Result, logger *slog.Logger) error {
	if err := m.bootstrap(ctx, db, action, logger); err != nil {
		return err
	}

	pending, err := m.PendingMigrations(ctx, db)
	if err != nil {
		return err
	}
	result.Pending = pending
	if len(pending) == 0 {
		logger.Info("no pending migrations")
		return nil
	}
	logger.Info("applying pending migrations", "pending_count", len(pending))

	for i, mig := range pending {
		migLogger := logger.With("version", mig.Version(), "description", mig.Description())
		migLogger.Info("applying migration", "position", i+1, "of", len(pending))

		started := m.now()
		failure, err := m.applyMigration(ctx, db, mig, migLogger)
		if err != nil {
			return err
		}
		if failure != nil {
			result.Failure = failure
			migLogger.Error("migration failed, halting",
				"operation", failure.Operation,
				"error", failure.Err,
				"error_kind", ErrorKind(failure.Err),
				"remaining", len(pending)-i,
			)
			break
		}
		result.Applied = append(result.Applied, mig)
		migLogger.Info("migration applied", "duration", m.now().Sub(started))
	}
	return nil
}

func (m *Manager) bootstrap(ctx context.Context, db Database, action BootstrapAction, logger *slog.Logger) error {
	hasTable, err := m.HasMigrationsTable(ctx, db)
	if err != nil {
		return err
	}
	if hasTable {
		return nil
	}

	logger.Info("tracking table not found, bootstrapping", "action", action.String())
	switch action {
	case BootstrapApplySchema:
		return m.ApplySchema(ctx, db)
	case BootstrapCreateMigrationsTable:
		return m.CreateMigrationsTable(ctx, db)
	}
	return nil
}

// applyMigration runs mig and records its version inside an inner
// transaction. The transaction is committed only when both steps succeed. A
// failure confined to the inner transaction is returned as a MigrationError;
// the second result is set only when the outer transaction is lost as well.
func (m *Manager) applyMigration(ctx context.Context, db Database, mig Migration, logger *slog.Logger) (*MigrationError, error) {
	if err := db.BeginTransaction(ctx); err != nil {
		return NewMigrationError(mig, "begin transaction", err), nil
	}

	failure := m.runMigration(ctx, db, mig, logger)
	if failure == nil {
		if err := m.InsertVersion(ctx, db, mig.Version()); err != nil {
			failure = NewMigrationError(mig, "record version", err)
		}
	}
	if failure == nil {
		db.SetTransactionSuccessful()
	}

	err := db.EndTransaction(ctx)
	switch {
	case err == nil:
		return failure, nil
	case errors.Is(err, ErrTransactionAborted):
		if failure != nil {
			err = errors.Wrapf(err, "%s failed with %v", failure.Operation, failure.Err)
		}
		return nil, NewMigrationError(mig, "end transaction", err)
	case failure == nil:
		return NewMigrationError(mig, "commit transaction", err), nil
	}
	logger.Error("failed to roll back migration", "error", err)
	return failure, nil
}

func (m *Manager) runMigration(ctx context.Context, db Database, mig Migration, logger *slog.Logger) *MigrationError {
	if mig.IsCode() {
		if err := mig.apply(ctx, db); err != nil {
			return NewMigrationError(mig, "execute code migration", err)
		}
		return nil
	}

	script, err := mig.Content().Load()
	if err != nil {
		return NewMigrationError(mig, "load content", err)
	}
	logger.Debug("executing migration script", "checksum", Checksum(script))

	if err := ExecuteScript(ctx, db, script); err != nil {
		return NewMigrationError(mig, "execute script", err)
	}
	return nil
}

func (m *Manager) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	pairs := []any{"component", "migration", "operation", operation}
	return logging.Resolve(ctx, m.logger).With(append(pairs, attrs...)...)
}

// Checksum returns the hex BLAKE2b-256 digest of a script.
func Checksum(script string) string {
	sum := blake2b.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}
