package sqlite

import (
	"context"
	"database/sql"
	"strconv"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/example/schema-manager/internal/migration"
)

const driverName = "sqlite"

// DB binds a SQLite database to migration.Database. All statements run on a
// single pinned connection so that nested transactions, implemented with
// savepoints, stay on the connection that opened them.
//
// BeginTransaction at depth zero issues BEGIN; deeper calls issue
// SAVEPOINT sp_<depth>. EndTransaction commits or releases the innermost
// scope when SetTransactionSuccessful was called for it and rolls it back
// otherwise.
type DB struct {
	mu     sync.Mutex
	pool   *sql.DB
	conn   *sql.Conn
	owned  bool
	scopes []bool
}

// Open validates cfg, opens the database and pins a connection configured
// with cfg's PRAGMAs.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid SQLite configuration")
	}
	if err := cfg.ensureDir(); err != nil {
		return nil, err
	}

	pool, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	db, err := pin(ctx, pool, true)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}

	for _, pragma := range cfg.pragmas() {
		if err := db.Exec(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}
	return db, nil
}

// Wrap pins a connection from an existing pool. Close releases the
// connection but leaves the pool open.
func Wrap(ctx context.Context, pool *sql.DB) (*DB, error) {
	if pool == nil {
		return nil, errors.New("sqlite: nil pool")
	}
	return pin(ctx, pool, false)
}

func pin(ctx context.Context, pool *sql.DB, owned bool) (*DB, error) {
	conn, err := pool.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire SQLite connection")
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to ping SQLite database")
	}
	return &DB{pool: pool, conn: conn, owned: owned}, nil
}

// Depth returns the number of open transaction scopes.
func (d *DB) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.scopes)
}

// Close rolls back any open transaction and releases the connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}

	var result *multierror.Error
	if len(d.scopes) > 0 {
		if _, err := d.conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
			result = multierror.Append(result, err)
		}
		d.scopes = nil
	}
	if err := d.conn.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	d.conn = nil
	if d.owned {
		if err := d.pool.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// BeginTransaction opens a transaction, or a savepoint inside the current one.
func (d *DB) BeginTransaction(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return ErrClosed
	}

	stmt := "BEGIN"
	if depth := len(d.scopes); depth > 0 {
		stmt = "SAVEPOINT " + savepoint(depth)
	}
	if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(mapError(err), "failed to %s", stmt)
	}
	d.scopes = append(d.scopes, false)
	return nil
}

// SetTransactionSuccessful marks the innermost scope for commit. It is a no-op
// outside a transaction.
func (d *DB) SetTransactionSuccessful() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := len(d.scopes); n > 0 {
		d.scopes[n-1] = true
	}
}

// EndTransaction closes the innermost scope. The scope is popped even when the
// database reports an error. Rollbacks run even when ctx is already cancelled,
// so the connection never stays inside a scope the DB no longer tracks.
//
// SQLite can roll back the whole transaction on its own, for example on an
// ON CONFLICT ROLLBACK constraint or RAISE(ROLLBACK). Every open scope is then
// dropped and the error matches migration.ErrTransactionAborted.
func (d *DB) EndTransaction(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return ErrClosed
	}
	n := len(d.scopes)
	if n == 0 {
		return ErrNoTransaction
	}
	successful := d.scopes[n-1]
	d.scopes = d.scopes[:n-1]
	depth := n - 1

	if depth == 0 {
		if successful {
			return d.commit(ctx)
		}
		return d.rollback(ctx)
	}

	name := savepoint(depth)
	if successful {
		return d.release(ctx, name)
	}
	return d.rollbackTo(ctx, name)
}

// commit issues COMMIT and rolls back when the commit itself fails, so the
// connection is never left inside a transaction.
func (d *DB) commit(ctx context.Context) error {
	_, err := d.conn.ExecContext(ctx, "COMMIT")
	if err == nil {
		return nil
	}
	if transactionGone(err) {
		return d.aborted(err)
	}

	result := multierror.Append(nil, errors.Wrap(mapError(err), "failed to COMMIT"))
	if rbErr := d.rollback(ctx); rbErr != nil {
		result = multierror.Append(result, errors.Wrap(rbErr, "after failed COMMIT"))
	}
	return result.ErrorOrNil()
}

func (d *DB) rollback(ctx context.Context) error {
	_, err := d.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
	if err != nil && !transactionGone(err) {
		return errors.Wrap(err, "failed to ROLLBACK")
	}
	return nil
}

// release folds a savepoint into its parent. A savepoint that cannot be
// released is rolled back instead.
func (d *DB) release(ctx context.Context, name string) error {
	_, err := d.conn.ExecContext(ctx, "RELEASE "+name)
	if err == nil {
		return nil
	}
	if transactionGone(err) {
		return d.aborted(err)
	}

	result := multierror.Append(nil, errors.Wrapf(mapError(err), "failed to release %s", name))
	if rbErr := d.rollbackTo(ctx, name); rbErr != nil {
		if errors.Is(rbErr, migration.ErrTransactionAborted) {
			return rbErr
		}
		result = multierror.Append(result, rbErr)
	}
	return result.ErrorOrNil()
}

func (d *DB) rollbackTo(ctx context.Context, name string) error {
	ctx = context.WithoutCancel(ctx)

	var result *multierror.Error
	if _, err := d.conn.ExecContext(ctx, "ROLLBACK TO "+name); err != nil {
		if transactionGone(err) {
			return d.aborted(err)
		}
		result = multierror.Append(result, errors.Wrapf(err, "failed to roll back to %s", name))
	}
	if _, err := d.conn.ExecContext(ctx, "RELEASE "+name); err != nil {
		result = multierror.Append(result, errors.Wrapf(err, "failed to release %s", name))
	}
	return result.ErrorOrNil()
}

// aborted drops every open scope after SQLite ended the transaction itself.
func (d *DB) aborted(err error) error {
	d.scopes = nil
	return &classifiedError{kind: migration.ErrTransactionAborted, err: err}
}

// Exec runs a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	conn, err := d.connection()
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return mapError(err)
	}
	return nil
}

// Query runs a statement that returns rows. The caller must close them.
func (d *DB) Query(ctx context.Context, query string, args ...any) (migration.Rows, error) {
	conn, err := d.connection()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// Insert adds one row built from values and returns its rowid.
func (d *DB) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, errors.Errorf("sqlite: insert into %s without values", table)
	}
	query, args, err := sq.Insert(table).SetMap(values).ToSql()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to build insert into %s", table)
	}

	conn, err := d.connection()
	if err != nil {
		return 0, err
	}
	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read inserted row id")
	}
	return id, nil
}

func (d *DB) connection() (*sql.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil, ErrClosed
	}
	return d.conn, nil
}

func savepoint(depth int) string {
	return "sp_" + strconv.Itoa(depth)
}

var _ migration.Database = (*DB)(nil)
