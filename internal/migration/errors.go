package migration

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNoDataSources is returned when migrations or a schema are requested
	// from a manager that has no data sources.
	ErrNoDataSources = errors.New("no data sources added")

	// ErrNoSchema is returned by ApplySchema when no data source has a schema.
	ErrNoSchema = errors.New("no schema in data source set")

	// ErrMissingTrackingTable indicates that schema_migrations does not exist.
	ErrMissingTrackingTable = errors.New("schema_migrations table does not exist")

	// ErrUnparsableStatement indicates a statement with an unrecognized keyword.
	ErrUnparsableStatement = errors.New("unparsable statement")

	// ErrInvalidName indicates a migration name that breaks the naming convention.
	ErrInvalidName = errors.New("invalid migration name")

	// ErrTransactionAborted is returned by a Database binding when the
	// database rolled back the whole transaction on its own. Nothing from the
	// current run survives it.
	ErrTransactionAborted = errors.New("transaction aborted by the database")
)

// UnparsableStatementError names the statement the dispatcher refused to run.
type UnparsableStatementError struct {
	Statement string
}

func (e *UnparsableStatementError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnparsableStatement, e.Statement)
}

// Is matches ErrUnparsableStatement.
func (e *UnparsableStatementError) Is(target error) bool {
	return target == ErrUnparsableStatement
}

// InvalidNameError reports a migration file name that cannot be parsed.
type InvalidNameError struct {
	Name string
	Err  error
}

func (e *InvalidNameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrInvalidName, e.Name, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrInvalidName, e.Name)
}

// Unwrap returns the underlying error, if any.
func (e *InvalidNameError) Unwrap() error { return e.Err }

// Is matches ErrInvalidName.
func (e *InvalidNameError) Is(target error) bool {
	return target == ErrInvalidName
}

// MissingTrackingTableError wraps the query failure caused by a missing
// tracking table.
type MissingTrackingTableError struct {
	Query string
	Err   error
}

func (e *MissingTrackingTableError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrMissingTrackingTable, e.Query, e.Err)
}

// Unwrap returns the underlying database error.
func (e *MissingTrackingTableError) Unwrap() error { return e.Err }

// Is matches ErrMissingTrackingTable.
func (e *MissingTrackingTableError) Is(target error) bool {
	return target == ErrMissingTrackingTable
}

// MigrationError wraps a failure applying a single migration with context.
type MigrationError struct {
	Version     int64  // Migration version that failed
	Description string // Migration description, if any
	Operation   string // Operation being performed (load, execute, record)
	Err         error  // Underlying error
}

// Error implements the error interface
func (e *MigrationError) Error() string {
	label := strconv.FormatInt(e.Version, 10)
	if e.Description != "" {
		label += " (" + e.Description + ")"
	}
	return fmt.Sprintf("migration %s: %s: %v", label, e.Operation, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// NewMigrationError creates a new MigrationError with context
func NewMigrationError(m Migration, operation string, err error) *MigrationError {
	return &MigrationError{
		Version:     m.Version(),
		Description: m.Description(),
		Operation:   operation,
		Err:         err,
	}
}

// DatabaseError wraps database-related errors during migration operations
type DatabaseError struct {
	Query     string // SQL query that failed (if applicable)
	Operation string // Database operation (execute, query, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(query, operation string, err error) *DatabaseError {
	return &DatabaseError{
		Query:     query,
		Operation: operation,
		Err:       err,
	}
}

// trackingQueryError classifies a failed tracking-table query. A missing table
// is reported by SQLite as "no such table".
func trackingQueryError(query, operation string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "no such table") {
		return &MissingTrackingTableError{Query: query, Err: err}
	}
	return NewDatabaseError(query, operation, err)
}

// ErrorKind maps errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNoDataSources):
		return "no_data_sources"
	case errors.Is(err, ErrNoSchema):
		return "no_schema"
	case errors.Is(err, ErrMissingTrackingTable):
		return "missing_tracking_table"
	case errors.Is(err, ErrUnparsableStatement):
		return "unparsable_statement"
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrTransactionAborted):
		return "transaction_aborted"
	}

	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return "database"
	}
	return "unexpected"
}
