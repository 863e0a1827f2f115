package sqlite

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNoTransaction is returned by EndTransaction without a matching
	// BeginTransaction.
	ErrNoTransaction = errors.New("sqlite: no transaction in progress")

	// ErrConstraint marks UNIQUE, CHECK and FOREIGN KEY violations.
	ErrConstraint = errors.New("sqlite: constraint violation")

	// ErrLocked marks busy or locked database errors.
	ErrLocked = errors.New("sqlite: database locked")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sqlite: database closed")
)

// classifiedError keeps the driver error while matching a sentinel.
type classifiedError struct {
	kind error
	err  error
}

func (e *classifiedError) Error() string { return e.kind.Error() + ": " + e.err.Error() }

func (e *classifiedError) Unwrap() error { return e.err }

func (e *classifiedError) Is(target error) bool { return target == e.kind }

// mapError tags driver errors with a sentinel when the message is recognized.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "FOREIGN KEY constraint failed", "CHECK constraint failed", "NOT NULL constraint failed"):
		return &classifiedError{kind: ErrConstraint, err: err}
	case containsAny(msg, "database is locked", "database is busy", "SQLITE_BUSY"):
		return &classifiedError{kind: ErrLocked, err: err}
	}
	return err
}

// transactionGone reports errors SQLite returns once it has already rolled
// back the enclosing transaction.
func transactionGone(err error) bool {
	return containsAny(err.Error(), "no such savepoint", "no transaction is active")
}

func containsAny(s string, substrings ...string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
