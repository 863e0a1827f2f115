package migration

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// NoVersions is reported for the origin and current version when the
	// tracking table holds no rows.
	NoVersions int64 = -1

	// TableName is the tracking table that records applied versions.
	TableName = "schema_migrations"
)

// namePattern matches "0123.sql" and "0123_some description.sql". The
// description may not end with an underscore.
var namePattern = regexp.MustCompile(`^(\d+)(?:_([\w\s-]*[A-Za-z0-9\s-]))?\.sql$`)

// Rows is the cursor subset of *sql.Rows read by the manager.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Database is the host database binding the manager drives.
//
// Transactions nest: EndTransaction commits the innermost scope when it was
// marked successful since the matching BeginTransaction and rolls it back
// otherwise. Rolling back an inner scope leaves the enclosing scope usable.
type Database interface {
	BeginTransaction(ctx context.Context) error
	EndTransaction(ctx context.Context) error
	SetTransactionSuccessful()
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Insert(ctx context.Context, table string, values map[string]any) (int64, error)
}

// DataSource supplies an optional baseline Schema and a list of Migrations.
// A Manager deduplicates sources by identity, so implementations are usually
// pointer types.
type DataSource interface {
	// HasSchema reports whether Schema returns a non-nil baseline.
	HasSchema() bool

	// Schema returns the baseline schema, or nil when the source has none.
	Schema() *Schema

	// Migrations enumerates the migrations this source knows about.
	Migrations() ([]Migration, error)
}

// ContentFunc opens the SQL text of a migration or schema on demand.
type ContentFunc func() (io.ReadCloser, error)

// ApplyFunc runs a code-defined migration against the database. It is called
// inside the migration's own transaction.
type ApplyFunc func(ctx context.Context, db Database) error

// Content is either inline SQL text or a resolver that produces it lazily.
type Content struct {
	inline string
	open   ContentFunc
}

// InlineContent wraps SQL text that is already in memory.
func InlineContent(sql string) Content {
	return Content{inline: sql}
}

// ResolvedContent wraps a resolver that is only invoked when the SQL is needed.
func ResolvedContent(open ContentFunc) Content {
	return Content{open: open}
}

// Load returns the SQL text, invoking the resolver if there is one.
func (c Content) Load() (string, error) {
	if c.open == nil {
		return c.inline, nil
	}

	r, err := c.open()
	if err != nil {
		return "", errors.Wrap(err, "failed to open content")
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "failed to read content")
	}
	return string(data), nil
}

// Migration is one forward-only, uniquely versioned schema change. Two
// migrations are equal when their versions are equal.
type Migration struct {
	version     int64
	description string
	content     Content
	apply       ApplyFunc
}

// NewMigration builds a script migration.
func NewMigration(version int64, description string, content Content) Migration {
	return Migration{version: version, description: description, content: content}
}

// NewCodeMigration builds a migration whose change is made by fn rather than by
// a SQL script.
func NewCodeMigration(version int64, description string, fn ApplyFunc) Migration {
	return Migration{version: version, description: description, apply: fn}
}

// NewMigrationFromName parses name (a file name or path) for the version and
// description and attaches content.
func NewMigrationFromName(name string, content Content) (Migration, error) {
	version, description, err := ParseName(name)
	if err != nil {
		return Migration{}, err
	}
	return NewMigration(version, description, content), nil
}

// ParseName extracts the version and optional description from a migration
// file name such as "1402070001_CreateTableBananas.sql". Directory components
// are ignored.
func ParseName(name string) (int64, string, error) {
	base := path.Base(strings.TrimSpace(strings.ReplaceAll(name, "\\", "/")))
	matches := namePattern.FindStringSubmatch(base)
	if matches == nil {
		return 0, "", &InvalidNameError{Name: base}
	}

	version, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, "", &InvalidNameError{Name: base, Err: err}
	}
	return version, matches[2], nil
}

// Version returns the migration's ordering key.
func (m Migration) Version() int64 { return m.version }

// Description returns the human readable description, or "" when absent.
func (m Migration) Description() string { return m.description }

// IsCode reports whether the migration is code-defined.
func (m Migration) IsCode() bool { return m.apply != nil }

// Content returns the lazy SQL accessor. It is empty for code migrations.
func (m Migration) Content() Content { return m.content }

// Equal reports whether both migrations carry the same version.
func (m Migration) Equal(other Migration) bool { return m.version == other.version }

// Compare orders migrations by version ascending.
func (m Migration) Compare(other Migration) int {
	switch {
	case m.version < other.version:
		return -1
	case m.version > other.version:
		return 1
	}
	return 0
}

func (m Migration) String() string {
	if m.description == "" {
		return strconv.FormatInt(m.version, 10)
	}
	return fmt.Sprintf("%d_%s", m.version, m.description)
}

// Schema is a baseline script that builds a pre-made starting database state.
type Schema struct {
	name    string
	content Content
}

// NewSchema builds a baseline schema. name is used for logging only.
func NewSchema(name string, content Content) *Schema {
	return &Schema{name: name, content: content}
}

// Name returns the schema's name.
func (s *Schema) Name() string { return s.name }

// Content returns the lazy SQL accessor.
func (s *Schema) Content() Content { return s.content }

// BootstrapAction selects what ManageSchema does when the database has no
// tracking table yet.
type BootstrapAction int

const (
	// BootstrapNone does nothing. A migration is then expected to create the
	// tracking table itself.
	BootstrapNone BootstrapAction = iota

	// BootstrapApplySchema runs the baseline Schema, which is expected to create
	// and seed the tracking table.
	BootstrapApplySchema

	// BootstrapCreateMigrationsTable creates an empty tracking table.
	BootstrapCreateMigrationsTable
)

func (a BootstrapAction) String() string {
	switch a {
	case BootstrapNone:
		return "none"
	case BootstrapApplySchema:
		return "apply_schema"
	case BootstrapCreateMigrationsTable:
		return "create_migrations_table"
	}
	return fmt.Sprintf("BootstrapAction(%d)", int(a))
}

// ParseBootstrapAction accepts the String form of an action, case-insensitively.
func ParseBootstrapAction(s string) (BootstrapAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return BootstrapNone, nil
	case "apply_schema", "apply-schema", "schema":
		return BootstrapApplySchema, nil
	case "create_migrations_table", "create-migrations-table", "create_table", "create-table":
		return BootstrapCreateMigrationsTable, nil
	}
	return BootstrapNone, errors.Errorf("unknown bootstrap action %q", s)
}
