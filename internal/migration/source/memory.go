package source

import (
	"github.com/example/schema-manager/internal/migration"
)

// Memory holds scripts in memory. It is mostly useful in tests and for small
// embedded migration sets defined in Go source.
type Memory struct {
	schema     *migration.Schema
	migrations []migration.Migration
}

// NewMemory returns an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{}
}

// WithSchema sets the baseline schema.
func (m *Memory) WithSchema(name, sql string) *Memory {
	m.schema = migration.NewSchema(name, migration.InlineContent(sql))
	return m
}

// AddScript adds a script migration.
func (m *Memory) AddScript(version int64, description, sql string) *Memory {
	m.migrations = append(m.migrations, migration.NewMigration(version, description, migration.InlineContent(sql)))
	return m
}

// AddNamed adds a script migration whose version and description come from a
// file name such as "1001_AddRipeness.sql".
func (m *Memory) AddNamed(name, sql string) (*Memory, error) {
	mig, err := migration.NewMigrationFromName(name, migration.InlineContent(sql))
	if err != nil {
		return nil, err
	}
	m.migrations = append(m.migrations, mig)
	return m, nil
}

// Add appends already built migrations.
func (m *Memory) Add(migrations ...migration.Migration) *Memory {
	m.migrations = append(m.migrations, migrations...)
	return m
}

// HasSchema reports whether a schema was set.
func (m *Memory) HasSchema() bool { return m.schema != nil }

// Schema returns the baseline schema, or nil.
func (m *Memory) Schema() *migration.Schema { return m.schema }

// Migrations returns a copy of the added migrations.
func (m *Memory) Migrations() ([]migration.Migration, error) {
	out := make([]migration.Migration, len(m.migrations))
	copy(out, m.migrations)
	return out, nil
}
