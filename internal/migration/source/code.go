package source

import (
	"github.com/example/schema-manager/internal/migration"
)

// Code is a registry of code-defined migrations. It never has a schema.
type Code struct {
	migrations []migration.Migration
}

// NewCode returns an empty registry.
func NewCode() *Code {
	return &Code{}
}

// Register adds a migration that runs fn inside its own transaction.
func (c *Code) Register(version int64, description string, fn migration.ApplyFunc) *Code {
	c.migrations = append(c.migrations, migration.NewCodeMigration(version, description, fn))
	return c
}

// HasSchema always returns false.
func (c *Code) HasSchema() bool { return false }

// Schema always returns nil.
func (c *Code) Schema() *migration.Schema { return nil }

// Migrations returns a copy of the registered migrations.
func (c *Code) Migrations() ([]migration.Migration, error) {
	out := make([]migration.Migration, len(c.migrations))
	copy(out, c.migrations)
	return out, nil
}
