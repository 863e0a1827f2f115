package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/schema-manager/internal/migration"
)

var allKeys = []string{
	EnvSQLiteDSN,
	EnvBusyTimeout,
	EnvJournalMode,
	EnvSourceDir,
	EnvSchemaPath,
	EnvMigrationsDir,
	EnvBootstrap,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvSourceDir, "/srv/db")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "schema.db", cfg.SQLite.DSN)
		assert.Equal(t, "WAL", cfg.SQLite.JournalMode)
		assert.Equal(t, "/srv/db", cfg.Source.Dir)
		assert.Equal(t, "migrations", cfg.Source.MigrationsDir)
		assert.Empty(t, cfg.Source.SchemaPath)

		action, err := cfg.BootstrapAction()
		require.NoError(t, err)
		assert.Equal(t, migration.BootstrapCreateMigrationsTable, action)
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		require.Error(t, err)
		assert.Equal(t, "required configuration is not set: "+EnvSourceDir, err.Error())
	})

	t.Run("parses every override", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvSQLiteDSN, "file:/tmp/app.db")
		t.Setenv(EnvBusyTimeout, "2s")
		t.Setenv(EnvJournalMode, "delete")
		t.Setenv(EnvSourceDir, "db")
		t.Setenv(EnvSchemaPath, "schema.sql")
		t.Setenv(EnvMigrationsDir, "changes")
		t.Setenv(EnvBootstrap, "apply_schema")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "file:/tmp/app.db", cfg.SQLite.DSN)
		assert.Equal(t, 2*time.Second, cfg.SQLite.BusyTimeout)
		assert.Equal(t, "DELETE", cfg.SQLite.JournalMode)
		assert.Equal(t, Source{Dir: "db", SchemaPath: "schema.sql", MigrationsDir: "changes"}, cfg.Source)

		action, err := cfg.BootstrapAction()
		require.NoError(t, err)
		assert.Equal(t, migration.BootstrapApplySchema, action)
	})

	t.Run("reports invalid values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvSourceDir, "db")
		t.Setenv(EnvBusyTimeout, "soon")
		t.Setenv(EnvBootstrap, "sometimes")

		_, err := Load()
		require.Error(t, err)
		assert.Equal(t, "invalid configuration values: "+EnvBusyTimeout+", "+EnvBootstrap, err.Error())
	})

	t.Run("rejects invalid sqlite settings", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvSourceDir, "db")
		t.Setenv(EnvJournalMode, "turbo")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid journal mode")
	})
}

func TestParse(t *testing.T) {
	t.Run("reads YAML", func(t *testing.T) {
		clearEnv(t)
		doc := `
sqlite:
  dsn: data/app.db
  busy_timeout: 10s
  journal_mode: WAL
  synchronous: FULL
source:
  dir: ./db
  schema: schema.sql
  migrations: migrations
bootstrap: none
`
		cfg, err := Parse(strings.NewReader(doc))
		require.NoError(t, err)

		assert.Equal(t, "data/app.db", cfg.SQLite.DSN)
		assert.Equal(t, 10*time.Second, cfg.SQLite.BusyTimeout)
		assert.Equal(t, "FULL", cfg.SQLite.Synchronous)
		assert.True(t, cfg.SQLite.EnableForeignKeys, "unset keys keep defaults")
		assert.Equal(t, "./db", cfg.Source.Dir)
		assert.Equal(t, "schema.sql", cfg.Source.SchemaPath)

		action, err := cfg.BootstrapAction()
		require.NoError(t, err)
		assert.Equal(t, migration.BootstrapNone, action)
	})

	t.Run("environment overrides YAML", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvSQLiteDSN, "override.db")

		cfg, err := Parse(strings.NewReader("source:\n  dir: db\nsqlite:\n  dsn: file.db\n"))
		require.NoError(t, err)
		assert.Equal(t, "override.db", cfg.SQLite.DSN)
	})

	t.Run("empty document uses environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvSourceDir, "db")

		cfg, err := Parse(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, "db", cfg.Source.Dir)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		clearEnv(t)
		_, err := Parse(strings.NewReader("source:\n  dir: db\nunknown: true\n"))
		assert.Error(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "schema-manager.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source:\n  dir: db\nbootstrap: create_migrations_table\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "db", cfg.Source.Dir)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
