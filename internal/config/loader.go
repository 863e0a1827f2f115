package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/example/schema-manager/internal/migration"
	"github.com/example/schema-manager/internal/persistence/sqlite"
)

// Environment variables read by Load and applied on top of YAML files.
const (
	EnvSQLiteDSN     = "SCHEMA_MANAGER_SQLITE_DSN"
	EnvBusyTimeout   = "SCHEMA_MANAGER_BUSY_TIMEOUT"
	EnvJournalMode   = "SCHEMA_MANAGER_JOURNAL_MODE"
	EnvSourceDir     = "SCHEMA_MANAGER_SOURCE_DIR"
	EnvSchemaPath    = "SCHEMA_MANAGER_SCHEMA_PATH"
	EnvMigrationsDir = "SCHEMA_MANAGER_MIGRATIONS_DIR"
	EnvBootstrap     = "SCHEMA_MANAGER_BOOTSTRAP"
)

// Config captures the settings of one schema management run.
type Config struct {
	SQLite    sqlite.Config `yaml:"sqlite"`
	Source    Source        `yaml:"source"`
	Bootstrap string        `yaml:"bootstrap"`
}

// Source locates the baseline schema and migration scripts on disk.
type Source struct {
	// Dir is the root directory; the other paths are relative to it.
	Dir           string `yaml:"dir"`
	SchemaPath    string `yaml:"schema"`
	MigrationsDir string `yaml:"migrations"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		SQLite: sqlite.DefaultConfig("schema.db"),
		Source: Source{
			MigrationsDir: "migrations",
		},
		Bootstrap: migration.BootstrapCreateMigrationsTable.String(),
	}
}

// BootstrapAction parses the configured bootstrap policy.
func (c Config) BootstrapAction() (migration.BootstrapAction, error) {
	return migration.ParseBootstrapAction(c.Bootstrap)
}

// Load parses configuration values from the current process environment.
//
// Optional values fall back to Default. SCHEMA_MANAGER_SOURCE_DIR is required.
func Load() (Config, error) {
	cfg := Default()
	if err := finish(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file and applies environment overrides.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to open config file %s", path)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads YAML configuration from r and applies environment overrides.
// Keys absent from the document keep their defaults.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}

	if err := finish(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// finish applies the environment, then reports every missing or invalid key.
func finish(cfg *Config) error {
	invalid := make([]string, 0, 2)

	if dsn := env(EnvSQLiteDSN); dsn != "" {
		cfg.SQLite.DSN = dsn
	}

	if value := env(EnvBusyTimeout); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout < 0 {
			invalid = append(invalid, EnvBusyTimeout)
		} else {
			cfg.SQLite.BusyTimeout = timeout
		}
	}

	if mode := env(EnvJournalMode); mode != "" {
		cfg.SQLite.JournalMode = strings.ToUpper(mode)
	}
	if dir := env(EnvSourceDir); dir != "" {
		cfg.Source.Dir = dir
	}
	if schema := env(EnvSchemaPath); schema != "" {
		cfg.Source.SchemaPath = schema
	}
	if dir := env(EnvMigrationsDir); dir != "" {
		cfg.Source.MigrationsDir = dir
	}
	if action := env(EnvBootstrap); action != "" {
		cfg.Bootstrap = action
	}

	if _, err := cfg.BootstrapAction(); err != nil {
		invalid = append(invalid, EnvBootstrap)
	}

	if strings.TrimSpace(cfg.Source.Dir) == "" {
		return errors.Errorf("required configuration is not set: %s", EnvSourceDir)
	}
	if len(invalid) > 0 {
		return errors.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}
	if err := cfg.SQLite.Validate(); err != nil {
		return errors.Wrap(err, "invalid sqlite configuration")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
