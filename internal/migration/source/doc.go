// Package source provides migration.DataSource implementations: file trees
// (embedded or on disk), in-memory scripts and code-defined migrations.
package source
