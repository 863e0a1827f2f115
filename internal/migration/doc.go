// Package migration tracks and applies versioned schema changes to a SQL
// database.
//
// Applied versions are recorded in a schema_migrations table that lives in the
// target database itself. A Manager gathers migrations from one or more
// DataSources, works out which of them are pending and applies them in version
// order. It supports:
//
//   - Bootstrapping databases that have no tracking table yet, either from a
//     baseline Schema or by creating an empty tracking table
//   - Origin-aware pending computation, so a database built from a baseline
//     snapshot at version V never re-runs migrations at or below V
//   - One transaction per migration nested in an outer transaction; a failing
//     migration halts the run while every earlier migration stays applied
//   - Splitting blank-line separated SQL scripts into statements and routing
//     each one to exec or query by its leading keyword
//
// Migration scripts separate statements with at least one blank line. A
// semicolon alone does not end a statement.
//
// Example usage:
//
//	manager := migration.NewManager().AddDataSource(src)
//	applied, err := manager.ManageSchema(ctx, db, migration.BootstrapApplySchema)
//	if err != nil {
//		log.Fatalf("schema management failed: %v", err)
//	}
package migration
