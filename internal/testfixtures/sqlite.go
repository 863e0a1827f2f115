package testfixtures

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/schema-manager/internal/persistence/sqlite"
)

// NewSQLiteDB opens an empty database in a temporary file. The database is
// closed when the test finishes.
func NewSQLiteDB(tb testing.TB) *sqlite.DB {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "test.db")
	db, err := sqlite.Open(context.Background(), sqlite.TempFileConfig(path))
	if err != nil {
		tb.Fatalf("failed to open sqlite database: %v", err)
	}

	tb.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// WriteFiles writes files, keyed by slash-separated relative path, below a
// new temporary directory and returns the directory.
func WriteFiles(tb testing.TB, files map[string]string) string {
	tb.Helper()

	root := tb.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			tb.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			tb.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return root
}

// QueryBananas reads the bananas table in rowid order.
func QueryBananas(tb testing.TB, db *sqlite.DB) []Banana {
	tb.Helper()

	rows, err := db.Query(context.Background(), "SELECT name, ripeness FROM bananas ORDER BY _ROWID_")
	if err != nil {
		tb.Fatalf("failed to query bananas: %v", err)
	}
	defer rows.Close()

	var bananas []Banana
	for rows.Next() {
		var b Banana
		if err := rows.Scan(&b.Name, &b.Ripeness); err != nil {
			tb.Fatalf("failed to scan banana: %v", err)
		}
		bananas = append(bananas, b)
	}
	if err := rows.Err(); err != nil {
		tb.Fatalf("failed to read bananas: %v", err)
	}
	return bananas
}

// QueryVersions reads the tracking table in version order.
func QueryVersions(tb testing.TB, db *sqlite.DB) []int64 {
	tb.Helper()

	rows, err := db.Query(context.Background(), "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		tb.Fatalf("failed to query versions: %v", err)
	}
	defer rows.Close()

	versions := make([]int64, 0)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			tb.Fatalf("failed to scan version: %v", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		tb.Fatalf("failed to read versions: %v", err)
	}
	return versions
}
