package source

import (
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/example/schema-manager/internal/migration"
)

// FS reads a baseline schema and migration scripts from a file tree. Scripts
// are named after the migration convention, for example
// "1402070001_CreateTableBananas.sql". Content is read only when a migration
// is applied.
type FS struct {
	fsys          fs.FS
	migrationsDir string
	schemaPath    string
	schema        *migration.Schema
}

// NewFS returns a source over fsys. schemaPath may be empty when there is no
// baseline; otherwise it must exist. migrationsDir defaults to the root of
// fsys.
func NewFS(fsys fs.FS, schemaPath, migrationsDir string) (*FS, error) {
	if fsys == nil {
		return nil, errors.New("source: nil file system")
	}

	src := &FS{
		fsys:          fsys,
		migrationsDir: cleanDir(migrationsDir),
		schemaPath:    strings.TrimPrefix(path.Clean("/"+schemaPath), "/"),
	}

	if strings.TrimSpace(schemaPath) == "" {
		src.schemaPath = ""
		return src, nil
	}

	info, err := fs.Stat(fsys, src.schemaPath)
	if err != nil {
		return nil, errors.Wrapf(err, "schema %s not found", src.schemaPath)
	}
	if info.IsDir() {
		return nil, errors.Errorf("schema %s is a directory", src.schemaPath)
	}
	src.schema = migration.NewSchema(src.schemaPath, migration.ResolvedContent(src.opener(src.schemaPath)))
	return src, nil
}

// NewDir returns a source over a directory on disk.
func NewDir(root, schemaPath, migrationsDir string) (*FS, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "source directory %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("source directory %s is not a directory", root)
	}
	return NewFS(os.DirFS(root), schemaPath, migrationsDir)
}

// HasSchema reports whether a baseline schema was configured.
func (s *FS) HasSchema() bool { return s.schema != nil }

// Schema returns the baseline schema, or nil.
func (s *FS) Schema() *migration.Schema { return s.schema }

// Migrations lists the .sql files of the migrations directory. Other files
// and subdirectories are ignored, as is the schema file when it lives in the
// same directory. A .sql file with an invalid name is an error.
func (s *FS) Migrations() ([]migration.Migration, error) {
	entries, err := fs.ReadDir(s.fsys, s.migrationsDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read migrations directory %s", s.migrationsDir)
	}

	migrations := make([]migration.Migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := path.Join(s.migrationsDir, entry.Name())
		if name == s.schemaPath {
			continue
		}

		mig, err := migration.NewMigrationFromName(entry.Name(), migration.ResolvedContent(s.opener(name)))
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, mig)
	}
	return migrations, nil
}

func (s *FS) opener(name string) migration.ContentFunc {
	return func() (io.ReadCloser, error) {
		return s.fsys.Open(name)
	}
}

func cleanDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "."
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+dir), "/")
	if cleaned == "" {
		return "."
	}
	return cleaned
}
