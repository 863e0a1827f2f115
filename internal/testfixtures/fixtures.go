package testfixtures

import (
	"time"

	"github.com/example/schema-manager/internal/migration/source"
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Fruit fixtures -----------------------------

// FruitSchema creates a fruit table and seeds the tracking table at 1000.
const FruitSchema = `-- Fruit baseline

CREATE TABLE fruit (
  name TEXT NOT NULL
);

CREATE TABLE schema_migrations (
  version INTEGER UNIQUE NOT NULL
);

INSERT INTO schema_migrations (version) VALUES (1000);`

// FruitSource returns a source with the fruit baseline and two migrations:
// 1001 adds a ripeness column and 1002 inserts two rows.
func FruitSource() *source.Memory {
	return source.NewMemory().
		WithSchema("fruit.sql", FruitSchema).
		AddScript(1001, "AddRipeness", "ALTER TABLE fruit ADD ripeness NUMERIC;").
		AddScript(1002, "InsertFruit", "INSERT INTO fruit (name, ripeness) VALUES ('apple', 10);\n\nINSERT INTO fruit (name, ripeness) VALUES ('pear', 20);")
}

// ----------------------------- Banana fixtures -----------------------------

// BananaSchema creates the tracking table seeded at the origin version.
const BananaSchema = "-- Versioning\n" +
	"\n" +
	"CREATE TABLE schema_migrations (\n" +
	"  version INTEGER UNIQUE NOT NULL\n" +
	");\n" +
	"\n" +
	"INSERT INTO schema_migrations(version) VALUES (1402070000);"

// BananaOrigin is the version of the migration that creates the tracking table.
const BananaOrigin int64 = 1402070000

// BananaScript is one named banana migration.
type BananaScript struct {
	Name string
	SQL  string
}

var bananaOrigin = BananaScript{
	Name: "1402070000_Origin.sql",
	SQL: "-- Versioning\n" +
		"\n" +
		"CREATE TABLE schema_migrations (\n" +
		"  version INTEGER UNIQUE NOT NULL\n" +
		");",
}

var bananaScripts = []BananaScript{
	{
		Name: "1402070001_CreateTableBananas.sql",
		SQL:  "CREATE TABLE bananas (\n    name TEXT\n);",
	},
	{
		Name: "1402070002_InsertWhiteYellowIntoBananas.sql",
		SQL:  "INSERT INTO bananas (name) VALUES ('white');\n\nINSERT INTO bananas (name) VALUES ('yellow');",
	},
	{
		Name: "1402070003_AlterBananasAddRipeness.sql",
		SQL:  "ALTER TABLE bananas ADD ripeness NUMERIC;",
	},
	{
		Name: "1402070004_UpdateBananasSetRipeness.sql",
		SQL:  "UPDATE bananas SET ripeness = 1 WHERE name = 'white';\n\nUPDATE bananas SET ripeness = 50 WHERE name = 'yellow';",
	},
	{
		Name: "1402070005_InsertGreenBrownIntoBananas.sql",
		SQL:  "INSERT INTO bananas (name, ripeness) VALUES ('brown', 80);\n\nINSERT INTO bananas (name, ripeness) VALUES ('green', 0);",
	},
	{
		Name: "1402070006_DeleteWhiteFromBananas.sql",
		SQL:  "DELETE FROM bananas WHERE name = 'white';",
	},
}

var bananaSpotted = BananaScript{
	Name: "1402070007_InsertSpottedIntoBananas.sql",
	SQL:  "INSERT INTO bananas (name, ripeness) VALUES ('spotted', 75);",
}

// BananaFixture describes which parts of the banana migration set to build.
type BananaFixture struct {
	Schema  bool
	Origin  bool
	Spotted bool
}

// BananaOption configures the generated banana fixture.
type BananaOption func(*BananaFixture)

// WithoutBananaSchema drops the baseline schema.
func WithoutBananaSchema() BananaOption {
	return func(f *BananaFixture) {
		f.Schema = false
	}
}

// WithoutBananaOrigin drops the migration that creates the tracking table.
func WithoutBananaOrigin() BananaOption {
	return func(f *BananaFixture) {
		f.Origin = false
	}
}

// WithSpottedBanana adds 1402070007, which inserts a spotted banana.
func WithSpottedBanana() BananaOption {
	return func(f *BananaFixture) {
		f.Spotted = true
	}
}

// NewBananaFixture returns the full banana fixture with optional overrides.
func NewBananaFixture(opts ...BananaOption) BananaFixture {
	fixture := BananaFixture{Schema: true, Origin: true}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// Scripts returns the selected migration scripts in version order.
func (f BananaFixture) Scripts() []BananaScript {
	scripts := make([]BananaScript, 0, len(bananaScripts)+2)
	if f.Origin {
		scripts = append(scripts, bananaOrigin)
	}
	scripts = append(scripts, bananaScripts...)
	if f.Spotted {
		scripts = append(scripts, bananaSpotted)
	}
	return scripts
}

// Source materialises the fixture as an in-memory data source.
func (f BananaFixture) Source() *source.Memory {
	src := source.NewMemory()
	if f.Schema {
		src.WithSchema("schema.sql", BananaSchema)
	}
	for _, script := range f.Scripts() {
		if _, err := src.AddNamed(script.Name, script.SQL); err != nil {
			panic(err)
		}
	}
	return src
}

// Files lays the fixture out as a file tree with schema/schema.sql and a
// migrations directory.
func (f BananaFixture) Files() map[string]string {
	files := make(map[string]string)
	if f.Schema {
		files["schema/schema.sql"] = BananaSchema
	}
	for _, script := range f.Scripts() {
		files["migrations/"+script.Name] = script.SQL
	}
	return files
}

// Banana is one row of the bananas table.
type Banana struct {
	Name     string
	Ripeness int64
}

// ExpectedBananas is the bananas table after migrations 1402070001 through
// 1402070006, in rowid order.
func ExpectedBananas() []Banana {
	return []Banana{
		{Name: "yellow", Ripeness: 50},
		{Name: "brown", Ripeness: 80},
		{Name: "green", Ripeness: 0},
	}
}
