package store

import (
	"io/fs"
	"regexp"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	for _, dialect := range []Dialect{DialectPostgres, DialectSQLite} {
		migrations, err := Migrations(dialect)
		if err != nil {
			t.Fatalf("%s: %v", dialect, err)
		}
		entries, err := fs.ReadDir(migrations, ".")
		if err != nil {
			t.Fatalf("%s: read migrations dir: %v", dialect, err)
		}

		pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
		byVersion := map[string]map[string]bool{}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			match := pattern.FindStringSubmatch(entry.Name())
			if match == nil {
				t.Fatalf("%s: unexpected file %s", dialect, entry.Name())
			}
			version, direction := match[1], match[2]
			if byVersion[version] == nil {
				byVersion[version] = map[string]bool{}
			}
			if byVersion[version][direction] {
				t.Fatalf("%s: duplicate %s migration file for version %s", dialect, direction, version)
			}
			byVersion[version][direction] = true
		}

		if len(byVersion) == 0 {
			t.Fatalf("%s: no migrations discovered", dialect)
		}
		for version, dirs := range byVersion {
			if !dirs["up"] || !dirs["down"] {
				t.Fatalf("%s: version %s must include both up and down files", dialect, version)
			}
		}
	}
}

func TestMigrationVersionsMatchAcrossDialects(t *testing.T) {
	pg, err := Migrations(DialectPostgres)
	if err != nil {
		t.Fatal(err)
	}
	lite, err := Migrations(DialectSQLite)
	if err != nil {
		t.Fatal(err)
	}
	pgNames, err := migrationNames(pg, ".up.sql")
	if err != nil {
		t.Fatal(err)
	}
	liteNames, err := migrationNames(lite, ".up.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(pgNames) != len(liteNames) {
		t.Fatalf("dialects diverged: postgres=%v sqlite=%v", pgNames, liteNames)
	}
	for i := range pgNames {
		if pgNames[i] != liteNames[i] {
			t.Fatalf("dialects diverged at %d: %s vs %s", i, pgNames[i], liteNames[i])
		}
	}
}
