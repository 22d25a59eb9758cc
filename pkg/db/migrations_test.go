package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("db:migrations_test - failed to write test file %s: %v", name, err)
		}
	}
}

func TestLoadMigrationFiles_SortOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"003_third.sql":  "THIRD",
		"001_first.sql":  "FIRST",
		"002_second.sql": "SECOND",
	})

	result, err := LoadMigrationFiles(dir)
	if err != nil {
		t.Fatalf("db:migrations_test - unexpected error: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("db:migrations_test - expected 3, got %d", len(result))
	}
	for i, want := range []string{"FIRST", "SECOND", "THIRD"} {
		if result[i].SQL != want {
			t.Errorf("db:migrations_test - index %d = %s (%s), want %s", i, result[i].SQL, result[i].Name, want)
		}
	}
	if result[0].Name != "001_first.sql" {
		t.Errorf("db:migrations_test - Name = %q", result[0].Name)
	}
}

func TestLoadMigrationFiles_SkipsNonSQLAndBlank(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"001_create.sql": "CREATE TABLE t1;",
		"002_blank.sql":  "  \n",
		"README.md":      "# Migrations",
		"config.json":    "{}",
	})
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0755); err != nil {
		t.Fatal(err)
	}

	result, err := LoadMigrationFiles(dir)
	if err != nil {
		t.Fatalf("db:migrations_test - unexpected error: %v", err)
	}
	if len(result) != 1 || result[0].Name != "001_create.sql" {
		t.Errorf("db:migrations_test - expected only 001_create.sql, got %+v", result)
	}
}

func TestLoadMigrationFiles_EmptyDir(t *testing.T) {
	result, err := LoadMigrationFiles(t.TempDir())
	if err != nil {
		t.Fatalf("db:migrations_test - unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("db:migrations_test - expected empty result, got %d items", len(result))
	}
}

func TestLoadMigrationFiles_NonExistentDir(t *testing.T) {
	if _, err := LoadMigrationFiles(filepath.Join(t.TempDir(), "nonexistent")); err == nil {
		t.Error("db:migrations_test - expected error for non-existent directory")
	}
}

func TestLoadMigrationFiles_RepoMigrations(t *testing.T) {
	result, err := LoadMigrationFiles(FindMigrationPath("migrations"))
	if err != nil {
		t.Fatalf("db:migrations_test - unexpected error: %v", err)
	}
	if len(result) == 0 || result[0].Name != "001_envelope_journal.sql" {
		t.Errorf("db:migrations_test - expected 001_envelope_journal.sql first, got %+v", result)
	}
}

func TestSchemaStatus_String(t *testing.T) {
	applied := SchemaStatus{Applied: true, MigrationFiles: 1, MigrationPath: "migrations"}
	pending := SchemaStatus{MigrationFiles: 1, MigrationPath: "migrations"}
	if applied.String() == pending.String() {
		t.Errorf("db:migrations_test - status strings should differ")
	}
}
