package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const migrationsLogPrefix = "db:migrations"

// Migration is one .sql file.
type Migration struct {
	Name string
	SQL  string
}

// LoadMigrationFiles reads the .sql files in dir in name order. Blank files are skipped.
func LoadMigrationFiles(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{Name: name, SQL: string(data)})
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

// FindMigrationPath returns path if it exists, else the first existing candidate
// walking up from the working directory. Used by tests run from a package dir.
func FindMigrationPath(path string) string {
	for _, p := range []string{path, filepath.Join("..", path), filepath.Join("..", "..", path)} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p
		}
	}
	return path
}
