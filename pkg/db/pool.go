// Package db persists the envelope journal in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// NewPool creates a pgx pool for databaseURL and verifies it answers.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	// Journal writes are small and bursty.
	config.MaxConns = 8
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations applies migrations in order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrations)))

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", logPrefix, m.Name, err)
		}
		slog.Debug(fmt.Sprintf("%s - Applied %s", logPrefix, m.Name))
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// SchemaStatus describes whether the journal schema exists.
type SchemaStatus struct {
	Applied        bool
	MigrationFiles int
	MigrationPath  string
}

func (s SchemaStatus) String() string {
	if s.Applied {
		return fmt.Sprintf("Migration status: applied (envelope_journal present, %d migration files in %s)", s.MigrationFiles, s.MigrationPath)
	}
	return fmt.Sprintf("Migration status: not applied (run 'bridge migrate up'). %d migration files in %s", s.MigrationFiles, s.MigrationPath)
}

// MigrationStatus reports whether the journal table exists.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) (SchemaStatus, error) {
	const statusLogPrefix = "db:MigrationStatus"
	status := SchemaStatus{MigrationPath: migrationPath}

	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'envelope_journal')`).Scan(&status.Applied)
	if err != nil {
		return status, fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return status, fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}
	status.MigrationFiles = len(files)
	return status, nil
}
