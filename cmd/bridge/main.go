// Package main is the entrypoint for the frame-channel bridge (binary name "bridge").
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/morezero/frame-channel/internal/config"
	"github.com/morezero/frame-channel/internal/server"
	"github.com/morezero/frame-channel/pkg/db"
)

const usage = `Usage: bridge [command]
       bridge frame               Wait for the host's connect announcement and serve the channel.
       bridge host                Announce to the frame, serve the channel and ping until answered.
       bridge migrate up          Create the journal database if missing and run migrations.
       bridge migrate status      Show migration status.
       bridge clear               Truncate the envelope journal; schema is preserved.
       bridge journal [peer]      Print the newest journaled envelopes, optionally for one peer subject.

Commands:
  frame           (default) Run the listening end of the channel.
  host            Run the announcing end of the channel.
  migrate up      Run database migrations only.
  migrate status  Show current migration status.
  clear           Remove every journaled envelope.
  journal         Show journaled envelopes, newest first.

Environment: COMMS_URL, COMMS_EMBEDDED, CHANNEL_SUBJECT_PREFIX, CHANNEL_FRAME_NAME, CHANNEL_HOST_NAME,
CHANNEL_PROTOCOL_CONSTRAINT, CHANNEL_INIT_FILE, DATABASE_URL (journal; required for migrate, clear and journal),
MIGRATION_PATH, HTTP_PORT, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("bridge migrate: require subcommand (up, status)")
		}
		switch sub := args[1]; sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("bridge migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("bridge migrate status: %v", err)
			}
		default:
			log.Fatalf("bridge migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("bridge clear: %v", err)
		}
		return
	case "journal":
		peer := ""
		if len(args) > 1 {
			peer = args[1]
		}
		if err := runJournal(peer); err != nil {
			log.Fatalf("bridge journal: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	}

	role, ok := parseRole(cmd)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}
	if err := server.Run(role); err != nil {
		log.Fatalf("bridge %s: %v", role, err)
	}
}

// parseRole maps a command to the endpoint role it runs; empty means frame.
func parseRole(cmd string) (server.Role, bool) {
	switch cmd {
	case "", "frame":
		return server.RoleFrame, true
	case "host":
		return server.RoleHost, true
	}
	return "", false
}

func loadDBConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMigrateUp() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	status, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}

func runClear() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearJournal(ctx, pool); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return nil
}

func runJournal(peer string) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	repo := db.NewRepository(pool)
	total, err := repo.CountEnvelopes(ctx, peer)
	if err != nil {
		return err
	}
	records, err := repo.ListEnvelopes(ctx, db.ListEnvelopesParams{Peer: peer})
	if err != nil {
		return err
	}

	fmt.Printf("%d envelope(s) journaled, showing %d\n", total, len(records))
	for _, rec := range records {
		fmt.Println(formatRecord(rec))
	}
	return nil
}

// formatRecord renders one journal row as a single line.
func formatRecord(rec db.JournalRecord) string {
	parts := []string{rec.RecordedAt.UTC().Format(time.RFC3339), rec.Direction, rec.Peer, rec.Kind}
	if rec.Method != nil {
		parts = append(parts, *rec.Method)
	}
	if rec.EnvelopeID != nil {
		parts = append(parts, fmt.Sprintf("id=%d", *rec.EnvelopeID))
	}
	if rec.Outcome != nil {
		parts = append(parts, *rec.Outcome)
	}
	return strings.Join(append(parts, rec.Body), " ")
}
