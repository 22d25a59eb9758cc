package db

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/frame-channel/pkg/envelope"
	"github.com/morezero/frame-channel/pkg/transport"
)

const repoLogPrefix = "db:repository"

const defaultListLimit = 100

var _ transport.Recorder = (*Repository)(nil)

// Repository stores journal entries. It implements transport.Recorder.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record inserts one journal entry, classifying the body as a call, a response or
// malformed bytes.
func (r *Repository) Record(ctx context.Context, entry transport.JournalEntry) error {
	row := classify(entry)

	_, err := r.pool.Exec(ctx,
		`INSERT INTO envelope_journal (direction, peer, kind, method, envelope_id, source, outcome, body, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		row.Direction, row.Peer, row.Kind, row.Method, row.EnvelopeID, row.Source, row.Outcome, row.Body, row.RecordedAt)
	if err != nil {
		return fmt.Errorf("%s - failed to record %s envelope: %w", repoLogPrefix, row.Kind, err)
	}
	return nil
}

// ListEnvelopes returns the newest journal rows first.
func (r *Repository) ListEnvelopes(ctx context.Context, params ListEnvelopesParams) ([]JournalRecord, error) {
	query, args := buildListQuery(params)
	slog.Debug(fmt.Sprintf("%s - ListEnvelopes peer=%s direction=%s method=%s", repoLogPrefix, params.Peer, params.Direction, params.Method))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - list envelopes: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountEnvelopes returns the number of journal rows for peer, or all rows when peer is empty.
func (r *Repository) CountEnvelopes(ctx context.Context, peer string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*)::int FROM envelope_journal WHERE $1 = '' OR peer = $1`, peer).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s - count envelopes: %w", repoLogPrefix, err)
	}
	return n, nil
}

func buildListQuery(params ListEnvelopesParams) (string, []interface{}) {
	query := `SELECT id, direction, peer, kind, method, envelope_id, source, outcome, body, recorded_at
	          FROM envelope_journal WHERE 1=1`
	args := []interface{}{}

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += fmt.Sprintf(` AND %s = $%d`, column, len(args))
	}
	add("peer", params.Peer)
	add("direction", params.Direction)
	add("method", params.Method)

	limit := params.Limit
	if limit < 1 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args))
	return query, args
}

func classify(entry transport.JournalEntry) JournalRecord {
	rec := JournalRecord{
		Direction:  entry.Direction,
		Peer:       entry.Peer,
		Kind:       KindMalformed,
		Body:       string(entry.Body),
		RecordedAt: entry.RecordedAt,
	}

	env, err := envelope.Parse(entry.Body)
	if err != nil {
		return rec
	}
	switch e := env.(type) {
	case *envelope.Call:
		rec.Kind = KindCall
		rec.Method = &e.Method
		if e.HasID {
			rec.EnvelopeID = envelopeID(e.ID)
		}
		if e.Source != "" {
			rec.Source = &e.Source
		}
	case *envelope.Response:
		outcome := e.Outcome.String()
		rec.Kind = KindResponse
		rec.EnvelopeID = envelopeID(e.ID)
		rec.Outcome = &outcome
	}
	return rec
}

// envelopeID converts a wire id for the BIGINT column; ids past MaxInt64 are stored as NULL.
func envelopeID(id uint64) *int64 {
	if id > math.MaxInt64 {
		return nil
	}
	v := int64(id)
	return &v
}

func scanRecords(rows pgx.Rows) ([]JournalRecord, error) {
	var out []JournalRecord
	for rows.Next() {
		var rec JournalRecord
		if err := rows.Scan(
			&rec.ID, &rec.Direction, &rec.Peer, &rec.Kind, &rec.Method,
			&rec.EnvelopeID, &rec.Source, &rec.Outcome, &rec.Body, &rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("%s - scan journal row: %w", repoLogPrefix, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
