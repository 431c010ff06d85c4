// Package storage keeps a SQL ledger of candidate outcomes. It serves as
// a StatusSink and as the prior-status lookup for sources that cannot
// remember what happened on earlier runs (feeds, local files).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/deusflow/briefs/internal/engine"
)

const table = "candidate_status"

// lookupChunk keeps IN lists well under driver parameter limits.
const lookupChunk = 500

type Ledger struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	log *slog.Logger
	now func() time.Time
}

// Open connects with driver "postgres" or "sqlite" and creates the schema.
func Open(ctx context.Context, driver, dsn string, log *slog.Logger) (*Ledger, error) {
	var format sq.PlaceholderFormat
	switch driver {
	case "postgres":
		format = sq.Dollar
	case "sqlite":
		format = sq.Question
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	l := &Ledger{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(format),
		log: log,
		now: time.Now,
	}
	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Info("✅ status ledger connected", "driver", driver)
	return l, nil
}

func (l *Ledger) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			ref          TEXT PRIMARY KEY,
			url          TEXT NOT NULL,
			status       TEXT NOT NULL,
			kind         TEXT NOT NULL DEFAULT '',
			locator      TEXT NOT NULL DEFAULT '',
			note         TEXT NOT NULL DEFAULT '',
			title        TEXT NOT NULL DEFAULT '',
			summary      TEXT NOT NULL DEFAULT '',
			card_id      TEXT NOT NULL DEFAULT '',
			published_at TEXT NOT NULL DEFAULT '',
			updated_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candidate_status_status ON ` + table + `(status)`,
		`CREATE INDEX IF NOT EXISTS idx_candidate_status_url ON ` + table + `(url)`,
	}
	for _, s := range stmts {
		if _, err := l.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// keep returns an upsert assignment that ignores empty incoming values.
func keep(col string) string {
	return fmt.Sprintf("%[1]s = CASE WHEN excluded.%[1]s = '' THEN %[2]s.%[1]s ELSE excluded.%[1]s END", col, table)
}

// Record upserts the outcome for r.Ref.
func (l *Ledger) Record(ctx context.Context, r engine.Record) error {
	published := ""
	if !r.PublishedAt.IsZero() {
		published = r.PublishedAt.UTC().Format(time.RFC3339)
	}

	query, args, err := l.sb.Insert(table).
		Columns("ref", "url", "status", "kind", "locator", "note", "title", "summary", "card_id", "published_at", "updated_at").
		Values(r.Ref, r.URL, string(r.Status), string(r.Kind), r.Locator, r.Note, r.Title, r.Summary, r.CardID, published,
			l.now().UTC().Format(time.RFC3339)).
		Suffix("ON CONFLICT (ref) DO UPDATE SET url = excluded.url, status = excluded.status, kind = excluded.kind, " +
			"note = excluded.note, updated_at = excluded.updated_at, " +
			keep("locator") + ", " + keep("title") + ", " + keep("summary") + ", " +
			keep("card_id") + ", " + keep("published_at")).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record status for %s: %w", r.Ref, err)
	}
	return nil
}

// Flush is a no-op; Record writes through.
func (l *Ledger) Flush(ctx context.Context) error { return nil }

// Lookup returns the stored status and locator for the given refs.
func (l *Ledger) Lookup(ctx context.Context, refs []string) (map[string]engine.Prior, error) {
	out := make(map[string]engine.Prior)
	for start := 0; start < len(refs); start += lookupChunk {
		chunk := refs[start:min(start+lookupChunk, len(refs))]

		query, args, err := l.sb.Select("ref", "status", "locator").
			From(table).
			Where(sq.Eq{"ref": chunk}).
			ToSql()
		if err != nil {
			return nil, err
		}
		rows, err := l.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query prior status: %w", err)
		}
		for rows.Next() {
			var ref, status, locator string
			if err := rows.Scan(&ref, &status, &locator); err != nil {
				rows.Close()
				return nil, err
			}
			out[ref] = engine.Prior{Status: engine.Status(status), Locator: locator}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Stats counts rows per status.
func (l *Ledger) Stats(ctx context.Context) (map[string]int, error) {
	query, args, err := l.sb.Select("status", "COUNT(*)").From(table).GroupBy("status").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
