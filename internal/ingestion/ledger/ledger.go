// Package ledger records the outcome of every applied import event in
// PostgreSQL so redelivered Kafka messages are not applied twice and
// operators can audit imports.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/postgres"
)

// Schema creates the ledger table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tm_imports (
		id          BIGSERIAL PRIMARY KEY,
		event_id    TEXT NOT NULL UNIQUE,
		op          TEXT NOT NULL,
		origin      TEXT,
		status      TEXT NOT NULL,
		doc_id      BIGINT,
		replaced    BIGINT[],
		error       TEXT,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS tm_imports_origin_idx ON tm_imports (origin)`,
}

type Ledger struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New runs the schema migration and returns the ledger.
func New(ctx context.Context, db *postgres.Client) (*Ledger, error) {
	if err := db.Migrate(ctx, Schema...); err != nil {
		return nil, apperrors.Storage("migrating import ledger", err)
	}
	return &Ledger{
		db:     db,
		logger: slog.Default().With("component", "import-ledger"),
	}, nil
}

// Seen reports whether eventID has already been recorded.
func (l *Ledger) Seen(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := l.db.DB.QueryRowContext(ctx,
		`SELECT 1 FROM tm_imports WHERE event_id = $1`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Storage("querying import ledger", err)
	}
	return true, nil
}

// Record stores o. Recording the same event twice keeps the first row.
func (l *Ledger) Record(ctx context.Context, o ingestion.Outcome) error {
	replaced := make([]int64, len(o.Replaced))
	for i, id := range o.Replaced {
		replaced[i] = int64(id)
	}
	_, err := l.db.DB.ExecContext(ctx,
		`INSERT INTO tm_imports (event_id, op, origin, status, doc_id, replaced, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING`,
		o.EventID, o.Op, nullable(o.Origin), o.Status, nullableID(o.DocID), pq.Array(replaced), nullable(o.Error),
	)
	if err != nil {
		return apperrors.Storage("recording import outcome", err)
	}
	l.logger.Debug("import recorded", "event_id", o.EventID, "status", o.Status)
	return nil
}

// Summary counts recorded events per status, optionally for one origin.
func (l *Ledger) Summary(ctx context.Context, origin string) (map[string]int64, error) {
	rows, err := l.db.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM tm_imports
		WHERE $1 = '' OR origin = $1
		GROUP BY status`, origin)
	if err != nil {
		return nil, apperrors.Storage("summarising import ledger", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.Storage("scanning import ledger", err)
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating import ledger: %w", err)
	}
	return out, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableID(id uint64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(id), Valid: true}
}
