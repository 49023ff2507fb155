// Package postgres stores analysis records in PostgreSQL, keeping the scored
// items as a JSONB column.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Cryonoid/TwitLysis/internal/storage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

var _ storage.Backend = (*Backend)(nil)

// Backend is a pgx pool bound to the analysis_records table.
type Backend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS analysis_records (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL,
	category        TEXT NOT NULL,
	term            TEXT NOT NULL,
	term_key        TEXT NOT NULL,
	trend_relevancy INTEGER NOT NULL,
	tweets_count    INTEGER NOT NULL,
	tweets          JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS analysis_records_term_idx
	ON analysis_records (term_key, category, created_at DESC);
`

const insertRecord = `
INSERT INTO analysis_records
	(id, run_id, category, term, term_key, trend_relevancy, tweets_count, tweets, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const selectRecords = `
SELECT id, run_id, category, term, trend_relevancy, tweets_count, tweets, created_at
FROM analysis_records`

// New connects to dsn, checks the connection and applies the schema.
func New(ctx context.Context, dsn string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return &Backend{pool: pool}, nil
}

func (b *Backend) Save(ctx context.Context, rec *storage.Record) error {
	items, err := json.Marshal(rec.Result.Items)
	if err != nil {
		return fmt.Errorf("postgres: encode %s: %w", rec.Name(), err)
	}
	if _, err := b.pool.Exec(ctx, insertRecord,
		rec.ID, rec.RunID, string(rec.Category), rec.Term, storage.TermKey(rec.Term),
		rec.Result.TrendRelevancy, rec.Result.ItemCount, items, rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert %s: %w", rec.Name(), err)
	}
	return nil
}

// where accumulates numbered predicates and their arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(format string, v any) {
	w.args = append(w.args, v)
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func buildQuery(f storage.Filter) (string, []any) {
	var w where
	if f.Term != "" {
		w.add("term_key = $%d", storage.TermKey(f.Term))
	}
	if f.Category != "" {
		w.add("category = $%d", string(f.Category))
	}
	if f.Since != nil {
		w.add("created_at >= $%d", *f.Since)
	}

	sql := selectRecords + w.String() + " ORDER BY created_at DESC"
	if f.Limit > 0 {
		w.args = append(w.args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(w.args))
	}
	if f.Offset > 0 {
		w.args = append(w.args, f.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(w.args))
	}
	return sql, w.args
}

func (b *Backend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	sql, args := buildQuery(filter)
	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if recs == nil {
		recs = []*storage.Record{}
	}
	return recs, nil
}

func scanRecord(row pgx.CollectableRow) (*storage.Record, error) {
	var (
		r        storage.Record
		category string
		items    []byte
	)
	if err := row.Scan(&r.ID, &r.RunID, &category, &r.Term,
		&r.Result.TrendRelevancy, &r.Result.ItemCount, &items, &r.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if err := json.Unmarshal(items, &r.Result.Items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.ID, err)
	}
	if r.Result.Items == nil {
		r.Result.Items = []tweet.ScoredItem{}
	}
	r.Category = storage.Category(category)
	r.Result.SearchTerm = r.Term
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}
