// Package sqlite stores analysis records in a single SQLite file through the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Cryonoid/TwitLysis/internal/storage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

var _ storage.Backend = (*Backend)(nil)

// Backend is a database/sql handle bound to the analysis_records table.
type Backend struct {
	db *sql.DB
}

// created_at holds unix nanoseconds so ordering and range filters stay
// numeric.
const schema = `
CREATE TABLE IF NOT EXISTS analysis_records (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL,
	category        TEXT NOT NULL,
	term            TEXT NOT NULL,
	term_key        TEXT NOT NULL,
	trend_relevancy INTEGER NOT NULL,
	tweets_count    INTEGER NOT NULL,
	tweets_json     TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS analysis_records_term_idx
	ON analysis_records (term_key, category, created_at);
`

const insertRecord = `
INSERT INTO analysis_records
	(id, run_id, category, term, term_key, trend_relevancy, tweets_count, tweets_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectRecords = `
SELECT id, run_id, category, term, trend_relevancy, tweets_count, tweets_json, created_at
FROM analysis_records`

// New opens (creating if needed) the database at dsn and applies the schema.
func New(dsn string) (*Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Save(ctx context.Context, rec *storage.Record) error {
	items, err := json.Marshal(rec.Result.Items)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s: %w", rec.Name(), err)
	}
	if _, err := b.db.ExecContext(ctx, insertRecord,
		rec.ID, rec.RunID, string(rec.Category), rec.Term, storage.TermKey(rec.Term),
		rec.Result.TrendRelevancy, rec.Result.ItemCount, string(items), rec.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("sqlite: insert %s: %w", rec.Name(), err)
	}
	return nil
}

func buildQuery(f storage.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Term != "" {
		conds = append(conds, "term_key = ?")
		args = append(args, storage.TermKey(f.Term))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UnixNano())
	}

	var q strings.Builder
	q.WriteString(selectRecords)
	if len(conds) > 0 {
		q.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	// rowid breaks ties between records saved within the same nanosecond.
	q.WriteString(" ORDER BY created_at DESC, rowid DESC")

	// OFFSET is only valid after LIMIT; -1 leaves the limit open.
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		q.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, max(f.Offset, 0))
	}
	return q.String(), args
}

func (b *Backend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	q, args := buildQuery(filter)
	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	recs := []*storage.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return recs, nil
}

func scanRecord(rows *sql.Rows) (*storage.Record, error) {
	var (
		r        storage.Record
		category string
		items    string
		nanos    int64
	)
	if err := rows.Scan(&r.ID, &r.RunID, &category, &r.Term,
		&r.Result.TrendRelevancy, &r.Result.ItemCount, &items, &nanos); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &r.Result.Items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.ID, err)
	}
	if r.Result.Items == nil {
		r.Result.Items = []tweet.ScoredItem{}
	}
	r.Category = storage.Category(category)
	r.Result.SearchTerm = r.Term
	r.CreatedAt = time.Unix(0, nanos).UTC()
	return &r, nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}
