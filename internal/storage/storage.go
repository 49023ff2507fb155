package storage

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

// Category distinguishes the two snapshots persisted per run.
type Category string

const (
	// Raw is the deduplicated, unscored collection.
	Raw Category = "raw"
	// Scored is the ranked, scored result.
	Scored Category = "scored"
)

// Record is one persisted analysis snapshot.
type Record struct {
	ID        string       `json:"id" yaml:"id"`
	RunID     string       `json:"run_id" yaml:"run_id"`
	Category  Category     `json:"category" yaml:"category"`
	Term      string       `json:"term" yaml:"term"`
	Result    tweet.Result `json:"result" yaml:"result"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
}

// NewRecord wraps a result for persistence.
func NewRecord(runID string, cat Category, res tweet.Result, now time.Time) *Record {
	return &Record{
		ID:        uuid.NewString(),
		RunID:     runID,
		Category:  cat,
		Term:      res.SearchTerm,
		Result:    res,
		CreatedAt: now.UTC(),
	}
}

// Name returns the record's file stem: "<term>_raw_unique" for raw
// snapshots and "<term>_results" for scored ones, with the term passed
// through FileStem.
func (r *Record) Name() string {
	stem := FileStem(r.Term)
	if r.Category == Raw {
		return stem + "_raw_unique"
	}
	return stem + "_results"
}

// MaxStem caps the rune length of a FileStem.
const MaxStem = 80

// FileStem maps a search term to a single safe path element. Letters,
// digits, '_' and '-' are kept; every other rune, including separators and
// dots, becomes '_'. The result is never empty.
func FileStem(term string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(term) {
		if n == MaxStem {
			break
		}
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// TermKey normalizes a term for comparison.
func TermKey(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	Term     string
	Category Category
	Since    *time.Time
	Limit    int
	Offset   int
}

// Match reports whether r passes the filter's predicates. Limit and Offset
// are applied separately by Page.
func (f Filter) Match(r *Record) bool {
	if f.Term != "" && TermKey(r.Term) != TermKey(f.Term) {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page applies Offset and Limit to records already ordered newest first.
func (f Filter) Page(records []*Record) []*Record {
	if f.Offset > 0 {
		if f.Offset >= len(records) {
			return []*Record{}
		}
		records = records[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(records) {
		records = records[:f.Limit]
	}
	return records
}

// Backend stores and queries analysis records.
type Backend interface {
	Save(ctx context.Context, rec *Record) error
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Close() error
}

// Latest returns the newest scored record for term, or nil when none exists.
func Latest(ctx context.Context, b Backend, term string) (*Record, error) {
	recs, err := b.Query(ctx, Filter{Term: term, Category: Scored, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}
