package csvbackend

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Cryonoid/TwitLysis/internal/storage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order. Items are stored as a JSON array.
var headers = []string{
	"id",
	"run_id",
	"category",
	"term",
	"trend_relevancy",
	"tweets_count",
	"tweets_json",
	"created_at",
}

// New creates a CSV-backed storage.Backend appending to filePath.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: open %s: %w", filePath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: stat %s: %w", filePath, err)
	}
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
	}

	return &csvBackend{file: f}, nil
}

func (b *csvBackend) Save(_ context.Context, rec *storage.Record) error {
	itemsJSON, err := json.Marshal(rec.Result.Items)
	if err != nil {
		return fmt.Errorf("csvbackend: encode items: %w", err)
	}

	row := []string{
		rec.ID,
		rec.RunID,
		string(rec.Category),
		rec.Term,
		strconv.Itoa(rec.Result.TrendRelevancy),
		strconv.Itoa(rec.Result.ItemCount),
		string(itemsJSON),
		rec.CreatedAt.Format(time.RFC3339Nano),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: seek: %w", err)
	}
	w := csv.NewWriter(b.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("csvbackend: write %s: %w", rec.Name(), err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: flush %s: %w", rec.Name(), err)
	}
	return nil
}

func (b *csvBackend) Query(_ context.Context, filter storage.Filter) ([]*storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: seek: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = len(headers)

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.Record{}, nil
		}
		return nil, fmt.Errorf("csvbackend: read header: %w", err)
	}

	var matched []*storage.Record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: read row: %w", err)
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, err
		}
		if filter.Match(rec) {
			matched = append(matched, rec)
		}
	}

	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return filter.Page(matched), nil
}

func parseRow(row []string) (*storage.Record, error) {
	trend, err := strconv.Atoi(row[4])
	if err != nil {
		return nil, fmt.Errorf("csvbackend: trend_relevancy: %w", err)
	}
	count, err := strconv.Atoi(row[5])
	if err != nil {
		return nil, fmt.Errorf("csvbackend: tweets_count: %w", err)
	}
	var items []tweet.ScoredItem
	if err := json.Unmarshal([]byte(row[6]), &items); err != nil {
		return nil, fmt.Errorf("csvbackend: tweets_json: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, row[7])
	if err != nil {
		return nil, fmt.Errorf("csvbackend: created_at: %w", err)
	}
	if items == nil {
		items = []tweet.ScoredItem{}
	}

	return &storage.Record{
		ID:       row[0],
		RunID:    row[1],
		Category: storage.Category(row[2]),
		Term:     row[3],
		Result: tweet.Result{
			SearchTerm:     row[3],
			TrendRelevancy: trend,
			ItemCount:      count,
			Items:          items,
		},
		CreatedAt: createdAt,
	}, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
