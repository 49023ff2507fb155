// Package jsonbackend appends analysis records to a newline-delimited JSON
// file.
package jsonbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/Cryonoid/TwitLysis/internal/storage"
)

var _ storage.Backend = (*Backend)(nil)

// Backend holds the NDJSON file open for appends. Queries rewind and
// re-read it.
type Backend struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// New opens path for appending, creating it if needed.
func New(path string) (*Backend, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: open %s: %w", path, err)
	}
	return &Backend{path: path, file: f}, nil
}

func (b *Backend) Save(_ context.Context, rec *storage.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jsonbackend: encode %s: %w", rec.Name(), err)
	}
	line = append(line, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.file.Write(line); err != nil {
		return fmt.Errorf("jsonbackend: write %s: %w", rec.Name(), err)
	}
	return nil
}

// Query streams every stored record through filter and returns the matches
// newest first.
func (b *Backend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("jsonbackend: rewind %s: %w", b.path, err)
	}
	defer b.file.Seek(0, io.SeekEnd) //nolint:errcheck // appends ignore the offset

	var matched []*storage.Record
	dec := json.NewDecoder(b.file)
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r storage.Record
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("jsonbackend: %s record %d: %w", b.path, n, err)
		}
		if filter.Match(&r) {
			matched = append(matched, &r)
		}
	}

	// Appends are chronological.
	slices.Reverse(matched)
	return filter.Page(matched), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
