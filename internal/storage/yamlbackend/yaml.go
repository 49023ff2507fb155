// Package yamlbackend keeps the latest raw and scored snapshot per term as
// YAML documents under a base directory:
//
//	<dir>/raw/<term>_raw_unique.yaml
//	<dir>/results/<term>_results.yaml
//
// Saving a term again replaces its previous snapshot.
package yamlbackend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Cryonoid/TwitLysis/internal/storage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

// ensure yamlBackend implements storage.Backend
var _ storage.Backend = (*yamlBackend)(nil)

const ext = ".yaml"

type yamlBackend struct {
	mu  sync.Mutex
	dir string
}

// New creates a directory-backed storage.Backend rooted at dir.
func New(dir string) (storage.Backend, error) {
	for _, sub := range []string{subdir(storage.Raw), subdir(storage.Scored)} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("yamlbackend: create %s: %w", sub, err)
		}
	}
	return &yamlBackend{dir: dir}, nil
}

func subdir(c storage.Category) string {
	if c == storage.Raw {
		return "raw"
	}
	return "results"
}

// Path returns where rec is written under dir.
func Path(dir string, rec *storage.Record) string {
	return filepath.Join(dir, subdir(rec.Category), rec.Name()+ext)
}

func (b *yamlBackend) Save(_ context.Context, rec *storage.Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("yamlbackend: encode %s: %w", rec.Name(), err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	path := Path(b.dir, rec)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+rec.Name()+"-*")
	if err != nil {
		return fmt.Errorf("yamlbackend: write %s: %w", rec.Name(), err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("yamlbackend: write %s: %w", rec.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("yamlbackend: write %s: %w", rec.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("yamlbackend: rename %s: %w", rec.Name(), err)
	}
	return nil
}

func (b *yamlBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cats := []storage.Category{storage.Raw, storage.Scored}
	if filter.Category != "" {
		cats = []storage.Category{filter.Category}
	}

	matched := []*storage.Record{}
	for _, c := range cats {
		entries, err := os.ReadDir(filepath.Join(b.dir, subdir(c)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("yamlbackend: list %s: %w", subdir(c), err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ext {
				continue
			}
			rec, err := readRecord(filepath.Join(b.dir, subdir(c), name))
			if err != nil {
				return nil, err
			}
			if filter.Match(rec) {
				matched = append(matched, rec)
			}
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return filter.Page(matched), nil
}

func readRecord(path string) (*storage.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("yamlbackend: read %s: %w", filepath.Base(path), err)
	}
	var rec storage.Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("yamlbackend: decode %s: %w", filepath.Base(path), err)
	}
	if rec.Result.Items == nil {
		rec.Result.Items = []tweet.ScoredItem{}
	}
	return &rec, nil
}

func (b *yamlBackend) Close() error {
	return nil
}
