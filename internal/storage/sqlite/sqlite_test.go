package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/Cryonoid/TwitLysis/internal/storage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

func TestSQLiteBackend(t *testing.T) {
	// Use an in-memory database for testing
	dsn := "file::memory:?cache=shared"
	b, err := New(dsn)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	scored := tweet.NewResult("Golang Generics", 64, []tweet.ScoredItem{
		{Item: tweet.Item{ID: "1", Text: "generics in go", Author: "@a", Tags: []string{"#golang"}}, RelevancyScore: 88},
		{Item: tweet.Item{ID: "2", Text: "lunch", Author: "@b", Tags: []string{}}, RelevancyScore: 0},
	})
	raw := tweet.NewResult("Golang Generics", 0, tweet.Unscored([]tweet.Item{{ID: "1", Text: "generics in go"}}))

	rawRec := storage.NewRecord("run-1", storage.Raw, raw, now.Add(-time.Minute))
	scoredRec := storage.NewRecord("run-1", storage.Scored, scored, now)
	other := storage.NewRecord("run-2", storage.Scored, tweet.NewResult("rust", 10, nil), now.Add(-2*time.Hour))

	for _, rec := range []*storage.Record{rawRec, scoredRec, other} {
		if err := b.Save(ctx, rec); err != nil {
			t.Fatalf("Failed to save record: %v", err)
		}
	}

	// Term matching ignores case and surrounding space.
	results, err := b.Query(ctx, storage.Filter{Term: "  golang generics "})
	if err != nil {
		t.Fatalf("Failed to query records: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(results))
	}
	if results[0].ID != scoredRec.ID {
		t.Errorf("Expected newest record %s first, got %s", scoredRec.ID, results[0].ID)
	}

	got := results[0]
	if got.Category != storage.Scored {
		t.Errorf("Expected category %s, got %s", storage.Scored, got.Category)
	}
	if got.RunID != "run-1" {
		t.Errorf("Expected run id run-1, got %s", got.RunID)
	}
	if got.Result.TrendRelevancy != 64 {
		t.Errorf("Expected trend 64, got %d", got.Result.TrendRelevancy)
	}
	if got.Result.ItemCount != 2 || len(got.Result.Items) != 2 {
		t.Fatalf("Expected 2 items, got count=%d len=%d", got.Result.ItemCount, len(got.Result.Items))
	}
	if got.Result.Items[0].RelevancyScore != 88 || got.Result.Items[0].Tags[0] != "#golang" {
		t.Errorf("Unexpected first item %+v", got.Result.Items[0])
	}
	if !got.CreatedAt.Equal(scoredRec.CreatedAt) {
		t.Errorf("Expected CreatedAt %v, got %v", scoredRec.CreatedAt, got.CreatedAt)
	}
	if got.Result.SearchTerm != "Golang Generics" {
		t.Errorf("Expected search term to round trip, got %q", got.Result.SearchTerm)
	}

	// Category filter
	rawOnly, err := b.Query(ctx, storage.Filter{Category: storage.Raw})
	if err != nil {
		t.Fatalf("Failed to query raw records: %v", err)
	}
	if len(rawOnly) != 1 || rawOnly[0].ID != rawRec.ID {
		t.Fatalf("Expected only the raw record, got %d", len(rawOnly))
	}

	// Since filter
	past := now.Add(-1 * time.Hour)
	recent, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query records with Since: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recent))
	}

	// Offset without limit
	rest, err := b.Query(ctx, storage.Filter{Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query records with Offset: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("Expected 2 records after offset, got %d", len(rest))
	}

	latest, err := storage.Latest(ctx, b, "golang generics")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.ID != scoredRec.ID {
		t.Fatalf("Expected latest scored record %s, got %+v", scoredRec.ID, latest)
	}

	missing, err := storage.Latest(ctx, b, "nothing here")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("Expected nil for unknown term, got %+v", missing)
	}
}
