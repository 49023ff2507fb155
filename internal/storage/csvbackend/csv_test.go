package csvbackend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Cryonoid/TwitLysis/internal/storage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

func TestCSVBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "twitlysis.csv")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()

	items := []tweet.ScoredItem{
		{Item: tweet.Item{ID: "1", Text: "comma, \"quoted\"\nnewline", Author: "@a", Tags: []string{"#x"}}, RelevancyScore: 55},
	}
	first := storage.NewRecord("run-1", storage.Scored, tweet.NewResult("golang", 55, items), now.Add(-time.Hour))
	second := storage.NewRecord("run-2", storage.Raw, tweet.NewResult("golang", 0, nil), now)

	if err := b.Save(ctx, first); err != nil {
		t.Fatalf("Failed to save first: %v", err)
	}
	if err := b.Save(ctx, second); err != nil {
		t.Fatalf("Failed to save second: %v", err)
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(all))
	}
	if all[0].ID != second.ID {
		t.Errorf("Expected newest first")
	}

	scored, err := b.Query(ctx, storage.Filter{Category: storage.Scored})
	if err != nil {
		t.Fatalf("Failed to query scored: %v", err)
	}
	if len(scored) != 1 {
		t.Fatalf("Expected 1 scored record, got %d", len(scored))
	}
	got := scored[0]
	if got.Result.TrendRelevancy != 55 || got.Result.ItemCount != 1 {
		t.Errorf("Unexpected result header: %+v", got.Result)
	}
	if got.Result.Items[0].Text != items[0].Text {
		t.Errorf("Expected text %q, got %q", items[0].Text, got.Result.Items[0].Text)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Expected created_at %v, got %v", first.CreatedAt, got.CreatedAt)
	}

	// Reopening must not write a second header.
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err = New(filePath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	all, err = b.Query(ctx, storage.Filter{Term: "golang"})
	if err != nil {
		t.Fatalf("Failed to query after reopen: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 records after reopen, got %d", len(all))
	}
}

func TestCSVBackend_Empty(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "empty.csv"))
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	defer b.Close()

	recs, err := b.Query(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}
