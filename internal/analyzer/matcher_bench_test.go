package analyzer

import (
	"strconv"
	"strings"
	"testing"

	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

// benchmarkItems generates n realistic posts for benchmarking.
func benchmarkItems(n int) []tweet.Item {
	texts := []string{
		"Go 1.25 ships today! Generics keep getting better. #golang",
		"Trying out the new release. The toolchain feels faster.",
		"Hot take: generics were worth the wait? Discuss.",
		"Lunch was great. Back to debugging goroutine leaks.",
		"Conference talk on Go generics is up. Slides in the thread.",
	}
	items := make([]tweet.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, tweet.Item{ID: strconv.Itoa(i), Text: texts[i%len(texts)]})
	}
	return items
}

func BenchmarkFindTermMatches_SmallFeed(b *testing.B) {
	items := benchmarkItems(20)
	terms := []string{"generics", "go"}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		FindTermMatches(items, terms)
	}
}

func BenchmarkFindTermMatches_LargeFeed(b *testing.B) {
	items := benchmarkItems(2000)
	terms := []string{"generics", "go", "toolchain", "goroutine", "release"}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		FindTermMatches(items, terms)
	}
}

func BenchmarkSplitIntoSentences(b *testing.B) {
	content := strings.Repeat("This is a sentence. Here is another one! And a third? ", 20)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		splitIntoSentences(content)
	}
}

// TestFindTermMatchesBasic is a sanity check for the matcher
func TestFindTermMatchesBasic(t *testing.T) {
	items := []tweet.Item{
		{ID: "1", Text: "Go generics are here. Generics everywhere! Lunch later."},
		{ID: "2", Text: "nothing relevant"},
		{ID: "3", Text: "GENERICS"},
	}

	results := FindTermMatches(items, []string{"generics", "  "})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ItemID != "1" || results[0].Count != 2 {
		t.Errorf("expected item 1 with count 2, got %s/%d", results[0].ItemID, results[0].Count)
	}
	if len(results[0].Sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %d", len(results[0].Sentences))
	}
	if results[0].Sentences[1] != "Generics everywhere!" {
		t.Errorf("unexpected sentence %q", results[0].Sentences[1])
	}
	if results[1].ItemID != "3" || results[1].Term != "generics" {
		t.Errorf("unexpected second match %+v", results[1])
	}
}

func TestMentions(t *testing.T) {
	items := benchmarkItems(5)
	if got := Mentions(items, "generics"); got != 3 {
		t.Errorf("expected 3 mentions, got %d", got)
	}
	if got := Mentions(nil, "generics"); got != 0 {
		t.Errorf("expected 0 mentions, got %d", got)
	}
}

// TestSplitIntoSentencesBasic tests sentence splitting
func TestSplitIntoSentencesBasic(t *testing.T) {
	sentences := splitIntoSentences("First sentence. Second one!! Third?\nFourth")

	want := []string{"First sentence.", "Second one!!", "Third?", "Fourth"}
	if len(sentences) != len(want) {
		t.Fatalf("expected %d sentences, got %d", len(want), len(sentences))
	}
	for i, w := range want {
		if sentences[i].original != w {
			t.Errorf("sentence %d: expected %q, got %q", i, w, sentences[i].original)
		}
	}
}
