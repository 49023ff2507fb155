package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

func scored(scores ...int) []tweet.ScoredItem {
	out := make([]tweet.ScoredItem, len(scores))
	for i, s := range scores {
		out[i] = tweet.ScoredItem{Item: tweet.Item{ID: string(rune('a' + i))}, RelevancyScore: s}
	}
	return out
}

func TestSentimentOf(t *testing.T) {
	assert.Equal(t, Sentiment{Positive: 33, Neutral: 34, Negative: 33}, SentimentOf(nil))
	assert.Equal(t, Sentiment{Positive: 50, Neutral: 25, Negative: 25}, SentimentOf(scored(90, 75, 40, 39)))
	assert.Equal(t, Sentiment{Positive: 0, Neutral: 0, Negative: 100}, SentimentOf(scored(0, 10)))
}

func TestSegmentOf(t *testing.T) {
	cases := map[int]Segment{100: High, 75: High, 74: Medium, 50: Medium, 49: Low, 0: Low}
	for score, want := range cases {
		assert.Equal(t, want, SegmentOf(score), "score %d", score)
	}
}

func TestBySegment_KeepsOrder(t *testing.T) {
	got := BySegment(scored(90, 80, 60, 10, 5))
	assert.Len(t, got[High], 2)
	assert.Equal(t, "a", got[High][0].ID)
	assert.Equal(t, "b", got[High][1].ID)
	assert.Len(t, got[Medium], 1)
	assert.Len(t, got[Low], 2)
}

func TestItemHashtags_UniquePerItem(t *testing.T) {
	it := tweet.Item{Text: "love #go and #rust, #go again", Tags: []string{"#go"}}
	assert.Equal(t, []string{"#go", "#rust"}, ItemHashtags(it))
}

func TestTopHashtags(t *testing.T) {
	results := []tweet.Result{
		{SearchTerm: "go", Items: []tweet.ScoredItem{
			{Item: tweet.Item{Text: "#go is great #go", Tags: []string{"#go"}}},
			{Item: tweet.Item{Text: "rust and #go", Tags: []string{"#rust"}}},
		}},
		{SearchTerm: "rust", Items: []tweet.ScoredItem{
			{Item: tweet.Item{Text: "#rust wins", Tags: []string{}}},
			{Item: tweet.Item{Text: "#zig"}},
		}},
	}

	got := TopHashtags(results, 2)
	assert.Equal(t, []Count{{Text: "#go", Count: 2}, {Text: "#rust", Count: 2}}, got)
	assert.Len(t, TopHashtags(results, 0), 3)
}

func TestTopTerms(t *testing.T) {
	results := []tweet.Result{
		{SearchTerm: "a", ItemCount: 3},
		{SearchTerm: "b", ItemCount: 10},
		{SearchTerm: "c", ItemCount: 1},
	}
	got := TopTerms(results, 2)
	assert.Equal(t, []Count{{Text: "b", Count: 10}, {Text: "a", Count: 3}}, got)
}

func TestAllItems(t *testing.T) {
	results := []tweet.Result{{Items: scored(1, 2)}, {Items: scored(3)}}
	assert.Len(t, AllItems(results), 3)
}

func TestFindTermMatches_BlankTermBeforeReal(t *testing.T) {
	items := []tweet.Item{{ID: "1", Text: "Go is fun. Rust too!"}}
	got := FindTermMatches(items, []string{" ", "  Go ", "rust"})
	if assert.Len(t, got, 2) {
		assert.Equal(t, "Go", got[0].Term)
		assert.Equal(t, []string{"Go is fun."}, got[0].Sentences)
		assert.Equal(t, "rust", got[1].Term)
		assert.Equal(t, 1, got[1].Count)
	}
}
