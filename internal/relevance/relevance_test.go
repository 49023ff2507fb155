package relevance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cryonoid/TwitLysis/internal/relevance"
	"github.com/Cryonoid/TwitLysis/internal/stage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

func items(texts ...string) []tweet.Item {
	out := make([]tweet.Item, len(texts))
	for i, t := range texts {
		out[i] = tweet.Item{ID: string(rune('a' + i)), Text: t, Author: "@x"}
	}
	return out
}

func scores(rep relevance.Report) []int {
	out := make([]int, len(rep.Items))
	for i, it := range rep.Items {
		out[i] = it.RelevancyScore
	}
	return out
}

func TestScore_Empty(t *testing.T) {
	rep := relevance.NewScorer(nil).Score("golang", nil)
	assert.Empty(t, rep.Items)
	assert.NotNil(t, rep.Items)
	assert.Equal(t, 0, rep.Trend)
	assert.Equal(t, relevance.ModeSkipped, rep.Mode)
}

func TestScore_NoTexts(t *testing.T) {
	rep := relevance.NewScorer(nil).Score("golang", items("", "   "))
	assert.Equal(t, []int{0, 0}, scores(rep))
	assert.Equal(t, 0, rep.Trend)
	assert.Equal(t, stage.Skipped, rep.Mode.Status())
}

func TestScore_DegenerateHeuristic(t *testing.T) {
	s := relevance.NewScorer(nil)
	s.StopWords = relevance.StopWordSet(append(relevance.EnglishStopWords, "rocks", "totally", "unrelated")...)

	rep := s.Score("AI", items("AI", "AI rocks", "totally unrelated"))

	assert.Equal(t, relevance.ModeHeuristic, rep.Mode)
	assert.Equal(t, stage.Partial, rep.Mode.Status())
	assert.Equal(t, []int{100, 75, 25}, scores(rep))
	assert.Equal(t, 67, rep.Trend)
}

func TestScore_IdenticalDocuments(t *testing.T) {
	rep := relevance.NewScorer(nil).Score("golang", items("golang", "golang"))
	assert.Equal(t, relevance.ModeHeuristic, rep.Mode)
	assert.Equal(t, []int{100, 100}, scores(rep))
	assert.Equal(t, 100, rep.Trend)
}

func TestScore_TFIDF(t *testing.T) {
	rep := relevance.NewScorer(nil).Score("golang release", items(
		"golang release notes are out",
		"the weather is nice today",
		"new golang tooling",
	))
	require.Equal(t, relevance.ModeTFIDF, rep.Mode)
	got := scores(rep)

	assert.Greater(t, got[0], got[2])
	assert.Greater(t, got[2], got[1])
	assert.Equal(t, 0, got[1])
	assert.Greater(t, rep.Trend, 0)
}

func TestScore_Bounds(t *testing.T) {
	rep := relevance.NewScorer(nil).Score("go go go", items(
		"go go go", "Go!", "something else", "go, go and more go", "unrelated words entirely",
	))
	for i, sc := range scores(rep) {
		assert.GreaterOrEqual(t, sc, 0, "item %d", i)
		assert.LessOrEqual(t, sc, 100, "item %d", i)
	}
	assert.GreaterOrEqual(t, rep.Trend, 0)
	assert.LessOrEqual(t, rep.Trend, 100)
}

func TestScore_EmptyVocabularyFails(t *testing.T) {
	rep := relevance.NewScorer(nil).Score("the", items("a an", "of to"))
	assert.Equal(t, relevance.ModeFailed, rep.Mode)
	assert.ErrorIs(t, rep.Err, relevance.ErrEmptyVocabulary)
	assert.Equal(t, []int{0, 0}, scores(rep))
	assert.Equal(t, 0, rep.Trend)
}

func TestScore_Deterministic(t *testing.T) {
	s := relevance.NewScorer(nil)
	in := items("rust and go", "go concurrency patterns", "python")
	first := s.Score("go concurrency", in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, scores(first), scores(s.Score("go concurrency", in)))
	}
}

func TestScore_KeepsInputOrder(t *testing.T) {
	in := items("zzz unrelated", "kubernetes operators")
	rep := relevance.NewScorer(nil).Score("kubernetes", in)
	require.Len(t, rep.Items, 2)
	assert.Equal(t, in[0].ID, rep.Items[0].ID)
	assert.Equal(t, in[1].ID, rep.Items[1].ID)
}
