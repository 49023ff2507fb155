// Package relevance scores post texts against a search term using TF-IDF
// cosine similarity.
package relevance

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/Cryonoid/TwitLysis/internal/stage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

// Mode describes how a Report's scores were produced.
type Mode string

const (
	ModeTFIDF     Mode = "tfidf"
	ModeHeuristic Mode = "heuristic"
	ModeSkipped   Mode = "skipped"
	ModeFailed    Mode = "failed"
)

// Status maps the mode to the relevancy_scoring stage status.
func (m Mode) Status() stage.Status {
	switch m {
	case ModeTFIDF:
		return stage.Success
	case ModeHeuristic:
		return stage.Partial
	case ModeSkipped:
		return stage.Skipped
	default:
		return stage.Failed
	}
}

// Heuristic scores used when the vector space is degenerate.
const (
	ExactMatchScore = 100
	SubstringScore  = 75
	FallbackScore   = 25
)

// ErrEmptyVocabulary is recorded when no document yields a countable token.
var ErrEmptyVocabulary = errors.New("relevance: empty vocabulary")

// tokenPattern matches runs of two or more word characters.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}\p{M}_]{2,}`)

// Report is the outcome of scoring one item set. Items keep input order.
type Report struct {
	Items []tweet.ScoredItem
	Trend int
	Mode  Mode
	// Err holds the recorded failure when Mode is ModeFailed.
	Err error
}

// Scorer computes relevancy scores. A Scorer is safe for concurrent use once
// configured.
type Scorer struct {
	StopWords map[string]struct{}
	Logger    *slog.Logger
}

// NewScorer returns a scorer using the English stop word list.
func NewScorer(logger *slog.Logger) *Scorer {
	return &Scorer{StopWords: StopWordSet(EnglishStopWords...), Logger: logger}
}

func (s *Scorer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Score assigns every item a score in [0,100] and computes the trend score.
// Failures are recorded in the report and never returned.
func (s *Scorer) Score(term string, items []tweet.Item) (rep Report) {
	if len(items) == 0 {
		return Report{Items: []tweet.ScoredItem{}, Mode: ModeSkipped}
	}

	scored := tweet.Unscored(items)
	var idx []int
	docs := []string{term}
	for i, it := range items {
		if strings.TrimSpace(it.Text) == "" {
			continue
		}
		idx = append(idx, i)
		docs = append(docs, it.Text)
	}
	if len(idx) == 0 {
		s.logger().Warn("relevance: no texts to score", "term", term, "items", len(items))
		return Report{Items: scored, Mode: ModeSkipped}
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("relevance: vectorize: %v", r)
			s.logger().Error("relevance: scoring failed", "term", term, "error", err)
			rep = Report{Items: tweet.Unscored(items), Mode: ModeFailed, Err: err}
		}
	}()

	tokens := make([][]string, len(docs))
	vocab := map[string]int{}
	for i, d := range docs {
		tokens[i] = s.tokenize(d)
		for _, tok := range tokens[i] {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}

	if allSame(docs) || len(vocab) == 1 {
		s.logger().Warn("relevance: degenerate input, using heuristic", "term", term, "vocabulary", len(vocab))
		sims := make([]float64, len(idx))
		for k, i := range idx {
			sc := heuristic(term, items[i].Text)
			scored[i].RelevancyScore = sc
			sims[k] = float64(sc) / 100
		}
		return Report{Items: scored, Trend: toScore(mean(sims)), Mode: ModeHeuristic}
	}

	if len(vocab) == 0 {
		s.logger().Error("relevance: scoring failed", "term", term, "error", ErrEmptyVocabulary)
		return Report{Items: scored, Mode: ModeFailed, Err: ErrEmptyVocabulary}
	}

	vecs := vectorize(tokens, vocab)
	sims := make([]float64, len(idx))
	for k, i := range idx {
		sims[k] = dot(vecs[0], vecs[k+1])
		scored[i].RelevancyScore = toScore(sims[k])
	}
	return Report{Items: scored, Trend: toScore(mean(sims)), Mode: ModeTFIDF}
}

func (s *Scorer) tokenize(doc string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(doc), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := s.StopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// vectorize builds L2-normalized TF-IDF vectors with smoothed idf.
func vectorize(tokens [][]string, vocab map[string]int) [][]float64 {
	n := len(tokens)
	df := make([]float64, len(vocab))
	counts := make([]map[int]float64, n)
	for i, toks := range tokens {
		counts[i] = map[int]float64{}
		for _, tok := range toks {
			counts[i][vocab[tok]]++
		}
		for j := range counts[i] {
			df[j]++
		}
	}

	idf := make([]float64, len(vocab))
	for j := range idf {
		idf[j] = math.Log((1+float64(n))/(1+df[j])) + 1
	}

	vecs := make([][]float64, n)
	for i := range tokens {
		v := make([]float64, len(vocab))
		var norm float64
		// Sorted keys keep the float summation order stable across runs.
		keys := make([]int, 0, len(counts[i]))
		for j := range counts[i] {
			keys = append(keys, j)
		}
		sort.Ints(keys)
		for _, j := range keys {
			v[j] = counts[i][j] * idf[j]
			norm += v[j] * v[j]
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for _, j := range keys {
				v[j] /= norm
			}
		}
		vecs[i] = v
	}
	return vecs
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func heuristic(term, text string) int {
	t := strings.ToLower(strings.TrimSpace(term))
	x := strings.ToLower(strings.TrimSpace(text))
	switch {
	case x == t:
		return ExactMatchScore
	case t != "" && strings.Contains(x, t):
		return SubstringScore
	default:
		return FallbackScore
	}
}

func allSame(docs []string) bool {
	for _, d := range docs[1:] {
		if d != docs[0] {
			return false
		}
	}
	return true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// toScore converts a similarity to an integer score in [0,100].
func toScore(sim float64) int {
	if math.IsNaN(sim) {
		return 0
	}
	sc := int(math.Round(sim * 100))
	if sc < 0 {
		return 0
	}
	if sc > 100 {
		return 100
	}
	return sc
}
