// Package analyzer derives summary views from scored results: sentiment
// buckets, relevance segments, hashtag and term rankings, and term mentions.
package analyzer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

// Sentiment is the share of items per score bucket, in percent.
type Sentiment struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// Bucket thresholds on the relevancy score.
const (
	PositiveThreshold = 75
	NeutralThreshold  = 40
)

// SentimentOf buckets items by score. An empty input yields an even split.
func SentimentOf(items []tweet.ScoredItem) Sentiment {
	if len(items) == 0 {
		return Sentiment{Positive: 33, Neutral: 34, Negative: 33}
	}
	var pos, neu, neg int
	for _, it := range items {
		switch {
		case it.RelevancyScore >= PositiveThreshold:
			pos++
		case it.RelevancyScore >= NeutralThreshold:
			neu++
		default:
			neg++
		}
	}
	total := float64(len(items))
	pct := func(n int) int { return int(math.Round(float64(n) / total * 100)) }
	return Sentiment{Positive: pct(pos), Neutral: pct(neu), Negative: pct(neg)}
}

// Segment groups items for display.
type Segment string

const (
	High   Segment = "high"
	Medium Segment = "medium"
	Low    Segment = "low"
)

// Segments lists segments from most to least relevant.
var Segments = []Segment{High, Medium, Low}

// SegmentOf places a score in its segment.
func SegmentOf(score int) Segment {
	switch {
	case score >= 75:
		return High
	case score >= 50:
		return Medium
	default:
		return Low
	}
}

// Label is the display heading of a segment.
func (s Segment) Label() string {
	switch s {
	case High:
		return "High relevancy (75-100)"
	case Medium:
		return "Medium relevancy (50-74)"
	default:
		return "Low relevancy (0-49)"
	}
}

// BySegment splits ranked items by segment, preserving order within each.
func BySegment(items []tweet.ScoredItem) map[Segment][]tweet.ScoredItem {
	out := make(map[Segment][]tweet.ScoredItem, len(Segments))
	for _, it := range items {
		s := SegmentOf(it.RelevancyScore)
		out[s] = append(out[s], it)
	}
	return out
}

// HashtagPattern finds inline hashtags in post text.
var HashtagPattern = regexp.MustCompile(`#\w+`)

// ItemHashtags returns the item's tags plus those found in its text, each
// once, in first-seen order.
func ItemHashtags(it tweet.Item) []string {
	seen := make(map[string]struct{}, len(it.Tags))
	var out []string
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	for _, tag := range it.Tags {
		add(tag)
	}
	for _, tag := range HashtagPattern.FindAllString(it.Text, -1) {
		add(tag)
	}
	return out
}

// Count is a ranked label with its frequency.
type Count struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// TopHashtags counts hashtags across results and returns the n most common.
// n <= 0 returns all.
func TopHashtags(results []tweet.Result, n int) []Count {
	counts := map[string]int{}
	for _, res := range results {
		for _, it := range res.Items {
			for _, tag := range ItemHashtags(it.Item) {
				counts[tag]++
			}
		}
	}
	return rank(counts, n)
}

// TopTerms ranks result terms by item count. n <= 0 returns all.
func TopTerms(results []tweet.Result, n int) []Count {
	counts := map[string]int{}
	for _, res := range results {
		counts[res.SearchTerm] = res.ItemCount
	}
	return rank(counts, n)
}

// AllItems flattens the items of every result.
func AllItems(results []tweet.Result) []tweet.ScoredItem {
	var out []tweet.ScoredItem
	for _, res := range results {
		out = append(out, res.Items...)
	}
	return out
}

func rank(counts map[string]int, n int) []Count {
	out := make([]Count, 0, len(counts))
	for k, v := range counts {
		out = append(out, Count{Text: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Text < out[j].Text
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
