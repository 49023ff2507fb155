// Package tweet holds the records that flow through the analysis pipeline.
package tweet

import (
	"sort"
	"strings"
)

// UnknownAuthor is recorded when no author could be extracted from a post.
const UnknownAuthor = "unknown"

// Item is a candidate post produced by the extractor. It is not modified
// after creation.
type Item struct {
	ID     string   `json:"id" yaml:"id"`
	Text   string   `json:"text" yaml:"text"`
	Author string   `json:"username" yaml:"username"`
	Tags   []string `json:"hashtags" yaml:"hashtags"`
}

// Normalized returns the text used for duplicate comparison.
func (it Item) Normalized() string {
	return strings.ToLower(strings.TrimSpace(it.Text))
}

// ScoredItem is an Item with its relevance to the search term.
type ScoredItem struct {
	Item           `yaml:",inline"`
	RelevancyScore int `json:"relevancy_score" yaml:"relevancy_score"`
}

// Result is the ranked outcome of one analysis run.
type Result struct {
	SearchTerm     string       `json:"search_term" yaml:"search_term"`
	TrendRelevancy int          `json:"trend_relevancy" yaml:"trend_relevancy"`
	ItemCount      int          `json:"tweets_count" yaml:"tweets_count"`
	Items          []ScoredItem `json:"tweets" yaml:"tweets"`
}

// NewResult assembles a Result, ranking items by score.
func NewResult(term string, trend int, items []ScoredItem) Result {
	if items == nil {
		items = []ScoredItem{}
	}
	Rank(items)
	return Result{
		SearchTerm:     term,
		TrendRelevancy: trend,
		ItemCount:      len(items),
		Items:          items,
	}
}

// Unscored wraps items with a zero score, preserving order.
func Unscored(items []Item) []ScoredItem {
	out := make([]ScoredItem, len(items))
	for i, it := range items {
		out[i] = ScoredItem{Item: it}
	}
	return out
}

// Rank sorts items by score descending. Items with equal scores keep their
// extraction order.
func Rank(items []ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RelevancyScore > items[j].RelevancyScore
	})
}

// Top returns up to n of the highest ranked items. Items must already be
// ranked.
func (r Result) Top(n int) []ScoredItem {
	if n <= 0 || len(r.Items) == 0 {
		return []ScoredItem{}
	}
	if n > len(r.Items) {
		n = len(r.Items)
	}
	return r.Items[:n]
}
