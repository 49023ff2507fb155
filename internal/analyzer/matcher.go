package analyzer

import (
	"strings"
	"unicode"

	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

// TermMatch represents occurrences of a term within one post.
type TermMatch struct {
	Term      string   `json:"term"`
	ItemID    string   `json:"item_id"`
	Count     int      `json:"count"`
	Sentences []string `json:"sentences"`
}

// FindTermMatches scans each item for each term (case-insensitive) and
// returns one TermMatch per item and term that occur together, with the
// sentences containing the term.
func FindTermMatches(items []tweet.Item, terms []string) []TermMatch {
	if len(items) == 0 || len(terms) == 0 {
		return nil
	}

	type needle struct{ orig, lower string }
	needles := make([]needle, 0, len(terms))
	for _, term := range terms {
		if t := strings.TrimSpace(term); t != "" {
			needles = append(needles, needle{orig: t, lower: strings.ToLower(t)})
		}
	}

	var results []TermMatch
	for _, it := range items {
		lowerText := strings.ToLower(it.Text)
		var sentences []sentence
		for _, n := range needles {
			count := strings.Count(lowerText, n.lower)
			if count == 0 {
				continue
			}
			// Split lazily; most posts match nothing.
			if sentences == nil {
				sentences = splitIntoSentences(it.Text)
			}
			var matched []string
			for _, s := range sentences {
				if strings.Contains(s.lower, n.lower) {
					matched = append(matched, s.original)
				}
			}
			results = append(results, TermMatch{
				Term:      n.orig,
				ItemID:    it.ID,
				Count:     count,
				Sentences: matched,
			})
		}
	}
	return results
}

// Mentions sums the occurrences of term across items.
func Mentions(items []tweet.Item, term string) int {
	total := 0
	for _, m := range FindTermMatches(items, []string{term}) {
		total += m.Count
	}
	return total
}

type sentence struct {
	original string
	lower    string
}

// splitIntoSentences splits text on '.', '!', '?' and newlines, keeping the
// delimiter with its sentence.
func splitIntoSentences(text string) []sentence {
	if len(text) == 0 {
		return nil
	}

	// Posts rarely hold more than a handful of sentences.
	out := make([]sentence, 0, 4)
	start := 0
	push := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, sentence{original: s, lower: strings.ToLower(s)})
		}
	}

	for i, r := range text {
		if i < start || !isDelim(r) {
			continue
		}
		end := i + 1
		for end < len(text) && (isDelim(rune(text[end])) || unicode.IsSpace(rune(text[end]))) {
			end++
		}
		push(text[start:end])
		start = end
	}
	if start < len(text) {
		push(text[start:])
	}
	return out
}

func isDelim(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}
