// Package extract turns rendered post containers into candidate items using
// ordered, declarative fallback chains.
package extract

import (
	"strings"

	"github.com/Cryonoid/TwitLysis/internal/browser"
	"github.com/Cryonoid/TwitLysis/internal/identity"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

// ArticleSelector matches one rendered post on the search timeline.
const ArticleSelector = `article[data-testid="tweet"]`

// Strategy locates a value inside a post container. The first strategy that
// yields a non-empty value wins.
type Strategy struct {
	Name     string
	Selector string
	// Match filters candidate texts. Nil accepts any non-empty text.
	Match func(text string) bool
	// Transform adjusts the matched text. Nil keeps it as is.
	Transform func(text string) string
}

// TextStrategies locate the post body.
var TextStrategies = []Strategy{
	{Name: "tweet-text", Selector: `div[data-testid="tweetText"]`},
	{Name: "lang-block", Selector: `div[lang]`},
}

// AuthorStrategies locate the author handle.
var AuthorStrategies = []Strategy{
	{
		Name:     "handle-span",
		Selector: `div[data-testid="User-Name"] span`,
		Match:    func(s string) bool { return strings.Contains(s, "@") },
	},
	{
		Name:      "name-block",
		Selector:  `div[data-testid="User-Name"]`,
		Transform: firstLine,
	},
}

// PermalinkSelector matches links that may carry the native post id.
const PermalinkSelector = `a[href*="/status/"]`

// HashtagSelector matches hashtag links inside a post.
const HashtagSelector = `a[href*="/hashtag/"]`

// Extractor maps post containers to candidate items.
type Extractor struct {
	Text   []Strategy
	Author []Strategy
}

// New returns an extractor using the default strategy chains.
func New() *Extractor {
	return &Extractor{Text: TextStrategies, Author: AuthorStrategies}
}

// Seen reports whether a fingerprint was already accepted in this session.
type Seen func(identity.Fingerprint) bool

// Extract maps one container to at most one item. ok is false when the unit
// has no text, or when its native id is already seen. Author and tag
// failures fall back to defaults instead of dropping the unit.
func (x *Extractor) Extract(el browser.Element, seen Seen) (tweet.Item, bool) {
	id, native := NativeID(el)
	if native && seen != nil && seen(id) {
		return tweet.Item{}, false
	}

	text := First(el, x.Text)
	if strings.TrimSpace(text) == "" {
		return tweet.Item{}, false
	}

	if !native {
		id = identity.FromText(text)
		if seen != nil && seen(id) {
			return tweet.Item{}, false
		}
	}

	author := First(el, x.Author)
	if author == "" {
		author = tweet.UnknownAuthor
	}

	return tweet.Item{
		ID:     id.String(),
		Text:   text,
		Author: author,
		Tags:   Hashtags(el),
	}, true
}

// ExtractAll runs Extract over every container in order, skipping units that
// yield nothing.
func (x *Extractor) ExtractAll(els []browser.Element, seen Seen) []tweet.Item {
	var out []tweet.Item
	for _, el := range els {
		if it, ok := x.Extract(el, seen); ok {
			out = append(out, it)
		}
	}
	return out
}

// NativeID returns the first purely numeric status id found in the unit's
// permalinks.
func NativeID(el browser.Element) (identity.Fingerprint, bool) {
	links, err := el.FindAll(PermalinkSelector)
	if err != nil {
		return "", false
	}
	for _, link := range links {
		href, ok, err := link.Attr("href")
		if err != nil || !ok {
			continue
		}
		if id, ok := identity.FromHref(href); ok {
			return id, true
		}
	}
	return "", false
}

// First walks the strategies in order and returns the first non-empty value.
func First(el browser.Element, strategies []Strategy) string {
	for _, st := range strategies {
		if v := apply(el, st); v != "" {
			return v
		}
	}
	return ""
}

func apply(el browser.Element, st Strategy) string {
	nodes, err := el.FindAll(st.Selector)
	if err != nil {
		return ""
	}
	for _, n := range nodes {
		text, err := n.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if st.Match != nil && !st.Match(text) {
			continue
		}
		if st.Transform != nil {
			text = strings.TrimSpace(st.Transform(text))
		}
		if text != "" {
			return text
		}
	}
	return ""
}

// Hashtags returns the visible hashtag link texts, in document order.
func Hashtags(el browser.Element) []string {
	links, err := el.FindAll(HashtagSelector)
	if err != nil {
		return []string{}
	}
	tags := make([]string, 0, len(links))
	for _, link := range links {
		text, err := link.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if strings.HasPrefix(text, "#") {
			tags = append(tags, text)
		}
	}
	return tags
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
