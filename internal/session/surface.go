package session

import (
	"net/url"
	"strings"

	"github.com/Cryonoid/TwitLysis/internal/browser"
	"github.com/Cryonoid/TwitLysis/internal/extract"
)

// SearchURL builds the live search URL for term.
func SearchURL(base, term string) string {
	return strings.TrimRight(base, "/") + "/search?q=" + url.QueryEscape(term) + "&src=typed_query&f=live"
}

// ReadyConditions are the page states that end the navigation wait. Any of
// them means the page settled, whether on content or on a login flow.
var ReadyConditions = []browser.Condition{
	{Name: "tweet", Kind: browser.Selector, Value: extract.ArticleSelector},
	{Name: "login-username", Kind: browser.Selector, Value: `input[autocomplete="username"]`},
	{Name: "text-input", Kind: browser.Selector, Value: `input[name="text"]`},
	{Name: "login-url", Kind: browser.URLContains, Value: "/i/flow/login"},
	{Name: "login-title", Kind: browser.TitleContains, Value: "Login on X"},
}

var loginTitles = []string{"login on x", "log in to x"}

// OnLoginFlow reports whether the page is part of the login flow.
func OnLoginFlow(rawURL, title string) bool {
	if strings.Contains(strings.ToLower(rawURL), "/i/flow/login") {
		return true
	}
	t := strings.ToLower(title)
	for _, lt := range loginTitles {
		if strings.Contains(t, lt) {
			return true
		}
	}
	return false
}

// OnSearchSurface reports whether the page is a search or explore page and
// not a login flow.
func OnSearchSurface(rawURL, title string) bool {
	if OnLoginFlow(rawURL, title) {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return strings.HasPrefix(p, "/search") || strings.HasPrefix(p, "/explore")
}
