// Package browsertest provides scripted browser sessions for tests, in the
// spirit of net/http/httptest.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/Cryonoid/TwitLysis/internal/browser"
)

// Frame is the state of the page at one point in a script.
type Frame struct {
	URL    string
	Title  string
	HTML   string
	Height int
}

// Script drives a fake session. Landing is shown after Navigate; Feed[i] is
// shown after the (i+1)th scroll, and the last frame repeats once the feed is
// exhausted.
type Script struct {
	Landing Frame
	Feed    []Frame

	NavigateErr error
	CookieErr   error
	ReloadErr   error
	SourceErr   error
	HeightErr   error
	// ScrollErrAt makes the nth ScrollToBottom call fail with ScrollErr.
	ScrollErrAt int
	ScrollErr   error
	// PanicAt makes the nth ScrollToBottom call panic.
	PanicAt int
}

// Session is a scripted browser.Session that records how it was used.
type Session struct {
	mu      sync.Mutex
	script  Script
	current Frame
	doc     *browser.Document
	docSrc  string

	Navigations []string
	Cookies     []browser.Cookie
	Scrolls     int
	MouseMoves  int
	Closes      int
}

// NewSession returns a session that follows the script.
func NewSession(script Script) *Session {
	return &Session{script: script}
}

func (s *Session) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Navigations = append(s.Navigations, url)
	if s.script.NavigateErr != nil {
		return s.script.NavigateErr
	}
	s.current = s.script.Landing
	if s.current.URL == "" {
		s.current.URL = url
	}
	return nil
}

func (s *Session) SetCookie(c browser.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script.CookieErr != nil {
		return s.script.CookieErr
	}
	s.Cookies = append(s.Cookies, c)
	return nil
}

func (s *Session) Reload(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script.ReloadErr
}

func (s *Session) URL() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.URL, nil
}

func (s *Session) Title() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Title, nil
}

func (s *Session) FindAll(selector string) ([]browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	return doc.FindAll(selector)
}

func (s *Session) ScrollToBottom() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Scrolls++
	if s.script.PanicAt > 0 && s.Scrolls == s.script.PanicAt {
		panic("browsertest: scripted panic")
	}
	if s.script.ScrollErrAt > 0 && s.Scrolls == s.script.ScrollErrAt {
		if s.script.ScrollErr != nil {
			return s.script.ScrollErr
		}
		return errors.New("browsertest: scripted scroll failure")
	}
	if len(s.script.Feed) > 0 {
		idx := s.Scrolls - 1
		if idx >= len(s.script.Feed) {
			idx = len(s.script.Feed) - 1
		}
		next := s.script.Feed[idx]
		if next.URL == "" {
			next.URL = s.current.URL
		}
		if next.Title == "" {
			next.Title = s.current.Title
		}
		s.current = next
	}
	return nil
}

func (s *Session) PageHeight() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script.HeightErr != nil {
		return 0, s.script.HeightErr
	}
	return s.current.Height, nil
}

func (s *Session) PageSource() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script.SourceErr != nil {
		return "", s.script.SourceErr
	}
	return s.current.HTML, nil
}

func (s *Session) MoveMouse(x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MouseMoves++
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closes++
	return nil
}

// CloseCount returns how many times Close was called.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closes
}

// ScrollCount returns how many scroll passes were made.
func (s *Session) ScrollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Scrolls
}

func (s *Session) document() (*browser.Document, error) {
	if s.doc != nil && s.docSrc == s.current.HTML {
		return s.doc, nil
	}
	doc, err := browser.ParseHTMLString(s.current.HTML)
	if err != nil {
		return nil, err
	}
	s.doc, s.docSrc = doc, s.current.HTML
	return doc, nil
}

// Launcher hands out scripted sessions, one per Launch call. When Scripts is
// exhausted the last script is reused.
type Launcher struct {
	Label   string
	Scripts []Script
	// Err makes every launch fail.
	Err error
	// FailFirst makes the first n launches fail.
	FailFirst int

	mu       sync.Mutex
	launches int
	sessions []*Session
}

func (l *Launcher) Name() string {
	if l.Label != "" {
		return l.Label
	}
	return "browsertest"
}

func (l *Launcher) Launch(_ context.Context, _ browser.Config) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.Err != nil {
		return nil, l.Err
	}
	if l.launches <= l.FailFirst {
		return nil, fmt.Errorf("browsertest: scripted launch failure %d", l.launches)
	}

	var script Script
	if n := len(l.Scripts); n > 0 {
		idx := len(l.sessions)
		if idx >= n {
			idx = n - 1
		}
		script = l.Scripts[idx]
	}
	s := NewSession(script)
	l.sessions = append(l.sessions, s)
	return s, nil
}

// Sessions returns every session handed out so far.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Session, len(l.sessions))
	copy(out, l.sessions)
	return out
}

// Launches returns how many times Launch was called.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Post describes a rendered post for fixture pages.
type Post struct {
	// ID is the numeric status id. Empty renders no permalink.
	ID     string
	Text   string
	Author string
	Tags   []string
}

// Article renders a post the way the live search timeline marks it up.
func Article(p Post) string {
	var b strings.Builder
	b.WriteString(`<article data-testid="tweet"><div data-testid="User-Name">`)
	if p.Author != "" {
		fmt.Fprintf(&b, `<span>Display Name</span><span>%s</span>`, html.EscapeString(p.Author))
	}
	b.WriteString(`</div>`)
	if p.ID != "" {
		fmt.Fprintf(&b, `<a href="/someone/status/%s"><time>now</time></a>`, html.EscapeString(p.ID))
	}
	if p.Text != "" {
		fmt.Fprintf(&b, `<div data-testid="tweetText" lang="en"><span>%s</span>`, html.EscapeString(p.Text))
		for _, tag := range p.Tags {
			fmt.Fprintf(&b, ` <a href="/hashtag/%s">%s</a>`, html.EscapeString(strings.TrimPrefix(tag, "#")), html.EscapeString(tag))
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</article>`)
	return b.String()
}

// Timeline renders a search page holding the given posts.
func Timeline(posts ...Post) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Search / X</title></head><body><main>`)
	for _, p := range posts {
		b.WriteString(Article(p))
	}
	b.WriteString(`</main></body></html>`)
	return b.String()
}

// SearchFrame returns a frame on the live search surface.
func SearchFrame(height int, posts ...Post) Frame {
	return Frame{
		URL:    "https://x.com/search?q=test&src=typed_query&f=live",
		Title:  "test - Search / X",
		HTML:   Timeline(posts...),
		Height: height,
	}
}
