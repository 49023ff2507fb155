// Package browser defines the automation surface the session orchestrator
// drives, with a rod-backed implementation for live pages and a goquery-backed
// implementation for saved HTML.
package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrClosed is returned by operations on a session that has been closed.
var ErrClosed = errors.New("browser: session closed")

// Viewport is the window size presented to the site.
type Viewport struct {
	Width  int
	Height int
}

// Config describes how a session should be started.
type Config struct {
	UserAgent string
	Viewport  Viewport
	// Proxy is a host:port or URL passed to the browser. Empty means direct.
	Proxy string
	// Headful shows the browser window instead of running headless.
	Headful   bool
	NoSandbox bool
	// Language sets the Accept-Language and navigator.language values.
	Language string
}

// Cookie is a credential applied to the session before navigation.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// Launcher acquires sessions. Orchestrators try launchers in priority order
// until one succeeds.
type Launcher interface {
	Name() string
	Launch(ctx context.Context, cfg Config) (Session, error)
}

// Session is one automated browsing context. A session is owned by a single
// attempt and must be closed on every exit path.
type Session interface {
	Navigate(ctx context.Context, url string) error
	SetCookie(c Cookie) error
	Reload(ctx context.Context) error
	URL() (string, error)
	Title() (string, error)
	FindAll(selector string) ([]Element, error)
	ScrollToBottom() error
	PageHeight() (int, error)
	PageSource() (string, error)
	MoveMouse(x, y float64) error
	Close() error
}

// Element is a node in the rendered document.
type Element interface {
	FindAll(selector string) ([]Element, error)
	// Attr returns the attribute value and whether it was present.
	Attr(name string) (string, bool, error)
	Text() (string, error)
}

// ConditionKind selects how a Condition is evaluated.
type ConditionKind int

const (
	// Selector matches when at least one element matches the CSS selector.
	Selector ConditionKind = iota
	// URLContains matches when the lower-cased URL contains the value.
	URLContains
	// TitleContains matches when the lower-cased title contains the value.
	TitleContains
)

// Condition is one readiness signal checked by WaitForAny.
type Condition struct {
	Name  string
	Kind  ConditionKind
	Value string
}

// Outcome is the explicit result of a readiness wait.
type Outcome int

const (
	NotFound Outcome = iota
	Found
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case TimedOut:
		return "timed_out"
	default:
		return "not_found"
	}
}

// WaitResult reports which condition matched, if any.
type WaitResult struct {
	Outcome Outcome
	Matched Condition
	// Err holds the last probe error seen while polling, for diagnostics.
	Err error
}

// DefaultPollInterval is used by WaitForAny when interval is zero.
const DefaultPollInterval = 250 * time.Millisecond

// WaitForAny polls the session until any condition matches or the timeout
// elapses. With a non-positive timeout it probes exactly once and reports
// Found or NotFound.
func WaitForAny(ctx context.Context, s Session, conds []Condition, timeout, interval time.Duration) WaitResult {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var lastErr error
	probe := func() (Condition, bool) {
		for _, c := range conds {
			ok, err := check(s, c)
			if err != nil {
				lastErr = err
				continue
			}
			if ok {
				return c, true
			}
		}
		return Condition{}, false
	}

	if c, ok := probe(); ok {
		return WaitResult{Outcome: Found, Matched: c}
	}
	if timeout <= 0 {
		return WaitResult{Outcome: NotFound, Err: lastErr}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return WaitResult{Outcome: TimedOut, Err: ctx.Err()}
		case <-deadline.C:
			return WaitResult{Outcome: TimedOut, Err: lastErr}
		case <-ticker.C:
			if c, ok := probe(); ok {
				return WaitResult{Outcome: Found, Matched: c}
			}
		}
	}
}

func check(s Session, c Condition) (bool, error) {
	switch c.Kind {
	case URLContains:
		u, err := s.URL()
		if err != nil {
			return false, err
		}
		return strings.Contains(strings.ToLower(u), strings.ToLower(c.Value)), nil
	case TitleContains:
		title, err := s.Title()
		if err != nil {
			return false, err
		}
		return strings.Contains(strings.ToLower(title), strings.ToLower(c.Value)), nil
	default:
		els, err := s.FindAll(c.Value)
		if err != nil {
			return false, err
		}
		return len(els) > 0, nil
	}
}
