package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// stealthScript hides the most common automation tells. It runs before any
// page script on every navigation.
const stealthScript = `() => {
	Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
	window.chrome = window.chrome || {};
	window.chrome.runtime = window.chrome.runtime || {};
	Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
}`

// RodLauncher starts Chrome sessions through go-rod. The zero value launches
// a managed Chrome, downloading it if needed.
type RodLauncher struct {
	// Label names the strategy in logs.
	Label string
	// ControlURL connects to an already running browser instead of
	// launching one.
	ControlURL string
	// Bin is the browser executable. Empty lets rod resolve or download one.
	Bin string
	// UseSystem requires a locally installed browser found on PATH.
	UseSystem bool
	Logger    *slog.Logger
}

// DefaultLaunchers returns the acquisition strategies in priority order:
// remote control URL (when set), the system browser, then a managed download.
func DefaultLaunchers(controlURL, bin string, logger *slog.Logger) []Launcher {
	var out []Launcher
	if controlURL != "" {
		out = append(out, &RodLauncher{Label: "remote", ControlURL: controlURL, Logger: logger})
	}
	out = append(out,
		&RodLauncher{Label: "system", Bin: bin, UseSystem: true, Logger: logger},
		&RodLauncher{Label: "managed", Logger: logger},
	)
	return out
}

func (l *RodLauncher) Name() string {
	if l.Label != "" {
		return l.Label
	}
	return "rod"
}

// Launch starts (or connects to) a browser and opens a stealth page
// configured from cfg.
func (l *RodLauncher) Launch(ctx context.Context, cfg Config) (Session, error) {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}

	var (
		wsURL string
		lnch  *launcher.Launcher
	)

	if l.ControlURL != "" {
		wsURL = l.ControlURL
	} else {
		lnch = launcher.New().Context(ctx)

		switch {
		case l.Bin != "":
			lnch = lnch.Bin(l.Bin)
		case l.UseSystem:
			path, ok := launcher.LookPath()
			if !ok {
				return nil, fmt.Errorf("browser: %s: no local browser found", l.Name())
			}
			lnch = lnch.Bin(path)
		}

		lnch = lnch.Headless(!cfg.Headful).
			NoSandbox(cfg.NoSandbox).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-infobars").
			Set("disable-extensions").
			Set("disable-dev-shm-usage").
			Set("disable-gpu")
		if cfg.Language != "" {
			lnch = lnch.Set("lang", cfg.Language)
		}
		if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
			lnch = lnch.Set("window-size", strconv.Itoa(cfg.Viewport.Width)+","+strconv.Itoa(cfg.Viewport.Height))
		}
		if cfg.Proxy != "" {
			lnch = lnch.Proxy(cfg.Proxy)
		}

		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: %s: launch: %w", l.Name(), err)
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Kill()
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: %s: connect: %w", l.Name(), err)
	}

	s := &rodSession{browser: b, launcher: lnch, logger: log, attached: l.ControlURL != ""}

	page, err := stealth.Page(b)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("browser: %s: open page: %w", l.Name(), err)
	}
	s.page = page

	if err := s.configure(cfg); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("browser: %s: configure: %w", l.Name(), err)
	}

	log.Info("browser: session ready", "launcher", l.Name(), "viewport", cfg.Viewport, "proxy", cfg.Proxy != "")
	return s, nil
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	logger   *slog.Logger
	attached bool
	closed   bool
}

func (s *rodSession) configure(cfg Config) error {
	if cfg.UserAgent != "" {
		if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      cfg.UserAgent,
			AcceptLanguage: cfg.Language,
		}); err != nil {
			return fmt.Errorf("user agent: %w", err)
		}
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		if err := s.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.Viewport.Width,
			Height:            cfg.Viewport.Height,
			DeviceScaleFactor: 1,
		}); err != nil {
			return fmt.Errorf("viewport: %w", err)
		}
	}
	if _, err := s.page.EvalOnNewDocument(stealthScript); err != nil {
		return fmt.Errorf("init script: %w", err)
	}
	return nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	if s.closed {
		return ErrClosed
	}
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		s.logger.Debug("browser: wait load", "url", url, "error", err)
	}
	return nil
}

func (s *rodSession) SetCookie(c Cookie) error {
	if s.closed {
		return ErrClosed
	}
	return s.page.SetCookies([]*proto.NetworkCookieParam{{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}})
}

func (s *rodSession) Reload(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	p := s.page.Context(ctx)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		s.logger.Debug("browser: wait load after reload", "error", err)
	}
	return nil
}

func (s *rodSession) URL() (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	info, err := s.page.Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

func (s *rodSession) Title() (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	info, err := s.page.Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.Title, nil
}

func (s *rodSession) FindAll(selector string) ([]Element, error) {
	if s.closed {
		return nil, ErrClosed
	}
	els, err := s.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: find %s: %w", selector, err)
	}
	return wrapRod(els), nil
}

func (s *rodSession) ScrollToBottom() error {
	if s.closed {
		return ErrClosed
	}
	_, err := s.page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	if err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

func (s *rodSession) PageHeight() (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	res, err := s.page.Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, fmt.Errorf("browser: page height: %w", err)
	}
	return res.Value.Int(), nil
}

func (s *rodSession) PageSource() (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	html, err := s.page.HTML()
	if err != nil {
		return "", fmt.Errorf("browser: page source: %w", err)
	}
	return html, nil
}

func (s *rodSession) MoveMouse(x, y float64) error {
	if s.closed {
		return ErrClosed
	}
	return s.page.Mouse.MoveTo(proto.Point{X: x, Y: y})
}

// Close releases the page and any launched process. The browser itself is
// shut down only when this process started it. It is safe to call more than
// once.
func (s *rodSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	td := teardown{attached: s.attached}
	if s.page != nil {
		page := s.page
		// Bound the close so a wedged renderer cannot hang the attempt.
		td.page = func() error { return page.Timeout(5 * time.Second).Close() }
	}
	if s.browser != nil {
		td.browser = s.browser.Close
	}
	if s.launcher != nil {
		l := s.launcher
		td.kill = func() {
			l.Kill()
			l.Cleanup()
		}
	}
	if err := td.run(); err != nil {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}

// teardown is the ordered release of a session's resources.
type teardown struct {
	page    func() error
	browser func() error
	kill    func()
	// attached marks a browser reached through a control URL; it belongs to
	// someone else and stays up.
	attached bool
}

func (t teardown) run() error {
	var firstErr error
	if t.page != nil {
		firstErr = t.page()
	}
	if t.browser != nil && !t.attached {
		if err := t.browser(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if t.kill != nil {
		t.kill()
	}
	return firstErr
}

type rodElement struct {
	el *rod.Element
}

func wrapRod(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, rodElement{el: el})
	}
	return out
}

func (e rodElement) FindAll(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRod(els), nil
}

func (e rodElement) Attr(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e rodElement) Text() (string, error) {
	return e.el.Text()
}
