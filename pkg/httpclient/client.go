// Package httpclient is the plain-HTTP side of TwitLysis: a net/http client
// with a bounded redirect policy, an optional cookie jar for the auth token
// and a set of headers every request inherits.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNoJar is returned by SetCookies on a client built without a jar.
	ErrNoJar = errors.New("httpclient: cookie jar disabled")
	// ErrNilContext is returned by Do when called without a context.
	ErrNilContext = errors.New("httpclient: nil context")
)

// Config describes a Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects bounds followed redirects. Negative hands the first
	// redirect response back to the caller.
	MaxRedirects int
	UseCookieJar bool
	// Transport replaces http.DefaultTransport, e.g. with a fingerprinted
	// TLS dialer.
	Transport http.RoundTripper
	// Header fills keys a request leaves unset.
	Header http.Header
}

// Client is an http.Client plus inherited request headers.
type Client struct {
	*http.Client
	header http.Header
}

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	hc := &http.Client{
		Timeout:       timeout,
		Transport:     cfg.Transport,
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
	}
	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	return &Client{Client: hc, header: cfg.Header.Clone()}, nil
}

func redirectPolicy(limit int) func(*http.Request, []*http.Request) error {
	if limit < 0 {
		return func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= limit {
			return fmt.Errorf("httpclient: redirect limit %d reached at %s", limit, via[len(via)-1].URL.Redacted())
		}
		return nil
	}
}

// SetCookies stores cookies in the jar for rawURL.
func (c *Client) SetCookies(rawURL string, cookies ...*http.Cookie) error {
	if c.Jar == nil {
		return ErrNoJar
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("httpclient: parse %q: %w", rawURL, err)
	}
	c.Jar.SetCookies(u, cookies)
	return nil
}

// Get issues a GET for rawURL with the given per-request headers.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	return c.Do(ctx, req)
}

// Do sends a copy of req bound to ctx.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	out := req.Clone(ctx)
	c.inherit(out.Header)

	resp, err := c.Client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s %s: %w", out.Method, out.URL.Redacted(), err)
	}
	return resp, nil
}

func (c *Client) inherit(h http.Header) {
	for k, vs := range c.header {
		if _, set := h[k]; set {
			continue
		}
		h[k] = append([]string(nil), vs...)
	}
}

// ReadBody drains at most limit bytes of resp.Body and closes it. A limit of
// zero or less drains everything.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	src := io.Reader(resp.Body)
	if limit > 0 {
		src = io.LimitReader(src, limit)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return body, fmt.Errorf("httpclient: read body: %w", err)
	}
	return body, nil
}
