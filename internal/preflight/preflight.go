// Package preflight makes an advisory plain-HTTP request to the search host
// before a browser session starts, to spot vendor bot protection early.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Cryonoid/TwitLysis/internal/challenge"
	"github.com/Cryonoid/TwitLysis/internal/fingerprint"
	"github.com/Cryonoid/TwitLysis/internal/metrics"
	"github.com/Cryonoid/TwitLysis/pkg/httpclient"
	"github.com/Cryonoid/TwitLysis/pkg/proxy"
	"github.com/Cryonoid/TwitLysis/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// Config configures the probe.
type Config struct {
	URL         string
	Fingerprint fingerprint.Profile
	Timeout     time.Duration
	// MaxBody caps how much of the response is inspected.
	MaxBody int64
	// EnvProxy falls back to HTTP_PROXY and friends when the pool yields
	// nothing.
	EnvProxy bool
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
}

// Result is the outcome of one probe.
type Result struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"status_code"`
	Proxy      string            `json:"proxy,omitempty"`
	Verdict    challenge.Verdict `json:"verdict"`
	Duration   time.Duration     `json:"duration"`
}

// Prober issues probes. Agents, Proxies and Detectors may be replaced after
// New.
type Prober struct {
	Agents    *useragent.Pool
	Proxies   *proxy.Pool
	Detectors []challenge.HTTPDetector
	Logger    *slog.Logger

	cfg    Config
	client *httpclient.Client
}

// New builds a prober. Holding one client keeps the cookie jar across
// probes.
func New(cfg Config, logger *slog.Logger) (*Prober, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("preflight: empty url")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBody == 0 {
		cfg.MaxBody = 1 << 20
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if logger == nil {
		logger = slog.Default()
	}

	// The proxy is chosen per request and carried on the request context so
	// one transport can serve every endpoint in the pool.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		if cfg.EnvProxy {
			return http.ProxyFromEnvironment(req)
		}
		return nil, nil
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("preflight: transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 5,
		UseCookieJar: true,
		Transport:    transport,
		Header: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("preflight: client: %w", err)
	}

	return &Prober{
		Agents:    useragent.NewPool(),
		Detectors: challenge.HTTPDetectors(),
		Logger:    logger,
		cfg:       cfg,
		client:    client,
	}, nil
}

// SetToken seeds the auth cookie for the probed host.
func (p *Prober) SetToken(name, token string) error {
	if token == "" {
		return nil
	}
	u, err := url.Parse(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("preflight: parse %q: %w", p.cfg.URL, err)
	}
	return p.client.SetCookies(p.cfg.URL, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Secure:   u.Scheme == "https",
		HttpOnly: true,
	})
}

// Probe fetches the configured URL once and runs the response through the
// HTTP challenge detectors. A transport failure is returned as an error; a
// detected challenge is not an error.
func (p *Prober) Probe(ctx context.Context) (Result, error) {
	res := Result{URL: p.cfg.URL}
	start := time.Now()

	header := http.Header{}
	if p.Agents != nil && p.Agents.Len() > 0 {
		header.Set("User-Agent", p.Agents.Pick())
	}

	if p.Proxies != nil {
		if raw, ok := p.Proxies.Next(); ok {
			u, err := url.Parse(raw)
			if err != nil {
				return res, fmt.Errorf("preflight: proxy %q: %w", raw, err)
			}
			res.Proxy = raw
			ctx = context.WithValue(ctx, proxyKey, u)
		}
	}

	resp, err := p.client.Get(ctx, p.cfg.URL, header)
	res.Duration = time.Since(start)
	if err != nil {
		p.report(res.Proxy, false)
		return res, fmt.Errorf("preflight: %w", err)
	}
	p.report(res.Proxy, true)

	body, readErr := httpclient.ReadBody(resp, p.cfg.MaxBody)
	res.StatusCode = resp.StatusCode
	res.Verdict = challenge.InspectResponse(&challenge.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, p.Detectors)

	metrics.RecordPreflight(res.Verdict.Detected, res.Verdict.Source)
	p.Logger.Info("preflight: probe finished",
		"url", res.URL,
		"status", res.StatusCode,
		"blocked", res.Verdict.Detected,
		"source", res.Verdict.Source,
		"duration", res.Duration,
	)

	if readErr != nil {
		return res, fmt.Errorf("preflight: %w", readErr)
	}
	return res, nil
}

func (p *Prober) report(raw string, ok bool) {
	if raw == "" || p.Proxies == nil {
		return
	}
	if err := p.Proxies.Report(raw, ok); err != nil {
		p.Logger.Debug("preflight: proxy report", "proxy", raw, "error", err)
	}
}
