// Package proxy rotates outbound proxies across browser sessions and takes
// failing endpoints out of rotation for a cooldown period.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknown is returned when reporting on an endpoint the pool does not hold.
var ErrUnknown = errors.New("proxy: endpoint not in pool")

type endpoint struct {
	url       *url.URL
	strikes   int
	successes int
	benchedAt time.Time
	benched   bool
}

// Pool hands out proxy endpoints in rotation. It is safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	cursor    int

	strikes  int
	cooldown time.Duration
	now      func() time.Time
}

// Config tunes when an endpoint is benched.
type Config struct {
	// Strikes is the number of failed sessions before an endpoint is benched.
	Strikes int
	// Cooldown is how long a benched endpoint stays out of rotation.
	Cooldown time.Duration
}

// NewPool creates an empty pool. Zero config values get defaults of 3 strikes
// and a 5 minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.Strikes <= 0 {
		cfg.Strikes = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{strikes: cfg.Strikes, cooldown: cfg.Cooldown, now: time.Now}
}

// Load reads endpoints from a file, one per line. Blank lines and lines
// starting with '#' are skipped.
func (p *Pool) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open list: %w", err)
	}
	defer f.Close()

	var raws []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raws = append(raws, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("proxy: read list: %w", err)
	}
	return p.Add(raws...)
}

// Add parses endpoints and appends them to the rotation. A missing scheme
// defaults to http.
func (p *Pool) Add(raws ...string) error {
	parsed := make([]*endpoint, 0, len(raws))
	for _, raw := range raws {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: parse %q: missing host", raw)
		}
		parsed = append(parsed, &endpoint{url: u})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = append(p.endpoints, parsed...)
	return nil
}

// Len returns the number of endpoints in the pool, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next endpoint in rotation. ok is false when the pool is
// empty or every endpoint is benched.
func (p *Pool) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.endpoints)
	now := p.now()
	for i := 0; i < n; i++ {
		e := p.endpoints[p.cursor]
		p.cursor = (p.cursor + 1) % n

		if e.benched && now.Sub(e.benchedAt) >= p.cooldown {
			e.benched = false
			e.strikes = 0
		}
		if !e.benched {
			return e.url.String(), true
		}
	}
	return "", false
}

// Report records the outcome of a session that used the endpoint.
func (p *Pool) Report(raw string, ok bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var e *endpoint
	for _, cand := range p.endpoints {
		if cand.url.String() == raw {
			e = cand
			break
		}
	}
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknown, raw)
	}

	if ok {
		e.successes++
		if e.strikes > 0 {
			e.strikes--
		}
		return nil
	}
	e.strikes++
	if e.strikes >= p.strikes {
		e.benched = true
		e.benchedAt = p.now()
	}
	return nil
}
