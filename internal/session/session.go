// Package session drives a browser through search, challenge checks and
// incremental scrolling, retrying failed attempts with fresh sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Cryonoid/TwitLysis/internal/browser"
	"github.com/Cryonoid/TwitLysis/internal/challenge"
	"github.com/Cryonoid/TwitLysis/internal/credential"
	"github.com/Cryonoid/TwitLysis/internal/extract"
	"github.com/Cryonoid/TwitLysis/internal/metrics"
	"github.com/Cryonoid/TwitLysis/internal/progress"
	"github.com/Cryonoid/TwitLysis/internal/snapshot"
	"github.com/Cryonoid/TwitLysis/internal/stage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
	"github.com/Cryonoid/TwitLysis/pkg/proxy"
	"github.com/Cryonoid/TwitLysis/pkg/ratelimit"
	"github.com/Cryonoid/TwitLysis/pkg/useragent"
)

var (
	// ErrChallenge marks a detected anti-automation challenge. It is fatal
	// for the whole run.
	ErrChallenge = errors.New("session: challenge detected")
	// ErrRedirected marks a redirect away from the search surface.
	ErrRedirected = errors.New("session: redirected to login")
	// ErrTimeout marks a navigation wait that matched nothing in time.
	ErrTimeout = errors.New("session: page load timeout")
	// ErrNoContent marks an attempt that scrolled but collected nothing.
	ErrNoContent = errors.New("session: no content collected")
	// ErrNoLauncher is returned when no launcher is configured.
	ErrNoLauncher = errors.New("session: no launcher configured")
)

// Config tunes the orchestrator.
type Config struct {
	BaseURL      string
	CookieDomain string

	MaxAttempts        int
	RequestDelay       time.Duration
	RateBudget         int
	MaxScrolls         int
	EmptyPassThreshold int
	WaitTimeout        time.Duration
	PollInterval       time.Duration
	SettleMin          time.Duration
	SettleMax          time.Duration

	CredentialPath string
	Language       string
	Headful        bool
	NoSandbox      bool
	// DisableHumanize skips the random pointer movement and pauses.
	DisableHumanize bool
	// SnapshotFinal saves the last page of every successful attempt.
	SnapshotFinal bool
}

// DefaultConfig returns conservative pacing defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:            "https://x.com",
		CookieDomain:       ".x.com",
		MaxAttempts:        2,
		RequestDelay:       10 * time.Second,
		RateBudget:         5,
		MaxScrolls:         20,
		EmptyPassThreshold: 4,
		WaitTimeout:        20 * time.Second,
		PollInterval:       browser.DefaultPollInterval,
		SettleMin:          3 * time.Second,
		SettleMax:          5 * time.Second,
		CredentialPath:     credential.DefaultPath,
		Language:           "en-US",
	}
}

// Viewport bounds for randomized sessions.
const (
	minWidth, maxWidth   = 1200, 1920
	minHeight, maxHeight = 800, 1080
)

// AttemptRecord summarizes one attempt.
type AttemptRecord struct {
	Number   int            `json:"number"`
	Launcher string         `json:"launcher,omitempty"`
	Stages   stage.Snapshot `json:"stages"`
	Passes   int            `json:"passes"`
	Items    int            `json:"items"`
	Error    string         `json:"error,omitempty"`
}

// Outcome is the result of Collect.
type Outcome struct {
	Items    []tweet.Item
	Attempts []AttemptRecord
	// Stages is the tracker state of the last attempt.
	Stages stage.Snapshot
	// Fatal is set when a challenge aborted the run.
	Fatal bool
	Err   error
}

// Orchestrator runs collection attempts. Fields left nil get defaults from
// New.
type Orchestrator struct {
	Config    Config
	Launchers []browser.Launcher
	Extractor *extract.Extractor
	Pacer     *ratelimit.Pacer
	Agents    *useragent.Pool
	Proxies   *proxy.Pool
	Snapshots snapshot.Saver
	Detectors []challenge.PageDetector
	// Credentials loads the stored token. It defaults to credential.Load.
	Credentials func(path string) (string, bool, error)
	Logger      *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates an orchestrator with default collaborators.
func New(cfg Config, launchers []browser.Launcher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Config:      cfg,
		Launchers:   launchers,
		Extractor:   extract.New(),
		Pacer:       ratelimit.NewPacer(cfg.SettleMin, cfg.SettleMax, cfg.RequestDelay),
		Agents:      useragent.NewPool(),
		Detectors:   challenge.PageDetectors(),
		Credentials: credential.Load,
		Logger:      logger,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Collect runs attempts until one yields items, a challenge aborts the run,
// attempts are exhausted, or ctx is canceled between attempts.
func (o *Orchestrator) Collect(ctx context.Context, term string, rep *progress.Reporter) Outcome {
	var out Outcome
	if len(o.Launchers) == 0 {
		out.Err = ErrNoLauncher
		tr := stage.NewTracker()
		tr.Fail(stage.DriverSetup, "%v", ErrNoLauncher)
		out.Stages = tr.Snapshot()
		return out
	}

	maxAttempts := o.Config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			out.Err = fmt.Errorf("session: canceled before attempt %d: %w", n, err)
			break
		}

		rep.Emit(progress.Info, "[ATTEMPT %d/%d] Starting browser session", n, maxAttempts)
		res := o.attempt(ctx, term, n, rep)

		rec := AttemptRecord{
			Number:   n,
			Launcher: res.launcher,
			Stages:   res.stages,
			Passes:   res.passes,
			Items:    len(res.items),
		}
		if res.err != nil {
			rec.Error = res.err.Error()
		}
		out.Attempts = append(out.Attempts, rec)
		out.Stages = res.stages
		out.Err = res.err
		for _, e := range res.stages {
			if e.Status == stage.Failed {
				metrics.RecordStageFailure(string(e.Stage))
			}
		}

		switch {
		case res.err == nil && len(res.items) > 0:
			outcome := "success"
			if res.stages.Status(stage.ContentExtraction) == stage.Partial {
				outcome = "partial"
			}
			metrics.RecordAttempt(outcome)
			out.Items = res.items
			return out
		case errors.Is(res.err, ErrChallenge):
			metrics.RecordAttempt("challenge")
			rep.Emit(progress.Error, "[ERROR] Challenge detected. Solve it manually in a browser, refresh the stored credentials, then retry.")
			out.Fatal = true
			return out
		}

		metrics.RecordAttempt("failed")
		rep.Emit(progress.Warning, "[WARNING] Attempt %d failed: %s", n, res.stages.Summary())

		if n < maxAttempts {
			rep.Emit(progress.Info, "[RETRY] Waiting %s before next attempt", o.Config.RequestDelay)
			if err := o.Pacer.Backoff(ctx); err != nil {
				out.Err = fmt.Errorf("session: canceled during backoff: %w", err)
				break
			}
		}
	}

	if out.Err == nil {
		out.Err = ErrNoContent
	}
	o.logger().Warn("session: attempts exhausted", "term", term, "attempts", len(out.Attempts), "cause", out.Stages.Summary())
	return out
}

func (o *Orchestrator) viewport() browser.Viewport {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rnd == nil {
		o.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return browser.Viewport{
		Width:  minWidth + o.rnd.Intn(maxWidth-minWidth+1),
		Height: minHeight + o.rnd.Intn(maxHeight-minHeight+1),
	}
}

func (o *Orchestrator) offset() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rnd == nil {
		o.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return float64(o.rnd.Intn(201) - 100)
}

// launch tries each launcher in priority order and returns the first session.
func (o *Orchestrator) launch(ctx context.Context, cfg browser.Config, log *slog.Logger) (browser.Session, string, error) {
	var errs []error
	for _, l := range o.Launchers {
		s, err := l.Launch(ctx, cfg)
		if err == nil {
			return s, l.Name(), nil
		}
		log.Warn("session: launcher failed", "launcher", l.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", l.Name(), err))
	}
	return nil, "", fmt.Errorf("session: every launcher failed: %w", errors.Join(errs...))
}

// humanize moves the pointer near the viewport center and pauses.
func (o *Orchestrator) humanize(ctx context.Context, s browser.Session, vp browser.Viewport, log *slog.Logger) {
	if o.Config.DisableHumanize {
		return
	}
	x := float64(vp.Width)/2 + o.offset()
	y := float64(vp.Height)/2 + o.offset()
	if err := s.MoveMouse(x, y); err != nil {
		log.Debug("session: pointer move failed", "error", err)
	}
	_ = o.Pacer.Pause(ctx, 500*time.Millisecond, 1500*time.Millisecond)
	_ = o.Pacer.Pause(ctx, time.Second, 3*time.Second)
}

func (o *Orchestrator) snap(s browser.Session, term string, attempt int, reason snapshot.Reason, log *slog.Logger) {
	if o.Snapshots == nil {
		return
	}
	src, err := s.PageSource()
	if err != nil {
		log.Warn("session: snapshot source unavailable", "reason", reason, "error", err)
		return
	}
	path, err := o.Snapshots.Save(term, attempt, reason, src)
	if err != nil {
		log.Warn("session: snapshot failed", "reason", reason, "error", err)
		return
	}
	log.Info("session: saved debug snapshot", "reason", reason, "path", path)
}
