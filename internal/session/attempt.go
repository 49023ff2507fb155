package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Cryonoid/TwitLysis/internal/browser"
	"github.com/Cryonoid/TwitLysis/internal/challenge"
	"github.com/Cryonoid/TwitLysis/internal/credential"
	"github.com/Cryonoid/TwitLysis/internal/dedup"
	"github.com/Cryonoid/TwitLysis/internal/extract"
	"github.com/Cryonoid/TwitLysis/internal/metrics"
	"github.com/Cryonoid/TwitLysis/internal/progress"
	"github.com/Cryonoid/TwitLysis/internal/snapshot"
	"github.com/Cryonoid/TwitLysis/internal/stage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
	"github.com/Cryonoid/TwitLysis/pkg/ratelimit"
)

type attemptResult struct {
	items    []tweet.Item
	stages   stage.Snapshot
	launcher string
	passes   int
	err      error
}

// attempt runs one pass of the state machine. The session it opens is closed
// exactly once on every return path, panics included.
func (o *Orchestrator) attempt(ctx context.Context, term string, n int, rep *progress.Reporter) (res attemptResult) {
	log := o.logger().With("term", term, "attempt", n)
	tr := stage.NewTracker()

	var (
		sess     browser.Session
		endpoint string
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("session: attempt panicked", "panic", r)
			tr.FailInProgress(fmt.Sprintf("panic: %v", r))
			res.items = nil
			res.err = fmt.Errorf("session: attempt %d panicked: %v", n, r)
		}
		if sess != nil {
			if err := sess.Close(); err != nil {
				log.Warn("session: close failed", "error", err)
			}
		}
		if endpoint != "" && o.Proxies != nil {
			_ = o.Proxies.Report(endpoint, res.err == nil)
		}
		res.stages = tr.Snapshot()
	}()

	// Stage work runs to completion once started; cancellation is observed
	// only at stage boundaries.
	sctx := context.WithoutCancel(ctx)
	checkpoint := func(st stage.Stage) error {
		if err := ctx.Err(); err != nil {
			tr.Fail(st, "canceled: %v", err)
			return fmt.Errorf("session: canceled before %s: %w", st, err)
		}
		return nil
	}

	// DRIVER_READY
	if err := checkpoint(stage.DriverSetup); err != nil {
		res.err = err
		return res
	}
	tr.Begin(stage.DriverSetup)
	if o.Proxies != nil {
		endpoint, _ = o.Proxies.Next()
	}
	vp := o.viewport()
	bcfg := browser.Config{
		UserAgent: o.Agents.Pick(),
		Viewport:  vp,
		Proxy:     endpoint,
		Headful:   o.Config.Headful,
		NoSandbox: o.Config.NoSandbox,
		Language:  o.Config.Language,
	}
	s, name, err := o.launch(sctx, bcfg, log)
	if err != nil {
		tr.Fail(stage.DriverSetup, "%v", err)
		res.err = err
		return res
	}
	sess, res.launcher = s, name
	tr.Succeed(stage.DriverSetup)
	log.Info("session: driver ready", "launcher", name, "viewport", vp)

	// AUTH_APPLIED
	if err := checkpoint(stage.PageLoad); err != nil {
		res.err = err
		return res
	}
	if err := o.applyCredentials(sctx, sess, tr, vp, rep, log); err != nil {
		res.err = err
		return res
	}

	// NAVIGATED
	tr.Begin(stage.PageLoad)
	target := SearchURL(o.Config.BaseURL, term)
	rep.Emit(progress.Info, "[NAVIGATE] Opening search for %q", term)
	if err := sess.Navigate(sctx, target); err != nil {
		tr.Fail(stage.PageLoad, "navigate: %v", err)
		res.err = err
		return res
	}
	wr := browser.WaitForAny(sctx, sess, ReadyConditions, o.Config.WaitTimeout, o.Config.PollInterval)
	if wr.Outcome != browser.Found {
		tr.Fail(stage.PageLoad, "timeout")
		o.snap(sess, term, n, snapshot.Timeout, log)
		res.err = fmt.Errorf("%w after %s", ErrTimeout, o.Config.WaitTimeout)
		if wr.Err != nil {
			res.err = fmt.Errorf("%w: %w", res.err, wr.Err)
		}
		return res
	}
	tr.Succeed(stage.PageLoad)
	log.Debug("session: page ready", "matched", wr.Matched.Name)

	// CHALLENGE_CHECK
	if err := checkpoint(stage.ChallengeDetection); err != nil {
		res.err = err
		return res
	}
	tr.Begin(stage.ChallengeDetection)
	page, err := challenge.FromSession(sess)
	if err != nil {
		log.Warn("session: challenge inspection failed", "error", err)
		tr.Set(stage.ChallengeDetection, stage.Partial, err.Error())
	} else if v := challenge.InspectPage(page, o.Detectors); v.Detected {
		tr.Fail(stage.ChallengeDetection, "challenge detected (%s); stopping to avoid ban risk", v.Source)
		metrics.RecordChallenge(v.Source)
		o.snap(sess, term, n, snapshot.Challenge, log)
		res.err = fmt.Errorf("%w: %s", ErrChallenge, v.Source)
		return res
	} else {
		tr.Succeed(stage.ChallengeDetection)
	}

	// CONTENT_CHECK
	curURL, _ := sess.URL()
	title, _ := sess.Title()
	if !OnSearchSurface(curURL, title) {
		tr.Fail(stage.PageLoad, "redirected: url=%s title=%q", curURL, title)
		o.snap(sess, term, n, snapshot.Redirect, log)
		res.err = fmt.Errorf("%w: %s", ErrRedirected, curURL)
		return res
	}
	rep.Emit(progress.Info, "[PAGE] Search page loaded")

	// SCROLLING
	if err := checkpoint(stage.ContentExtraction); err != nil {
		res.err = err
		return res
	}
	res.items, res.passes, res.err = o.scroll(sctx, sess, tr, term, n, vp, rep, log)
	if res.err == nil && o.Config.SnapshotFinal {
		o.snap(sess, term, n, snapshot.FinalPage, log)
	}
	return res
}

// applyCredentials sets the stored session cookie when one is available.
func (o *Orchestrator) applyCredentials(ctx context.Context, s browser.Session, tr *stage.Tracker, vp browser.Viewport, rep *progress.Reporter, log *slog.Logger) error {
	if o.Credentials == nil {
		return nil
	}
	token, ok, err := o.Credentials(o.Config.CredentialPath)
	if err != nil {
		log.Warn("session: credentials unreadable, continuing without", "error", err)
		return nil
	}
	if !ok {
		log.Info("session: no stored credentials, continuing anonymously")
		return nil
	}

	tr.Begin(stage.PageLoad)
	rep.Emit(progress.Info, "[AUTH] Applying stored credentials")
	if err := s.Navigate(ctx, o.Config.BaseURL); err != nil {
		tr.Fail(stage.PageLoad, "auth: navigate: %v", err)
		return err
	}
	_ = o.Pacer.Settle(ctx)
	if err := s.SetCookie(credential.Cookie(token, o.Config.CookieDomain)); err != nil {
		tr.Fail(stage.PageLoad, "auth: set cookie: %v", err)
		return fmt.Errorf("session: set cookie: %w", err)
	}
	if err := s.Reload(ctx); err != nil {
		tr.Fail(stage.PageLoad, "auth: reload: %v", err)
		return err
	}
	_ = o.Pacer.Settle(ctx)
	o.humanize(ctx, s, vp, log)
	return nil
}

// scroll loads content incrementally until a stop rule fires.
func (o *Orchestrator) scroll(ctx context.Context, s browser.Session, tr *stage.Tracker, term string, n int, vp browser.Viewport, rep *progress.Reporter, log *slog.Logger) ([]tweet.Item, int, error) {
	tr.Begin(stage.ContentExtraction)
	cfg := o.Config
	budget := ratelimit.NewBudget(cfg.RateBudget)

	var (
		running dedup.Running
		items   []tweet.Item
		empty   int
		passes  int
		failure error
	)
	lastHeight, err := s.PageHeight()
	if err != nil {
		log.Debug("session: initial height unavailable", "error", err)
	}

	for passes < cfg.MaxScrolls {
		if !budget.Take() {
			log.Info("session: rate budget exhausted", "used", budget.Used())
			break
		}
		passes++

		if err := s.ScrollToBottom(); err != nil {
			failure = err
			break
		}
		_ = o.Pacer.Wait(ctx)
		o.humanize(ctx, s, vp, log)

		els, err := s.FindAll(extract.ArticleSelector)
		if err != nil {
			failure = err
			break
		}
		if len(els) == 0 && passes == 1 {
			log.Warn("session: no articles after first scroll")
			o.snap(s, term, n, snapshot.NoArticles, log)
		}

		accepted := 0
		for _, it := range o.Extractor.ExtractAll(els, running.Seen) {
			if running.Accept(it) {
				items = append(items, it)
				accepted++
			}
		}
		metrics.RecordPass(accepted)
		if accepted == 0 {
			empty++
		} else {
			empty = 0
		}
		rep.Emit(progress.Info, "[SCROLL %d] %d new items (total %d)", passes, accepted, len(items))

		if empty >= cfg.EmptyPassThreshold {
			log.Info("session: no new items, stopping", "empty_passes", empty)
			break
		}
		height, herr := s.PageHeight()
		if herr == nil {
			if height == lastHeight && empty > 1 && len(items) > 0 {
				log.Info("session: end of feed", "height", height)
				break
			}
			lastHeight = height
		}
	}

	if failure != nil {
		if len(items) > 0 {
			tr.Set(stage.ContentExtraction, stage.Partial, fmt.Sprintf("salvaged %d items after: %v", len(items), failure))
			log.Warn("session: scroll failed, keeping collected items", "items", len(items), "error", failure)
			return items, passes, nil
		}
		tr.Fail(stage.ContentExtraction, "scroll: %v", failure)
		return nil, passes, fmt.Errorf("session: scroll pass %d: %w", passes, failure)
	}
	if len(items) == 0 {
		tr.Fail(stage.ContentExtraction, "no items found after %d passes", passes)
		return nil, passes, fmt.Errorf("%w after %d passes", ErrNoContent, passes)
	}
	tr.Succeed(stage.ContentExtraction)
	log.Info("session: collection finished", "items", len(items), "passes", passes)
	return items, passes, nil
}
