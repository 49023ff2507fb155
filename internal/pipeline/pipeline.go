// Package pipeline composes collection, deduplication, scoring and
// persistence into one analysis run.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Cryonoid/TwitLysis/internal/dedup"
	"github.com/Cryonoid/TwitLysis/internal/metrics"
	"github.com/Cryonoid/TwitLysis/internal/preflight"
	"github.com/Cryonoid/TwitLysis/internal/progress"
	"github.com/Cryonoid/TwitLysis/internal/relevance"
	"github.com/Cryonoid/TwitLysis/internal/session"
	"github.com/Cryonoid/TwitLysis/internal/stage"
	"github.com/Cryonoid/TwitLysis/internal/storage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

var (
	// ErrEmptyTerm is returned for a blank search term.
	ErrEmptyTerm = errors.New("pipeline: empty search term")
	// ErrNoCollector is returned when the pipeline has nothing to collect
	// with.
	ErrNoCollector = errors.New("pipeline: no collector configured")
)

// DefaultTopN is how many leading items are announced when a run completes.
const DefaultTopN = 5

// Collector gathers candidate items for a term.
type Collector interface {
	Collect(ctx context.Context, term string, rep *progress.Reporter) session.Outcome
}

// Prober runs an advisory check before collection.
type Prober interface {
	Probe(ctx context.Context) (preflight.Result, error)
}

// Run is the outcome of one analysis.
type Run struct {
	ID        string                  `json:"id"`
	Term      string                  `json:"term"`
	Result    tweet.Result            `json:"result"`
	Stages    stage.Snapshot          `json:"stages"`
	RootCause string                  `json:"root_cause"`
	Attempts  []session.AttemptRecord `json:"attempts"`
	Scoring   relevance.Mode          `json:"scoring,omitempty"`
	// Fatal is set when a challenge stopped collection.
	Fatal      bool      `json:"fatal,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed reports whether any stage failed.
func (r *Run) Failed() bool {
	_, failed := r.Stages.RootCause()
	return failed
}

// Pipeline runs analyses. Collector is required; the rest are optional.
type Pipeline struct {
	Collector Collector
	// Backend receives the raw and scored snapshots. Nil skips persistence.
	Backend storage.Backend
	Scorer  *relevance.Scorer
	Prober  Prober
	Logger  *slog.Logger
	Now     func() time.Time
	TopN    int
}

// New returns a pipeline with a default scorer.
func New(c Collector, b storage.Backend, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Collector: c,
		Backend:   b,
		Scorer:    relevance.NewScorer(logger),
		Logger:    logger,
		Now:       time.Now,
		TopN:      DefaultTopN,
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Run analyzes term. Recoverable problems are recorded in the returned Run's
// stages; an error is returned only for a blank term or a missing collector.
// rep may be nil. Run ends with either a Complete or a Fail event but does
// not close rep.
func (p *Pipeline) Run(ctx context.Context, term string, rep *progress.Reporter) (*Run, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrEmptyTerm
	}
	if p.Collector == nil {
		return nil, ErrNoCollector
	}
	scorer := p.Scorer
	if scorer == nil {
		scorer = relevance.NewScorer(p.logger())
	}

	run := &Run{ID: uuid.NewString(), Term: term, StartedAt: p.now()}
	log := p.logger().With("run", run.ID, "term", term)
	tr := stage.NewTracker()

	rep.Emit(progress.Info, "[START] Analyzing trend for: %q", term)
	log.Info("pipeline: run started")

	p.preflight(ctx, rep, log)

	if checkpoint(ctx, tr, stage.DriverSetup) {
		return p.abort(run, tr, rep, log), nil
	}
	rep.Step(1, "Scraping and initial deduplication of posts...")
	out := p.Collector.Collect(ctx, term, rep)
	for _, e := range out.Stages {
		if e.Status != stage.NotStarted {
			tr.Set(e.Stage, e.Status, e.Error)
		}
	}
	run.Attempts = out.Attempts
	run.Fatal = out.Fatal

	if len(out.Items) == 0 {
		return p.empty(run, tr, rep, log), nil
	}

	if checkpoint(ctx, tr, stage.Deduplication) {
		return p.abort(run, tr, rep, log), nil
	}
	tr.Begin(stage.Deduplication)
	items := dedup.FinalPass(out.Items)
	if removed := len(out.Items) - len(items); removed > 0 {
		rep.Emit(progress.Info, "[DEDUP] Removed %d duplicates in final pass", removed)
	}
	tr.Succeed(stage.Deduplication)
	if len(items) == 0 {
		return p.empty(run, tr, rep, log), nil
	}
	rep.Emit(progress.Info, "[INFO] %d unique posts collected", len(items))

	if checkpoint(ctx, tr, stage.Persistence) {
		return p.abort(run, tr, rep, log), nil
	}
	rep.Step(2, "Saving unique raw posts...")
	saveCtx := context.WithoutCancel(ctx)
	tr.Begin(stage.Persistence)
	saveErr := p.save(saveCtx, run.ID, storage.Raw, tweet.NewResult(term, 0, tweet.Unscored(items)), rep, log)

	if checkpoint(ctx, tr, stage.RelevancyScoring) {
		return p.abort(run, tr, rep, log), nil
	}
	rep.Step(3, "Calculating relevancy scores...")
	tr.Begin(stage.RelevancyScoring)
	scored := scorer.Score(term, items)
	run.Scoring = scored.Mode
	switch scored.Mode {
	case relevance.ModeFailed:
		tr.Fail(stage.RelevancyScoring, "%v", scored.Err)
		rep.Emit(progress.Warning, "[WARNING] Relevancy scoring failed, all scores default to 0: %v", scored.Err)
	case relevance.ModeHeuristic:
		tr.Set(stage.RelevancyScoring, scored.Mode.Status(), "degenerate vocabulary, heuristic scores")
		rep.Emit(progress.Warning, "[WARNING] Texts too uniform for TF-IDF, using match heuristic")
	default:
		tr.Set(stage.RelevancyScoring, scored.Mode.Status(), "")
	}

	rep.Step(4, "Sorting posts by relevancy...")
	res := tweet.NewResult(term, scored.Trend, scored.Items)

	rep.Step(5, "Saving scored results...")
	if err := p.save(saveCtx, run.ID, storage.Scored, res, rep, log); err != nil && saveErr == nil {
		saveErr = err
	}
	switch {
	case p.Backend == nil:
		tr.Set(stage.Persistence, stage.Skipped, "no backend configured")
	case saveErr != nil:
		tr.Fail(stage.Persistence, "%v", saveErr)
	default:
		tr.Succeed(stage.Persistence)
	}

	run.Result = res
	p.finish(run, tr)

	rep.Emit(progress.Info, "[COMPLETE] Analysis for %q completed in %.1f seconds.", term, run.Duration().Seconds())
	rep.Emit(progress.Info, "[RESULTS] Overall trend relevancy score: %d/100", res.TrendRelevancy)
	rep.Emit(progress.Info, "[RESULTS] Found %d relevant posts.", res.ItemCount)
	for i, it := range res.Top(p.topN()) {
		rep.Emit(progress.Info, "[TOP %d] (%d) %s: %s", i+1, it.RelevancyScore, it.Author, Excerpt(it.Text, 100))
	}
	if run.Failed() {
		rep.Emit(progress.Warning, "[WARNING] Completed with issues: %s", run.RootCause)
	}
	rep.Complete("[COMPLETE] Analysis finished and results ready.")

	log.Info("pipeline: run finished",
		"items", res.ItemCount,
		"trend", res.TrendRelevancy,
		"scoring", run.Scoring,
		"duration", run.Duration(),
		"cause", run.RootCause,
	)
	return run, nil
}

func (p *Pipeline) topN() int {
	if p.TopN > 0 {
		return p.TopN
	}
	return DefaultTopN
}

func (p *Pipeline) preflight(ctx context.Context, rep *progress.Reporter, log *slog.Logger) {
	if p.Prober == nil {
		return
	}
	res, err := p.Prober.Probe(ctx)
	if err != nil {
		log.Warn("pipeline: preflight failed", "error", err)
		rep.Emit(progress.Warning, "[PREFLIGHT] Probe failed: %v", err)
		return
	}
	if res.Verdict.Detected {
		rep.Emit(progress.Warning, "[PREFLIGHT] %s protection answered a plain request (HTTP %d); the browser session may be challenged", res.Verdict.Source, res.StatusCode)
	}
}

// save persists one snapshot. Failures are reported and returned but never
// stop the run.
func (p *Pipeline) save(ctx context.Context, runID string, cat storage.Category, res tweet.Result, rep *progress.Reporter, log *slog.Logger) error {
	if p.Backend == nil {
		return nil
	}
	rec := storage.NewRecord(runID, cat, res, p.now())
	if err := p.Backend.Save(ctx, rec); err != nil {
		log.Error("pipeline: save failed", "record", rec.Name(), "error", err)
		rep.Emit(progress.Warning, "[WARNING] Failed to save %s: %v", rec.Name(), err)
		return err
	}
	rep.Emit(progress.Info, "[SAVE] %s saved (%d posts)", rec.Name(), res.ItemCount)
	return nil
}

// empty finishes a run that has nothing to score.
func (p *Pipeline) empty(run *Run, tr *stage.Tracker, rep *progress.Reporter, log *slog.Logger) *Run {
	if tr.Get(stage.Deduplication).Status == stage.NotStarted {
		tr.Set(stage.Deduplication, stage.Skipped, "")
	}
	tr.Set(stage.RelevancyScoring, stage.Skipped, "")
	tr.Set(stage.Persistence, stage.Skipped, "")
	run.Scoring = relevance.ModeSkipped
	run.Result = tweet.NewResult(run.Term, 0, nil)
	p.finish(run, tr)

	rep.Emit(progress.Error, "[ERROR] No posts found or scraping failed for the given search term.")
	rep.Fail("[ERROR] Analysis failed: %s", run.RootCause)
	log.Warn("pipeline: run produced no items", "cause", run.RootCause, "attempts", len(run.Attempts))
	return run
}

// abort finishes a run canceled between stages.
func (p *Pipeline) abort(run *Run, tr *stage.Tracker, rep *progress.Reporter, log *slog.Logger) *Run {
	tr.FailInProgress("canceled")
	if run.Result.Items == nil {
		run.Result = tweet.NewResult(run.Term, 0, nil)
	}
	p.finish(run, tr)
	rep.Fail("[ERROR] Analysis canceled: %s", run.RootCause)
	log.Warn("pipeline: run canceled", "cause", run.RootCause)
	return run
}

func (p *Pipeline) finish(run *Run, tr *stage.Tracker) {
	run.FinishedAt = p.now()
	run.Stages = tr.Snapshot()
	run.RootCause = run.Stages.Summary()
	metrics.ObserveRun(run.Duration())
}

// checkpoint fails st when ctx is done. Stages are only interrupted before
// they begin.
func checkpoint(ctx context.Context, tr *stage.Tracker, st stage.Stage) bool {
	if ctx.Err() == nil {
		return false
	}
	tr.Fail(st, "canceled")
	return true
}

// Excerpt shortens s to at most n runes, marking the cut with "...".
func Excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
