package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitlysis_attempts_total",
			Help: "Collection attempts by outcome",
		},
		[]string{"outcome"},
	)

	ScrollPassesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "twitlysis_scroll_passes_total",
			Help: "Scroll and extract passes executed",
		},
	)

	ItemsCollectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "twitlysis_items_collected_total",
			Help: "Unique items accepted during scrolling",
		},
	)

	StageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitlysis_stage_failures_total",
			Help: "Stage failures by stage name",
		},
		[]string{"stage"},
	)

	ChallengesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitlysis_challenges_total",
			Help: "Challenges detected by detector source",
		},
		[]string{"source"},
	)

	PreflightTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitlysis_preflight_total",
			Help: "Preflight probes by outcome",
		},
		[]string{"blocked", "source"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "twitlysis_run_duration_seconds",
			Help:    "Duration of analysis runs in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)
)

// RecordAttempt counts one finished collection attempt.
func RecordAttempt(outcome string) {
	AttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordPass counts one scroll pass and the new items it accepted.
func RecordPass(accepted int) {
	ScrollPassesTotal.Inc()
	if accepted > 0 {
		ItemsCollectedTotal.Add(float64(accepted))
	}
}

// RecordStageFailure counts a failed stage.
func RecordStageFailure(stage string) {
	StageFailuresTotal.WithLabelValues(stage).Inc()
}

// RecordChallenge counts a detected challenge.
func RecordChallenge(source string) {
	ChallengesTotal.WithLabelValues(source).Inc()
}

// RecordPreflight counts a preflight probe result.
func RecordPreflight(blocked bool, source string) {
	PreflightTotal.WithLabelValues(strconv.FormatBool(blocked), source).Inc()
}

// ObserveRun records the duration of a finished run.
func ObserveRun(d time.Duration) {
	RunDuration.Observe(d.Seconds())
}

// Handler exposes the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start serves /metrics on port in the background.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
