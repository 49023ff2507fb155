// Package api serves the analysis over HTTP: a server-sent event stream that
// runs a search, and read-only views over stored results.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Cryonoid/TwitLysis/internal/analyzer"
	"github.com/Cryonoid/TwitLysis/internal/metrics"
	"github.com/Cryonoid/TwitLysis/internal/pipeline"
	"github.com/Cryonoid/TwitLysis/internal/progress"
	"github.com/Cryonoid/TwitLysis/internal/storage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

// Response limits.
const (
	DetailTweets  = 10
	TrendTerms    = 10
	TopHashtags   = 50
	eventBuffer   = 64
	dateLayout    = "2006-01-02 15:04"
	defaultPerMin = 6
)

// Analyzer runs one analysis and reports progress on rep.
type Analyzer interface {
	Run(ctx context.Context, term string, rep *progress.Reporter) (*pipeline.Run, error)
}

// Server holds the handlers. Only one analysis runs at a time.
type Server struct {
	Analyzer Analyzer
	Backend  storage.Backend
	Logger   *slog.Logger

	limiter *rate.Limiter
	running *semaphore.Weighted
}

// New builds a server admitting perMinute searches per minute. Zero or less
// uses the default.
func New(a Analyzer, b storage.Backend, perMinute int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if perMinute <= 0 {
		perMinute = defaultPerMin
	}
	return &Server{
		Analyzer: a,
		Backend:  b,
		Logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		running:  semaphore.NewWeighted(1),
	}
}

// Router returns a chi router with the API, health and metrics routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP registers the API routes on r.
func (s *Server) RegisterHTTP(r chi.Router) {
	r.Get("/api/search", s.handleSearch)
	r.Get("/api/available-terms", s.handleAvailableTerms)
	r.Get("/api/term-details", s.handleTermDetails)
	r.Get("/api/trends", s.handleTrends)
	r.Get("/api/hashtags", s.handleHashtags)
	r.Get("/api/previous-results", s.handlePreviousResults)
}

type sseMessage struct {
	Message  string `json:"message"`
	Progress int    `json:"progress"`
	Error    bool   `json:"error,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "No query provided")
		return
	}
	// A busy server rejects before the limiter so 409s spend no token.
	if !s.running.TryAcquire(1) {
		writeError(w, http.StatusConflict, "An analysis is already running")
		return
	}
	if !s.limiter.Allow() {
		s.running.Release(1)
		writeError(w, http.StatusTooManyRequests, "Too many searches, try again later")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.running.Release(1)
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	log := s.Logger.With("term", query, "request_id", middleware.GetReqID(r.Context()))
	rep := progress.NewReporter(eventBuffer, log)

	// The analysis outlives a disconnected client so its results are still
	// persisted.
	ctx := context.WithoutCancel(r.Context())
	go func() {
		// Release before closing the stream so a client that saw the end can
		// start the next search.
		defer rep.Close()
		defer s.running.Release(1)
		if _, err := s.Analyzer.Run(ctx, query, rep); err != nil {
			rep.Fail("[ERROR] An error occurred: %v", err)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, ok := <-rep.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				log.Debug("api: client write failed", "error", err)
				rep.Abandon()
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			log.Info("api: client disconnected, analysis continues")
			rep.Abandon()
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev progress.Event) error {
	data, err := json.Marshal(sseMessage{Message: ev.Message, Progress: ev.Progress, Error: ev.Failed})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (s *Server) handleAvailableTerms(w http.ResponseWriter, r *http.Request) {
	recs, err := s.latest(r.Context())
	if err != nil {
		s.internalError(w, "available terms", err)
		return
	}
	terms := make([]string, 0, len(recs))
	for _, rec := range recs {
		terms = append(terms, rec.Result.SearchTerm)
	}
	writeJSON(w, http.StatusOK, terms)
}

type termDetails struct {
	Term       string             `json:"term"`
	TrendScore int                `json:"trend_score"`
	TweetCount int                `json:"tweet_count"`
	Sentiment  analyzer.Sentiment `json:"sentiment"`
	Tweets     []tweet.ScoredItem `json:"tweets"`
}

func (s *Server) handleTermDetails(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "No term provided")
		return
	}
	if s.Backend == nil {
		writeError(w, http.StatusNotFound, "Term not found")
		return
	}
	rec, err := storage.Latest(r.Context(), s.Backend, term)
	if err != nil {
		s.internalError(w, "term details", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Term not found")
		return
	}
	res := rec.Result
	writeJSON(w, http.StatusOK, termDetails{
		Term:       term,
		TrendScore: res.TrendRelevancy,
		TweetCount: len(res.Items),
		Sentiment:  analyzer.SentimentOf(res.Items),
		Tweets:     res.Top(DetailTweets),
	})
}

type trendCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

type trends struct {
	TopTrends []trendCount      `json:"top_trends"`
	Sentiment analyzer.Sentiment `json:"sentiment_overview"`
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	results, err := s.latestResults(r.Context())
	if err != nil {
		s.internalError(w, "trends", err)
		return
	}
	top := analyzer.TopTerms(results, TrendTerms)
	out := trends{
		TopTrends: make([]trendCount, 0, len(top)),
		Sentiment: analyzer.SentimentOf(analyzer.AllItems(results)),
	}
	for _, c := range top {
		out.TopTrends = append(out.TopTrends, trendCount{Term: c.Text, Count: c.Count})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHashtags(w http.ResponseWriter, r *http.Request) {
	results, err := s.latestResults(r.Context())
	if err != nil {
		s.internalError(w, "hashtags", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]analyzer.Count{
		"hashtags": analyzer.TopHashtags(results, TopHashtags),
	})
}

type previousResult struct {
	Term       string `json:"term"`
	Score      int    `json:"score"`
	TweetCount int    `json:"tweet_count"`
	Date       string `json:"date"`
}

func (s *Server) handlePreviousResults(w http.ResponseWriter, r *http.Request) {
	recs, err := s.latest(r.Context())
	if err != nil {
		s.internalError(w, "previous results", err)
		return
	}
	out := make([]previousResult, 0, len(recs))
	for _, rec := range recs {
		out = append(out, previousResult{
			Term:       rec.Result.SearchTerm,
			Score:      rec.Result.TrendRelevancy,
			TweetCount: len(rec.Result.Items),
			Date:       rec.CreatedAt.Local().Format(dateLayout),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// latest returns the newest scored record per term, newest first.
func (s *Server) latest(ctx context.Context) ([]*storage.Record, error) {
	if s.Backend == nil {
		return []*storage.Record{}, nil
	}
	recs, err := s.Backend.Query(ctx, storage.Filter{Category: storage.Scored})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(recs))
	out := make([]*storage.Record, 0, len(recs))
	for _, rec := range recs {
		key := storage.TermKey(rec.Term)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Server) latestResults(ctx context.Context) ([]tweet.Result, error) {
	recs, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tweet.Result, len(recs))
	for i, rec := range recs {
		out[i] = rec.Result
	}
	return out, nil
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.Logger.Error("api: query failed", "endpoint", what, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
