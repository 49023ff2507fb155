package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cryonoid/TwitLysis/internal/pipeline"
	"github.com/Cryonoid/TwitLysis/internal/progress"
	"github.com/Cryonoid/TwitLysis/internal/storage"
	"github.com/Cryonoid/TwitLysis/internal/storage/yamlbackend"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

type fakeAnalyzer struct {
	err   error
	terms chan string
}

func (f *fakeAnalyzer) Run(_ context.Context, term string, rep *progress.Reporter) (*pipeline.Run, error) {
	if f.terms != nil {
		f.terms <- term
	}
	if f.err != nil {
		return nil, f.err
	}
	rep.Step(1, "Scraping tweets for '%s'", term)
	rep.Step(3, "Analyzing relevancy")
	rep.Complete("[COMPLETE] Analysis finished and results ready.")
	return &pipeline.Run{Term: term}, nil
}

func readEvents(t *testing.T, resp *http.Response) []sseMessage {
	t.Helper()
	var out []sseMessage
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg sseMessage
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
		out = append(out, msg)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestSearch_StreamsProgress(t *testing.T) {
	srv := httptest.NewServer(New(&fakeAnalyzer{}, nil, 0, nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/search?query=golang")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp)
	require.Len(t, events, 3)
	assert.Equal(t, "[STEP 1/5] Scraping tweets for 'golang'", events[0].Message)
	assert.Equal(t, 20, events[0].Progress)
	assert.Equal(t, 60, events[1].Progress)
	assert.Equal(t, sseMessage{Message: "[COMPLETE] Analysis finished and results ready.", Progress: 100}, events[2])
}

func TestSearch_ErrorEvent(t *testing.T) {
	srv := httptest.NewServer(New(&fakeAnalyzer{err: errors.New("boom")}, nil, 0, nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/search?query=golang")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp)
	require.Len(t, events, 1)
	assert.True(t, events[0].Error)
	assert.Equal(t, "[ERROR] An error occurred: boom", events[0].Message)
}

func TestSearch_RequiresQuery(t *testing.T) {
	s := New(&fakeAnalyzer{}, nil, 0, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?query=%20", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No query provided"}`, rec.Body.String())
}

func TestSearch_BusyWhileRunning(t *testing.T) {
	s := New(&fakeAnalyzer{}, nil, 0, nil)
	require.True(t, s.running.TryAcquire(1))
	defer s.running.Release(1)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?query=go", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSearch_RateLimited(t *testing.T) {
	terms := make(chan string, 4)
	s := New(&fakeAnalyzer{terms: terms}, nil, 1, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/search?query=first")
	require.NoError(t, err)
	readEvents(t, resp)
	resp.Body.Close()
	assert.Equal(t, "first", <-terms)

	resp, err = http.Get(srv.URL + "/api/search?query=second")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func seed(t *testing.T) storage.Backend {
	t.Helper()
	b, err := yamlbackend.New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	golang := tweet.NewResult("golang", 80, []tweet.ScoredItem{
		{Item: tweet.Item{ID: "1", Text: "go 1.26 is out #golang", Author: "@a", Tags: []string{"#golang"}}, RelevancyScore: 90},
		{Item: tweet.Item{ID: "2", Text: "generics #golang #dev", Author: "@b", Tags: []string{}}, RelevancyScore: 50},
	})
	rust := tweet.NewResult("rust", 30, []tweet.ScoredItem{
		{Item: tweet.Item{ID: "3", Text: "borrow checker #dev", Author: "@c", Tags: []string{}}, RelevancyScore: 10},
	})
	require.NoError(t, b.Save(ctx, storage.NewRecord("r1", storage.Raw, golang, base)))
	require.NoError(t, b.Save(ctx, storage.NewRecord("r1", storage.Scored, golang, base)))
	require.NoError(t, b.Save(ctx, storage.NewRecord("r2", storage.Scored, rust, base.Add(time.Hour))))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func get(t *testing.T, s *Server, target string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if v != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}
	return rec.Code
}

func TestSearch_BusyDoesNotSpendRateBudget(t *testing.T) {
	terms := make(chan string, 1)
	s := New(&fakeAnalyzer{terms: terms}, nil, 1, nil)
	router := s.Router()

	require.True(t, s.running.TryAcquire(1))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?query=go", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)
	}
	s.running.Release(1)

	srv := httptest.NewServer(router)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/api/search?query=go")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	readEvents(t, resp)
	assert.Equal(t, "go", <-terms)
}

func TestAvailableTerms(t *testing.T) {
	s := New(nil, seed(t), 0, nil)
	var terms []string
	require.Equal(t, http.StatusOK, get(t, s, "/api/available-terms", &terms))
	assert.Equal(t, []string{"rust", "golang"}, terms)
}

func TestAvailableTerms_NoBackend(t *testing.T) {
	rec := httptest.NewRecorder()
	New(nil, nil, 0, nil).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/available-terms", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestTermDetails(t *testing.T) {
	s := New(nil, seed(t), 0, nil)

	var got termDetails
	require.Equal(t, http.StatusOK, get(t, s, "/api/term-details?term=GoLang", &got))
	assert.Equal(t, 80, got.TrendScore)
	assert.Equal(t, 2, got.TweetCount)
	assert.Equal(t, 50, got.Sentiment.Positive)
	assert.Equal(t, 50, got.Sentiment.Neutral)
	require.Len(t, got.Tweets, 2)
	assert.Equal(t, "1", got.Tweets[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/term-details", nil))
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/term-details?term=python", nil))
}

func TestTrends(t *testing.T) {
	s := New(nil, seed(t), 0, nil)
	var got trends
	require.Equal(t, http.StatusOK, get(t, s, "/api/trends", &got))
	assert.Equal(t, []trendCount{{Term: "golang", Count: 2}, {Term: "rust", Count: 1}}, got.TopTrends)
	assert.Equal(t, 33, got.Sentiment.Positive)
	assert.Equal(t, 33, got.Sentiment.Neutral)
	assert.Equal(t, 33, got.Sentiment.Negative)
}

func TestHashtags(t *testing.T) {
	s := New(nil, seed(t), 0, nil)
	var got struct {
		Hashtags []struct {
			Text  string `json:"text"`
			Count int    `json:"count"`
		} `json:"hashtags"`
	}
	require.Equal(t, http.StatusOK, get(t, s, "/api/hashtags", &got))
	require.Len(t, got.Hashtags, 2)
	assert.Equal(t, "#dev", got.Hashtags[0].Text)
	assert.Equal(t, 2, got.Hashtags[0].Count)
	assert.Equal(t, "#golang", got.Hashtags[1].Text)
	assert.Equal(t, 2, got.Hashtags[1].Count)
}

func TestPreviousResults(t *testing.T) {
	s := New(nil, seed(t), 0, nil)
	var got []previousResult
	require.Equal(t, http.StatusOK, get(t, s, "/api/previous-results", &got))
	require.Len(t, got, 2)
	assert.Equal(t, "rust", got[0].Term)
	assert.Equal(t, 30, got[0].Score)
	assert.Equal(t, "golang", got[1].Term)
	assert.Equal(t, 2, got[1].TweetCount)
	assert.Len(t, got[1].Date, len(dateLayout))
}

func TestHealthAndMetrics(t *testing.T) {
	s := New(nil, nil, 0, nil)
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz", nil))
	assert.Equal(t, http.StatusOK, get(t, s, "/metrics", nil))
}
