// Package report renders a finished analysis run for people: as JSON, as a
// terminal text summary, or as a standalone HTML page.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/Cryonoid/TwitLysis/internal/analyzer"
	"github.com/Cryonoid/TwitLysis/internal/pipeline"
	"github.com/Cryonoid/TwitLysis/internal/stage"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

// DefaultTop is how many items a summary lists when no limit is given.
const DefaultTop = 10

// ItemRow is one listed post.
type ItemRow struct {
	Rank    int    `json:"rank"`
	Score   int    `json:"score"`
	Author  string `json:"author"`
	Text    string `json:"text"`
	Segment string `json:"segment"`
}

// SegmentRow counts the posts in one relevancy segment.
type SegmentRow struct {
	Segment string `json:"segment"`
	Label   string `json:"label"`
	Count   int    `json:"count"`
}

// Summary is the renderable view of a run.
type Summary struct {
	Term      string             `json:"term"`
	RunID     string             `json:"run_id"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Duration  time.Duration      `json:"duration"`
	Attempts  int                `json:"attempts"`
	Scoring   string             `json:"scoring"`
	Stages    []stage.Entry      `json:"stages"`
	RootCause string             `json:"root_cause"`
	OK        bool               `json:"ok"`
	Fatal     bool               `json:"fatal"`
	ItemCount int                `json:"item_count"`
	Trend     int                `json:"trend_relevancy"`
	Mentions  int                `json:"mentions"`
	Sentiment analyzer.Sentiment `json:"sentiment"`
	Segments  []SegmentRow       `json:"segments"`
	TopItems  []ItemRow          `json:"top_items"`
	Hashtags  []analyzer.Count   `json:"hashtags"`
}

// GenerateSummary condenses a run. top bounds the listed items and hashtags;
// zero or less uses DefaultTop.
func GenerateSummary(run *pipeline.Run, top int) Summary {
	if top <= 0 {
		top = DefaultTop
	}
	res := run.Result
	s := Summary{
		Term:      run.Term,
		RunID:     run.ID,
		StartTime: run.StartedAt,
		EndTime:   run.FinishedAt,
		Duration:  run.Duration(),
		Attempts:  len(run.Attempts),
		Scoring:   string(run.Scoring),
		Stages:    run.Stages,
		RootCause: run.RootCause,
		OK:        !run.Failed(),
		Fatal:     run.Fatal,
		ItemCount: res.ItemCount,
		Trend:     res.TrendRelevancy,
		Sentiment: analyzer.SentimentOf(res.Items),
		Segments:  make([]SegmentRow, 0, len(analyzer.Segments)),
		TopItems:  []ItemRow{},
		Hashtags:  analyzer.TopHashtags([]tweet.Result{res}, top),
	}

	plain := make([]tweet.Item, len(res.Items))
	for i, it := range res.Items {
		plain[i] = it.Item
	}
	s.Mentions = analyzer.Mentions(plain, run.Term)

	groups := analyzer.BySegment(res.Items)
	for _, seg := range analyzer.Segments {
		s.Segments = append(s.Segments, SegmentRow{
			Segment: string(seg),
			Label:   seg.Label(),
			Count:   len(groups[seg]),
		})
	}

	for i, it := range res.Top(top) {
		s.TopItems = append(s.TopItems, ItemRow{
			Rank:    i + 1,
			Score:   it.RelevancyScore,
			Author:  it.Author,
			Text:    pipeline.Excerpt(it.Text, 140),
			Segment: string(analyzer.SegmentOf(it.RelevancyScore)),
		})
	}
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

const textTmpl = `TwitLysis Analysis: {{.Term}}
------------------------------
Run:           {{.RunID}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Attempts:      {{.Attempts}}
Status:        {{if .OK}}ok{{else}}{{.RootCause}}{{end}}
{{- if .Fatal}}
Challenge:     collection stopped by an anti-automation challenge
{{- end}}

Posts:         {{.ItemCount}}
Trend score:   {{.Trend}}/100
Scoring:       {{.Scoring}}
Mentions:      {{.Mentions}}
Sentiment:     {{.Sentiment.Positive}}% positive, {{.Sentiment.Neutral}}% neutral, {{.Sentiment.Negative}}% negative

Stages:
{{- range .Stages}}
  {{printf "%-20s" .Stage}} {{.Status}}{{if .Error}} ({{.Error}}){{end}}
{{- end}}

Segments:
{{- range .Segments}}
  {{.Label}}: {{.Count}}
{{- end}}

Top posts:
{{- range .TopItems}}
  {{.Rank}}. [{{.Score}}] {{.Author}}: {{.Text}}
{{- else}}
  None
{{- end}}

Hashtags:
{{- range .Hashtags}}
  {{.Text}}: {{.Count}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>TwitLysis Report: {{.Term}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; vertical-align: top; }
  th { background: #eaeaea; }
  .failed { color: red; }
  .high { color: green; } .medium { color: darkorange; } .low { color: gray; }
</style>
</head>
<body>
  <h1>TwitLysis Report: {{.Term}}</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}}), {{.Attempts}} attempt(s)</p>
  {{- if not .OK}}
  <p class="failed"><strong>Root cause:</strong> {{.RootCause}}</p>
  {{- end}}

  <div class="stat-card">
    <div>Trend Score</div>
    <div class="stat-val">{{.Trend}}/100</div>
  </div>
  <div class="stat-card">
    <div>Posts</div>
    <div class="stat-val">{{.ItemCount}}</div>
  </div>
  <div class="stat-card">
    <div>Mentions</div>
    <div class="stat-val">{{.Mentions}}</div>
  </div>
  <div class="stat-card">
    <div>Sentiment</div>
    <div class="stat-val">{{.Sentiment.Positive}} / {{.Sentiment.Neutral}} / {{.Sentiment.Negative}}</div>
  </div>

  <h3>Stages</h3>
  <table>
    <tr><th>Stage</th><th>Status</th><th>Detail</th></tr>
    {{- range .Stages}}
    <tr><td>{{.Stage}}</td><td{{if eq (print .Status) "failed"}} class="failed"{{end}}>{{.Status}}</td><td>{{.Error}}</td></tr>
    {{- end}}
  </table>

  <h3>Segments</h3>
  <table>
    <tr><th>Segment</th><th>Posts</th></tr>
    {{- range .Segments}}
    <tr><td class="{{.Segment}}">{{.Label}}</td><td>{{.Count}}</td></tr>
    {{- end}}
  </table>

  <h3>Top Posts</h3>
  <table>
    <tr><th>#</th><th>Score</th><th>Author</th><th>Text</th></tr>
    {{- range .TopItems}}
    <tr><td>{{.Rank}}</td><td class="{{.Segment}}">{{.Score}}</td><td>{{.Author}}</td><td>{{.Text}}</td></tr>
    {{- else}}
    <tr><td colspan="4">None</td></tr>
    {{- end}}
  </table>

  <h3>Hashtags</h3>
  <table>
    <tr><th>Hashtag</th><th>Count</th></tr>
    {{- range .Hashtags}}
    <tr><td>{{.Text}}</td><td>{{.Count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes a standalone HTML report. Post text is escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: parse html template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

// Write renders summary in the named format: "text", "json" or "html".
func Write(w io.Writer, format string, summary Summary) error {
	switch format {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "html":
		return WriteHTML(w, summary)
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}
