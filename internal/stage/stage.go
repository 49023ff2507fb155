// Package stage tracks the status of each named pipeline stage and reports
// the root cause of a failed run.
package stage

import (
	"fmt"
	"strings"
)

// Stage names a step of the analysis pipeline.
type Stage string

const (
	DriverSetup        Stage = "driver_setup"
	PageLoad           Stage = "page_load"
	ChallengeDetection Stage = "challenge_detection"
	ContentExtraction  Stage = "content_extraction"
	Deduplication      Stage = "deduplication"
	RelevancyScoring   Stage = "relevancy_scoring"
	Persistence        Stage = "persistence"
)

// Canonical lists every stage in pipeline order. Root cause reporting walks
// this order.
var Canonical = []Stage{
	DriverSetup,
	PageLoad,
	ChallengeDetection,
	ContentExtraction,
	Deduplication,
	RelevancyScoring,
	Persistence,
}

// Status is the state of a single stage.
type Status string

const (
	NotStarted Status = "not_started"
	InProgress Status = "in_progress"
	Success    Status = "success"
	Partial    Status = "partial"
	Failed     Status = "failed"
	Skipped    Status = "skipped"
)

// Entry is the recorded state of one stage.
type Entry struct {
	Stage  Stage  `json:"stage" yaml:"stage"`
	Status Status `json:"status" yaml:"status"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Tracker records stage statuses for one attempt or run. It is owned by a
// single goroutine and is not safe for concurrent use.
type Tracker struct {
	entries map[Stage]Entry
}

// NewTracker returns a tracker with every stage not started.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset marks every stage not started.
func (t *Tracker) Reset() {
	t.entries = make(map[Stage]Entry, len(Canonical))
	for _, s := range Canonical {
		t.entries[s] = Entry{Stage: s, Status: NotStarted}
	}
}

// Set records the status of a stage. detail is optional.
func (t *Tracker) Set(s Stage, status Status, detail string) {
	t.entries[s] = Entry{Stage: s, Status: status, Error: detail}
}

// Begin marks a stage in progress.
func (t *Tracker) Begin(s Stage) { t.Set(s, InProgress, "") }

// Succeed marks a stage successful.
func (t *Tracker) Succeed(s Stage) { t.Set(s, Success, "") }

// Fail marks a stage failed with the given detail.
func (t *Tracker) Fail(s Stage, format string, args ...any) {
	t.Set(s, Failed, fmt.Sprintf(format, args...))
}

// Get returns the entry for a stage.
func (t *Tracker) Get(s Stage) Entry {
	if e, ok := t.entries[s]; ok {
		return e
	}
	return Entry{Stage: s, Status: NotStarted}
}

// FailInProgress marks every in-progress stage failed. It is used when an
// attempt aborts unexpectedly.
func (t *Tracker) FailInProgress(detail string) {
	for _, s := range Canonical {
		if t.entries[s].Status == InProgress {
			t.Set(s, Failed, detail)
		}
	}
}

// Merge copies every stage that src has started into t.
func (t *Tracker) Merge(src *Tracker) {
	if src == nil {
		return
	}
	for _, s := range Canonical {
		if e := src.Get(s); e.Status != NotStarted {
			t.entries[s] = e
		}
	}
}

// Snapshot returns the entries in canonical order.
func (t *Tracker) Snapshot() Snapshot {
	out := make(Snapshot, 0, len(Canonical))
	for _, s := range Canonical {
		out = append(out, t.Get(s))
	}
	return out
}

// RootCause returns the first failed stage in canonical order.
func (t *Tracker) RootCause() (Entry, bool) {
	return t.Snapshot().RootCause()
}

// Snapshot is an ordered, immutable copy of stage entries.
type Snapshot []Entry

// RootCause returns the first failed entry.
func (s Snapshot) RootCause() (Entry, bool) {
	for _, e := range s {
		if e.Status == Failed {
			return e, true
		}
	}
	return Entry{}, false
}

// Status returns the status recorded for a stage.
func (s Snapshot) Status(st Stage) Status {
	for _, e := range s {
		if e.Stage == st {
			return e.Status
		}
	}
	return NotStarted
}

// Summary renders a one-line description of the root cause, or "ok".
func (s Snapshot) Summary() string {
	e, ok := s.RootCause()
	if !ok {
		return "ok"
	}
	var b strings.Builder
	b.WriteString(string(e.Stage))
	b.WriteString(": failed")
	if e.Error != "" {
		b.WriteString(": ")
		b.WriteString(e.Error)
	}
	return b.String()
}
