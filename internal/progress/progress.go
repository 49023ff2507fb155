// Package progress carries ordered, human-readable progress events from a
// running analysis to a consumer such as an SSE stream or the terminal.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TotalSteps is the number of numbered steps an analysis reports.
const TotalSteps = 5

// Level classifies an event.
type Level string

const (
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

// Event is one progress message. Seq increases by one per event within a run.
type Event struct {
	Seq      int       `json:"seq"`
	Time     time.Time `json:"time"`
	Level    Level     `json:"level"`
	Step     int       `json:"step,omitempty"`
	Total    int       `json:"total,omitempty"`
	Message  string    `json:"message"`
	Progress int       `json:"progress"`
	Done     bool      `json:"done,omitempty"`
	Failed   bool      `json:"error,omitempty"`
}

// Percent maps a step number to a progress percentage. Numbered steps never
// report more than 95; only completion reports 100.
func Percent(step int) int {
	p := step * 100 / TotalSteps
	if p > 95 {
		p = 95
	}
	if p < 0 {
		p = 0
	}
	return p
}

// Reporter fans events into a bounded channel. Emit blocks when the buffer is
// full until the consumer reads or calls Abandon. A nil *Reporter discards
// events, so callers may pass nil when nobody listens.
type Reporter struct {
	ch        chan Event
	abandoned chan struct{}
	logger    *slog.Logger

	mu        sync.Mutex
	seq       int
	progress  int
	closed    bool
	abandonMu sync.Once
}

// NewReporter creates a reporter with the given buffer size.
func NewReporter(buffer int, logger *slog.Logger) *Reporter {
	if buffer < 1 {
		buffer = 1
	}
	return &Reporter{
		ch:        make(chan Event, buffer),
		abandoned: make(chan struct{}),
		logger:    logger,
	}
}

// Events returns the channel the consumer reads from. It is closed by Close.
func (r *Reporter) Events() <-chan Event {
	return r.ch
}

// Emit sends a message at the current progress.
func (r *Reporter) Emit(level Level, format string, args ...any) {
	if r == nil {
		return
	}
	r.send(Event{Level: level, Message: fmt.Sprintf(format, args...)}, -1)
}

// Step sends a numbered step message, e.g. "[STEP 2/5] Saving raw data".
func (r *Reporter) Step(step int, format string, args ...any) {
	if r == nil {
		return
	}
	msg := fmt.Sprintf("[STEP %d/%d] ", step, TotalSteps) + fmt.Sprintf(format, args...)
	r.send(Event{Level: Info, Step: step, Total: TotalSteps, Message: msg}, Percent(step))
}

// Complete sends the final success marker at 100 percent.
func (r *Reporter) Complete(format string, args ...any) {
	if r == nil {
		return
	}
	r.send(Event{Level: Info, Message: fmt.Sprintf(format, args...), Done: true}, 100)
}

// Fail sends the final failure marker.
func (r *Reporter) Fail(format string, args ...any) {
	if r == nil {
		return
	}
	r.send(Event{Level: Error, Message: fmt.Sprintf(format, args...), Done: true, Failed: true}, -1)
}

func (r *Reporter) send(ev Event, progress int) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.seq++
	if progress >= 0 {
		r.progress = progress
	}
	ev.Seq = r.seq
	ev.Progress = r.progress
	ev.Time = time.Now()
	// Holding mu while sending keeps events in Seq order.
	defer r.mu.Unlock()

	if r.logger != nil {
		r.logger.Log(context.Background(), ev.Level.slog(), ev.Message, "seq", ev.Seq, "progress", ev.Progress)
	}

	select {
	case r.ch <- ev:
	case <-r.abandoned:
	}
}

// Abandon tells the reporter the consumer has gone away. Pending and future
// events are dropped so producers never block.
func (r *Reporter) Abandon() {
	if r == nil {
		return
	}
	r.abandonMu.Do(func() { close(r.abandoned) })
}

// Close closes the event channel. Emitting after Close is a no-op.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.ch)
}

func (l Level) slog() slog.Level {
	switch l {
	case Warning:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
