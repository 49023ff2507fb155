// Package snapshot saves page sources for post-mortem debugging.
package snapshot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Cryonoid/TwitLysis/internal/storage"
)

// Reason names why a snapshot was taken.
type Reason string

const (
	Timeout    Reason = "timeout"
	Challenge  Reason = "captcha"
	Redirect   Reason = "redirect"
	NoArticles Reason = "no_articles"
	FinalPage  Reason = "final_page"
)

const stampLayout = "20060102_150405"

// Saver persists a page source. Implementations must not fail the caller;
// errors are for logging only.
type Saver interface {
	Save(term string, attempt int, reason Reason, html string) (string, error)
}

// Writer writes snapshots as HTML files under Dir.
type Writer struct {
	Dir    string
	Now    func() time.Time
	Logger *slog.Logger
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{Dir: dir, Now: time.Now, Logger: logger}
}

// FileName returns the snapshot file name for the given run details.
func FileName(term string, attempt int, reason Reason, at time.Time) string {
	return fmt.Sprintf("debug_%s_%s_attempt%d_%s.html",
		reason, storage.FileStem(term), attempt, at.Format(stampLayout))
}

// Save writes html prefixed with a metadata comment and returns the path.
func (w *Writer) Save(term string, attempt int, reason Reason, html string) (string, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	at := now()

	if w.Dir != "" {
		if err := os.MkdirAll(w.Dir, 0o755); err != nil {
			return "", fmt.Errorf("snapshot: create dir: %w", err)
		}
	}
	path := filepath.Join(w.Dir, FileName(term, attempt, reason, at))
	if rel, err := filepath.Rel(filepath.Clean(w.Dir), path); err != nil || rel != filepath.Base(path) {
		return "", fmt.Errorf("snapshot: %s escapes %s", path, w.Dir)
	}

	meta := fmt.Sprintf("<!-- Debug Info: Search Term: %s, Attempt: %d, Reason: %s, Timestamp: %s -->\n",
		term, attempt, reason, at.Format(stampLayout))
	if err := os.WriteFile(path, []byte(meta+html), 0o644); err != nil {
		return "", fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	if w.Logger != nil {
		w.Logger.Debug("snapshot: saved", "path", path, "reason", reason)
	}
	return path, nil
}
