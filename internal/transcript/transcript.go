// Package transcript persists dictated text. In transcribe mode every final
// utterance is appended as one timestamped line; the file is the product,
// nothing is sent to the model.
package transcript

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultPath is used when no transcript file is configured.
const DefaultPath = "transcript.log"

// Config tunes the writer.
type Config struct {
	// Path is the transcript file. Empty means [DefaultPath].
	Path string
}

// Writer appends dictated lines to a file. Safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	now func() time.Time
}

// NewWriter opens (or creates) the transcript file for appending.
func NewWriter(cfg Config) (*Writer, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transcript: open %q: %w", path, err)
	}
	return &Writer{f: f, now: time.Now}, nil
}

// Append writes one dictated line with a wall-clock timestamp.
func (w *Writer) Append(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	line := fmt.Sprintf("[%s] %s\n", w.now().Format("2006-01-02 15:04:05"), text)
	if _, err := w.f.WriteString(line); err != nil {
		return fmt.Errorf("transcript: append: %w", err)
	}
	return nil
}

// Close flushes and closes the transcript file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
