package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const fileDateLayout = "2006-01-02"

// DailyWriter appends to <dir>/<prefix>-<YYYY-MM-DD>.log, switching files
// when the local date changes. Files older than the retention window are
// removed on every switch.
type DailyWriter struct {
	dir       string
	prefix    string
	retention int
	now       func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewDailyWriter creates a writer with the default file prefix.
func NewDailyWriter(dir string, retentionDays int) (*DailyWriter, error) {
	return NewDailyWriterWithPrefix(dir, defaultPrefix, retentionDays)
}

// NewDailyWriterWithPrefix creates a writer for prefix. A non-positive
// retention keeps seven days.
func NewDailyWriterWithPrefix(dir, prefix string, retentionDays int) (*DailyWriter, error) {
	return newDailyWriter(dir, prefix, retentionDays, time.Now)
}

func newDailyWriter(dir, prefix string, retentionDays int, now func() time.Time) (*DailyWriter, error) {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	w := &DailyWriter{dir: dir, prefix: prefix, retention: retentionDays, now: now}
	if err := w.switchTo(now()); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer.
func (w *DailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if now := w.now(); now.Format(fileDateLayout) != w.day || w.file == nil {
		if err := w.switchTo(now); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

// Path returns the file currently written to.
func (w *DailyWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pathFor(w.day)
}

// Close closes the current file.
func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *DailyWriter) pathFor(day string) string {
	return filepath.Join(w.dir, w.prefix+"-"+day+".log")
}

func (w *DailyWriter) switchTo(now time.Time) error {
	day := now.Format(fileDateLayout)
	file, err := os.OpenFile(w.pathFor(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	w.file, w.day = file, day
	w.prune(now)
	return nil
}

// prune removes this writer's files dated before the retention window.
func (w *DailyWriter) prune(now time.Time) {
	matches, err := filepath.Glob(filepath.Join(w.dir, w.prefix+"-*.log"))
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -w.retention).Format(fileDateLayout)
	for _, path := range matches {
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), w.prefix+"-"), ".log")
		if _, err := time.Parse(fileDateLayout, day); err != nil {
			continue
		}
		if day < cutoff {
			_ = os.Remove(path)
		}
	}
}
