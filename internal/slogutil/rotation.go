package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
)

// LogFile is an append-only log that rolls over to path.1 .. path.<keep>
// once a write would take it past limit bytes. A zero limit never rolls.
type LogFile struct {
	mu      sync.Mutex
	path    string
	limit   int64
	keep    int
	f       *os.File
	written int64
}

// OpenLogFile opens path for appending, creating its directory.
func OpenLogFile(path string, limit int64, keep int) (*LogFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	l := &LogFile{path: path, limit: limit, keep: keep}
	if err := l.reopen(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LogFile) reopen() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f, l.written = f, st.Size()
	return nil
}

func (l *LogFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit > 0 && l.written > 0 && l.written+int64(len(p)) > l.limit {
		if err := l.roll(); err != nil && l.f == nil {
			return 0, err
		}
	}
	n, err := l.f.Write(p)
	l.written += int64(n)
	return n, err
}

func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// roll shifts backups up by one, dropping the oldest, and starts an empty
// file. If the current file cannot be closed it keeps appending to it.
func (l *LogFile) roll() error {
	if err := l.f.Close(); err != nil {
		return err
	}
	l.f = nil

	if l.keep > 0 {
		for i := l.keep; i > 1; i-- {
			// missing generations are expected while the log is young
			_ = os.Rename(l.generation(i-1), l.generation(i))
		}
		_ = os.Rename(l.path, l.generation(1))
	} else {
		_ = os.Remove(l.path)
	}
	return l.reopen()
}

func (l *LogFile) generation(n int) string {
	return fmt.Sprintf("%s.%d", l.path, n)
}

// ParseSize reads sizes such as "10MB" or "512 KiB". Invalid input yields 0.
func ParseSize(s string) int64 {
	n, err := humanize.ParseBytes(s)
	if s == "" || err != nil {
		return 0
	}
	return int64(n)
}

// NewRotatingLogger logs the line format to a LogFile. An empty or
// unparsable maxSize disables rolling.
func NewRotatingLogger(path string, level slog.Level, maxSize string, keep int) (*slog.Logger, io.Closer, error) {
	lf, err := OpenLogFile(path, ParseSize(maxSize), keep)
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(lf, level), lf, nil
}
