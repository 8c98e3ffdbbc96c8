// Package logging builds the slog loggers used by vacc: a text handler on
// the terminal, an optional systemd journal sink, and per-run process log
// files, combined with slog-multi.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options configures New.
type Options struct {
	// Writer receives text-formatted records. Defaults to os.Stderr.
	Writer io.Writer

	// Verbose lowers the level from info to debug.
	Verbose bool

	// Journal adds a systemd journal sink.
	Journal bool
}

// New returns a logger fanning out to the configured sinks.
//
// A journal that cannot be opened is reported as a warning on the terminal
// handler and skipped.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	terminal := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	handlers := []slog.Handler{terminal}

	if opts.Journal {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			ReplaceGroup: func(key string) string {
				return journalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = journalKey(a.Key)
				return a
			},
		})
		if err != nil {
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
			record.Add("error", err)
			_ = terminal.Handle(context.Background(), record)
		} else {
			handlers = append(handlers, journal)
		}
	}

	if len(handlers) == 1 {
		return slog.New(terminal)
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// journalKey maps an attribute key to the journal field alphabet.
func journalKey(key string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(key))
}

// ProcessLog is a log file that mirrors a base logger.
type ProcessLog struct {
	*slog.Logger
	file *os.File
}

// OpenProcessLog creates path and returns a logger that writes every record
// to base and, as JSON at debug level, to the file.
func OpenProcessLog(base *slog.Logger, path string) (*ProcessLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open process log: %w", err)
	}
	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	if base == nil {
		base = slog.Default()
	}
	return &ProcessLog{
		Logger: slog.New(slogmulti.Fanout(base.Handler(), file)),
		file:   f,
	}, nil
}

// Path returns the file name of the log.
func (p *ProcessLog) Path() string { return p.file.Name() }

// Close flushes and closes the file.
func (p *ProcessLog) Close() error {
	if err := p.file.Sync(); err != nil {
		p.file.Close()
		return fmt.Errorf("sync process log: %w", err)
	}
	return p.file.Close()
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
