package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for the supervisor's own log file.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Level names accepted by SlogConfig.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Output formats accepted by SlogConfig.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config combines structured logging with an optional rotated log file.
type Config struct {
	Slog SlogConfig
	File FileConfig
}

// SlogConfig controls the structured logger used by the supervisor itself.
type SlogConfig struct {
	Level      string
	Format     string
	Color      bool
	TimeStamps bool
	Source     bool
}

// FileConfig describes the rotated daemon log. An empty Path disables it and
// logs go to the configured writer only.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Writer returns a lumberjack writer for the file, or nil when Path is empty.
func (f FileConfig) Writer() io.WriteCloser {
	if f.Path == "" {
		return nil
	}
	_ = os.MkdirAll(filepath.Dir(f.Path), 0o750)
	return &lj.Logger{
		Filename:   f.Path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

// NewSlogger builds a logger writing to stderr, or to the rotated file when
// File.Path is set. Color is never applied to file output.
func (c Config) NewSlogger() *slog.Logger {
	if w := c.File.Writer(); w != nil {
		s := c.Slog
		s.Color = false
		return s.New(w)
	}
	return c.Slog.New(os.Stderr)
}

// New builds a logger for w.
func (s SlogConfig) New(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(s.Level), AddSource: s.Source}
	if !s.TimeStamps {
		opts.ReplaceAttr = dropTime
	}
	switch {
	case strings.EqualFold(s.Format, FormatJSON):
		return slog.New(slog.NewJSONHandler(w, opts))
	case s.Color:
		return slog.New(NewColorTextHandler(w, opts, s.TimeStamps))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}

// ParseLevel maps a level name to slog; unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "warning":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
