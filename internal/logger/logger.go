// Package logger holds the slog setup for the engine itself and the rotating
// file sinks managed children write their stdout/stderr into.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes where a managed service's output goes. When StdoutPath or
// StderrPath are empty and Dir is set, files default to Dir/<name>.stdout.log
// and Dir/<name>.stderr.log. Rotation follows lumberjack semantics. A zero
// Config discards child output.
type Config struct {
	Dir        string `json:"dir" toml:"dir" mapstructure:"dir"`
	StdoutPath string `json:"stdout" toml:"stdout" mapstructure:"stdout"`
	StderrPath string `json:"stderr" toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `json:"max_size_mb" toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" toml:"compress" mapstructure:"compress"`
}

// Merged overlays c on top of base: any destination or rotation knob unset in
// c falls back to base. Used to combine engine-wide log policy with a
// per-service override.
func (c Config) Merged(base Config) Config {
	out := c
	if out.Dir == "" {
		out.Dir = base.Dir
	}
	if out.StdoutPath == "" {
		out.StdoutPath = base.StdoutPath
	}
	if out.StderrPath == "" {
		out.StderrPath = base.StderrPath
	}
	if out.MaxSizeMB <= 0 {
		out.MaxSizeMB = base.MaxSizeMB
	}
	if out.MaxBackups <= 0 {
		out.MaxBackups = base.MaxBackups
	}
	if out.MaxAgeDays <= 0 {
		out.MaxAgeDays = base.MaxAgeDays
	}
	if !out.Compress {
		out.Compress = base.Compress
	}
	return out
}

// Writers returns the stdout and stderr sinks for the named service. Either
// writer may be nil, meaning the stream should be discarded.
func (c Config) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.Dir != "" {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	return c.rotating(stdout), c.rotating(stderr), nil
}

func (c Config) rotating(path string) io.WriteCloser {
	if path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs the process-wide slog default used by the daemon and CLI.
// Library embedders are expected to configure slog themselves.
func Setup(level string, color bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if color {
		h = NewColorHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}
