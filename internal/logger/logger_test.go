package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestWritersWithDirOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	outW, errW, err := cfg.Writers("demo")
	if err != nil {
		t.Fatalf("Writers error: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when Dir is set")
	}
	_, _ = outW.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	closeIf(outW)
	closeIf(errW)
	for _, p := range []string{
		filepath.Join(dir, "demo.stdout.log"),
		filepath.Join(dir, "demo.stderr.log"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("log not created at %s: %v", p, err)
		}
	}
}

func TestWritersZeroConfigDiscards(t *testing.T) {
	var cfg Config
	outW, errW, err := cfg.Writers("demo")
	if err != nil {
		t.Fatalf("Writers error: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers for zero config, got %v %v", outW, errW)
	}
}

func TestMergedFallsBackToBase(t *testing.T) {
	base := Config{Dir: "/var/log/steward", MaxSizeMB: 50, Compress: true}
	svc := Config{StdoutPath: "/tmp/svc.out"}
	got := svc.Merged(base)
	if got.Dir != base.Dir {
		t.Fatalf("Dir not inherited: %q", got.Dir)
	}
	if got.StdoutPath != "/tmp/svc.out" {
		t.Fatalf("override lost: %q", got.StdoutPath)
	}
	if got.MaxSizeMB != 50 || !got.Compress {
		t.Fatalf("rotation knobs not inherited: %+v", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestColorHandlerPrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l.Warn("disk almost full")
	out := buf.String()
	if !strings.Contains(out, "\033[33mWARN\033[0m") {
		t.Fatalf("missing colored level prefix: %q", out)
	}
	if !strings.Contains(out, "disk almost full") {
		t.Fatalf("missing message: %q", out)
	}
}

func TestColorHandlerWithAttrsKeepsColor(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorHandler(&buf, nil)).With("service", "mcp-search")
	l.Error("spawn failed")
	out := buf.String()
	if !strings.Contains(out, "\033[31mERROR\033[0m") {
		t.Fatalf("WithAttrs lost color decoration: %q", out)
	}
	if !strings.Contains(out, "service=mcp-search") {
		t.Fatalf("attr missing: %q", out)
	}
}
