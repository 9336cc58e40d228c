package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildRootSubcommands(t *testing.T) {
	root := buildRoot()
	if root.Use != "steward" {
		t.Fatalf("unexpected root use: %q", root.Use)
	}

	got := make(map[string]bool)
	for _, sub := range root.Commands() {
		got[sub.Name()] = true
	}
	want := []string{
		"start", "stop", "restart", "status", "health", "validate",
		"cleanup", "start-all", "stop-all", "reconcile", "serve", "template",
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestRootHasConfigFlag(t *testing.T) {
	root := buildRoot()
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatal("expected persistent --config flag")
	}
}

func TestServeCommandFlags(t *testing.T) {
	root := buildRoot()
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("find serve: %v", err)
	}
	for _, name := range []string{"daemonize", "pidfile", "logfile"} {
		if serve.Flags().Lookup(name) == nil {
			t.Errorf("serve is missing --%s flag", name)
		}
	}
}

func TestRunServeCommandRequiresConfig(t *testing.T) {
	err := runServeCommand(&ServeFlags{}, nil)
	if err == nil || !strings.Contains(err.Error(), "config file required") {
		t.Fatalf("expected config required error, got %v", err)
	}
}

func TestRunServeCommandMissingFile(t *testing.T) {
	err := runServeCommand(&ServeFlags{ConfigPath: filepath.Join(t.TempDir(), "nope.toml")}, nil)
	if err == nil || !strings.Contains(err.Error(), "error loading config") {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestRunServeCommandRequiresServerSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[store]\ndsn = \"memory://\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	err := runServeCommand(&ServeFlags{ConfigPath: path}, nil)
	if err == nil || !strings.Contains(err.Error(), "server must be configured") {
		t.Fatalf("expected server required error, got %v", err)
	}
}

func TestRunServeCommandArgOverridesFlag(t *testing.T) {
	// The positional config path wins over --config; a missing positional
	// file must fail even when the flag points at a good one.
	good := filepath.Join(t.TempDir(), "good.toml")
	if err := os.WriteFile(good, []byte("[store]\ndsn = \"memory://\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(t.TempDir(), "missing.toml")

	err := runServeCommand(&ServeFlags{ConfigPath: good}, []string{bad})
	if err == nil || !strings.Contains(err.Error(), "error loading config") {
		t.Fatalf("expected load error for positional path, got %v", err)
	}
}
