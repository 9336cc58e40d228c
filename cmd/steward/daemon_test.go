package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestWritePidFileRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	pidFile := filepath.Join(tempDir, "test_daemon.pid")

	err := writePidFile(pidFile, os.Getpid())
	if err != nil {
		t.Errorf("writePidFile failed: %v", err)
	}

	// Verify file exists and contains the PID
	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("PID file was not created: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("unexpected PID file content: %q", string(data))
	}

	// Overwrite replaces instead of appending
	if err := writePidFile(pidFile, 1); err != nil {
		t.Errorf("writePidFile overwrite failed: %v", err)
	}
	data, _ = os.ReadFile(pidFile)
	if string(data) != "1" {
		t.Errorf("expected overwritten PID file to read 1, got %q", string(data))
	}

	// Test PID file removal
	err = removePidFile(pidFile)
	if err != nil {
		t.Errorf("removePidFile failed: %v", err)
	}

	// Verify file is removed
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("PID file was not removed")
	}
}

func TestRemovePidFileEmptyPath(t *testing.T) {
	// Empty path is a no-op, not an error
	if err := removePidFile(""); err != nil {
		t.Errorf("removePidFile with empty path failed: %v", err)
	}
}

func TestServeFlags(t *testing.T) {
	// Test that ServeFlags struct has the expected fields
	flags := &ServeFlags{
		ConfigPath: "test.toml",
		Daemonize:  true,
		PidFile:    "/tmp/test.pid",
		LogFile:    "/tmp/test.log",
	}

	if flags.ConfigPath != "test.toml" {
		t.Errorf("Expected ConfigPath 'test.toml', got '%s'", flags.ConfigPath)
	}

	if !flags.Daemonize {
		t.Error("Expected Daemonize to be true")
	}

	if flags.PidFile != "/tmp/test.pid" {
		t.Errorf("Expected PidFile '/tmp/test.pid', got '%s'", flags.PidFile)
	}

	if flags.LogFile != "/tmp/test.log" {
		t.Errorf("Expected LogFile '/tmp/test.log', got '%s'", flags.LogFile)
	}
}
