package config

import (
	"strings"
	"testing"
)

func TestLoadRejectsUnknownKind(t *testing.T) {
	p := writeConfig(t, `
[[services]]
name = "db"
kind = "database"
binary_path = "/usr/local/bin/db"
port = 5001
enabled = true
`)
	if _, err := LoadServices(p); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestLoadRejectsRelativeBinaryPath(t *testing.T) {
	p := writeConfig(t, `
[[services]]
name = "mcp-files"
kind = "mcp"
binary_path = "bin/mcp-files"
port = 5001
enabled = true
`)
	_, err := LoadServices(p)
	if err == nil || !strings.Contains(err.Error(), "binary_path") {
		t.Fatalf("expected binary_path error, got %v", err)
	}
}

func TestLoadRejectsUnknownProbe(t *testing.T) {
	p := writeConfig(t, `
[[services]]
name = "mcp-files"
kind = "mcp"
binary_path = "/usr/local/bin/mcp-files"
port = 5001
enabled = true
probe = "grpc"
`)
	_, err := LoadServices(p)
	if err == nil || !strings.Contains(err.Error(), "probe") {
		t.Fatalf("expected probe error, got %v", err)
	}
}

func TestLoadRejectsUnknownPortRangeKind(t *testing.T) {
	p := writeConfig(t, `
[ports.database]
low = 7000
high = 7999
`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for unknown port range kind")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load("/definitely/not/exist.toml"); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadEnvFileInvalidPath(t *testing.T) {
	if _, err := LoadEnvFile("/definitely/not/exist.env"); err == nil {
		t.Fatalf("expected error for missing env file")
	}
}

func TestLoadMissingEnvFileFailsLoad(t *testing.T) {
	p := writeConfig(t, `
env_files = ["/definitely/not/exist.env"]
`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error when a listed env file is missing")
	}
}
