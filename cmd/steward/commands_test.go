package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// deadDaemonURL points at a port nothing listens on.
const deadDaemonURL = "http://127.0.0.1:1"

// newFakeDaemon serves just enough of the admin API for command tests.
func newFakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		rec := map[string]any{
			"name": "mcp-search", "kind": "mcp", "port": 5101,
			"status": "running", "updated_at": time.Now().UTC(),
		}
		if r.URL.Query().Get("name") != "" {
			_ = json.NewEncoder(w).Encode(rec)
			return
		}
		_ = json.NewEncoder(w).Encode([]any{rec})
	})
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "healthy", "latency_ms": 3, "tools_available": 2})
	})
	mux.HandleFunc("/api/validate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": true})
	})
	for _, p := range []string{"/api/start", "/api/stop", "/api/restart", "/api/cleanup", "/api/start-all", "/api/stop-all", "/api/reconcile"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{}"))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCommandsRequireReachableDaemon(t *testing.T) {
	c := command{}
	timeout := 500 * time.Millisecond
	cases := []struct {
		name string
		run  func() error
	}{
		{"start", func() error { return c.Start(ServiceFlags{Name: "x", APIUrl: deadDaemonURL, APITimeout: timeout}) }},
		{"stop", func() error { return c.Stop(ServiceFlags{Name: "x", APIUrl: deadDaemonURL, APITimeout: timeout}) }},
		{"restart", func() error { return c.Restart(ServiceFlags{Name: "x", APIUrl: deadDaemonURL, APITimeout: timeout}) }},
		{"status", func() error { return c.Status(StatusFlags{APIUrl: deadDaemonURL, APITimeout: timeout}) }},
		{"health", func() error { return c.Health(ServiceFlags{Name: "x", APIUrl: deadDaemonURL, APITimeout: timeout}) }},
		{"validate", func() error { return c.Validate(ServiceFlags{Name: "x", APIUrl: deadDaemonURL, APITimeout: timeout}) }},
		{"cleanup", func() error { return c.Cleanup(ServiceFlags{Name: "x", APIUrl: deadDaemonURL, APITimeout: timeout}) }},
		{"start-all", func() error { return c.StartAll(BulkFlags{APIUrl: deadDaemonURL, APITimeout: timeout}) }},
		{"stop-all", func() error { return c.StopAll(BulkFlags{APIUrl: deadDaemonURL, APITimeout: timeout}) }},
		{"reconcile", func() error { return c.Reconcile(ReconcileFlags{APIUrl: deadDaemonURL, APITimeout: timeout}) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if err == nil || !strings.Contains(err.Error(), "daemon not reachable") {
				t.Fatalf("expected daemon not reachable error, got %v", err)
			}
		})
	}
}

func TestCommandsRequireName(t *testing.T) {
	srv := newFakeDaemon(t)
	c := command{}
	cases := []struct {
		name string
		run  func() error
	}{
		{"start", func() error { return c.Start(ServiceFlags{APIUrl: srv.URL}) }},
		{"stop", func() error { return c.Stop(ServiceFlags{APIUrl: srv.URL}) }},
		{"restart", func() error { return c.Restart(ServiceFlags{APIUrl: srv.URL}) }},
		{"health", func() error { return c.Health(ServiceFlags{APIUrl: srv.URL}) }},
		{"validate", func() error { return c.Validate(ServiceFlags{APIUrl: srv.URL}) }},
		{"cleanup", func() error { return c.Cleanup(ServiceFlags{APIUrl: srv.URL}) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if err == nil || !strings.Contains(err.Error(), "service name is required") {
				t.Fatalf("expected missing name error, got %v", err)
			}
		})
	}
}

func TestCommandsAgainstFakeDaemon(t *testing.T) {
	srv := newFakeDaemon(t)
	c := command{}
	f := ServiceFlags{Name: "mcp-search", APIUrl: srv.URL}

	if err := c.Start(f); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(f); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Restart(f); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := c.Health(f); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := c.Validate(f); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := c.Cleanup(f); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if err := c.Status(StatusFlags{APIUrl: srv.URL}); err != nil {
		t.Fatalf("status listing: %v", err)
	}
	if err := c.Status(StatusFlags{Name: "mcp-search", APIUrl: srv.URL}); err != nil {
		t.Fatalf("status single: %v", err)
	}
	if err := c.StartAll(BulkFlags{Kind: "mcp", APIUrl: srv.URL}); err != nil {
		t.Fatalf("start-all: %v", err)
	}
	if err := c.StopAll(BulkFlags{APIUrl: srv.URL}); err != nil {
		t.Fatalf("stop-all: %v", err)
	}
	if err := c.Reconcile(ReconcileFlags{APIUrl: srv.URL}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
}
