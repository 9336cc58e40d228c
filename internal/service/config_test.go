package service

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Name:       "mcp-search",
		Kind:       KindMCP,
		BinaryPath: "/usr/local/bin/mcp-search",
		Port:       5101,
	}
}

func TestValidateAcceptsBothKinds(t *testing.T) {
	for _, k := range []Kind{KindMCP, KindAgent} {
		c := validConfig()
		c.Kind = k
		if err := c.Validate(); err != nil {
			t.Fatalf("kind %s rejected: %v", k, err)
		}
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty name", func(c *Config) { c.Name = "" }, "invalid service name"},
		{"slash in name", func(c *Config) { c.Name = "a/b" }, "invalid service name"},
		{"name too long", func(c *Config) { c.Name = strings.Repeat("x", 65) }, "invalid service name"},
		{"unknown kind", func(c *Config) { c.Kind = "cron" }, "unknown service kind"},
		{"missing binary", func(c *Config) { c.BinaryPath = "" }, "binary_path is required"},
		{"relative binary", func(c *Config) { c.BinaryPath = "bin/tool" }, "must be absolute"},
		{"zero port", func(c *Config) { c.Port = 0 }, "port is required"},
		{"unknown probe", func(c *Config) { c.Probe = "icmp" }, "unknown probe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	c := validConfig()
	c.ApplyDefaults()
	if c.HealthCheckTimeout != 3*time.Second {
		t.Fatalf("timeout default: %v", c.HealthCheckTimeout)
	}
	if c.HealthPath != "/health" {
		t.Fatalf("health path default: %q", c.HealthPath)
	}

	// explicit values survive
	c.HealthCheckTimeout = 10 * time.Second
	c.HealthPath = "/status"
	c.ApplyDefaults()
	if c.HealthCheckTimeout != 10*time.Second || c.HealthPath != "/status" {
		t.Fatalf("explicit values clobbered: %v %q", c.HealthCheckTimeout, c.HealthPath)
	}
}

func TestEffectiveProbe(t *testing.T) {
	c := validConfig()

	c.Kind, c.Probe = KindMCP, ProbeAuto
	if got := c.EffectiveProbe(); got != ProbeMCP {
		t.Fatalf("mcp auto probe: %q", got)
	}
	c.Kind = KindAgent
	if got := c.EffectiveProbe(); got != ProbeHTTP {
		t.Fatalf("agent auto probe: %q", got)
	}
	c.Probe = ProbeTCP
	if got := c.EffectiveProbe(); got != ProbeTCP {
		t.Fatalf("explicit probe overridden: %q", got)
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"mcp", "agent"} {
		if _, err := ParseKind(s); err != nil {
			t.Fatalf("ParseKind(%q): %v", s, err)
		}
	}
	if _, err := ParseKind("worker"); err == nil {
		t.Fatal("ParseKind accepted unknown kind")
	}
}

func TestParseStatusCoversAll(t *testing.T) {
	for _, s := range Statuses() {
		got, err := ParseStatus(string(s))
		if err != nil || got != s {
			t.Fatalf("ParseStatus(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := ParseStatus("zombie"); err == nil {
		t.Fatal("ParseStatus accepted unknown status")
	}
}

func TestIsSafeName(t *testing.T) {
	for _, ok := range []string{"a", "mcp-search", "agent_v2", "x.y", "A9"} {
		if !IsSafeName(ok) {
			t.Fatalf("%q should be safe", ok)
		}
	}
	for _, bad := range []string{"", " ", "a b", "a/b", "../etc", "na\nme", strings.Repeat("n", 65)} {
		if IsSafeName(bad) {
			t.Fatalf("%q should be rejected", bad)
		}
	}
}

func TestNewRecord(t *testing.T) {
	c := validConfig()
	before := time.Now()
	r := c.NewRecord()
	if r.Name != c.Name || r.Kind != c.Kind || r.Port != c.Port {
		t.Fatalf("record fields: %+v", r)
	}
	if r.Status != StatusStopped {
		t.Fatalf("initial status: %q", r.Status)
	}
	if r.PID != nil || r.HasPID() {
		t.Fatalf("fresh record must not carry a pid: %+v", r)
	}
	if r.UpdatedAt.Before(before) {
		t.Fatalf("UpdatedAt not set: %v", r.UpdatedAt)
	}
}

func TestHasPID(t *testing.T) {
	r := Record{}
	if r.HasPID() {
		t.Fatal("nil pid reported as present")
	}
	zero := 0
	r.PID = &zero
	if r.HasPID() {
		t.Fatal("pid 0 reported as present")
	}
	pid := 4242
	r.PID = &pid
	if !r.HasPID() {
		t.Fatal("positive pid not reported")
	}
}
