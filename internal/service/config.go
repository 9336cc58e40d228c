package service

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/loykin/steward/internal/logger"
)

// Probe selects the protocol handshake used after the TCP connect succeeds.
const (
	ProbeAuto = ""     // pick by kind: mcp -> ProbeMCP, agent -> ProbeHTTP
	ProbeTCP  = "tcp"  // TCP connect only, no handshake
	ProbeMCP  = "mcp"  // one JSON-RPC tools/list round trip
	ProbeHTTP = "http" // GET HealthPath, expect 2xx
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// IsSafeName reports whether a service name is acceptable as a map key, a
// path component for log files, and an API parameter.
func IsSafeName(s string) bool { return nameRE.MatchString(s) }

// Config describes one managed service. Loaded once from configuration and
// immutable at runtime; lifecycle state lives in Record, never here.
type Config struct {
	Name               string        `json:"name" mapstructure:"name"`
	Kind               Kind          `json:"kind" mapstructure:"kind"`
	BinaryPath         string        `json:"binary_path" mapstructure:"binary_path"`
	Args               []string      `json:"args" mapstructure:"args"`
	Env                []string      `json:"env" mapstructure:"env"`
	WorkDir            string        `json:"work_dir" mapstructure:"work_dir"`
	Port               uint16        `json:"port" mapstructure:"port"`
	Enabled            bool          `json:"enabled" mapstructure:"enabled"`
	AutoRestart        bool          `json:"auto_restart" mapstructure:"auto_restart"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout" mapstructure:"health_check_timeout"`
	Probe              string        `json:"probe" mapstructure:"probe"`
	HealthPath         string        `json:"health_path" mapstructure:"health_path"`
	// OAuthRequired is carried through to status output for hosts that manage
	// credentials; the engine itself never interprets it.
	OAuthRequired bool          `json:"oauth_required" mapstructure:"oauth_required"`
	Log           logger.Config `json:"log" mapstructure:"log"`
}

// ApplyDefaults fills the optional knobs a config file may omit.
func (c *Config) ApplyDefaults() {
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = 3 * time.Second
	}
	if c.HealthPath == "" {
		c.HealthPath = "/health"
	}
}

// Validate checks the static fields. It does not touch the filesystem or the
// network; existence of the binary is checked by Validate on the orchestrator
// so that config loading stays side-effect free.
func (c *Config) Validate() error {
	if !IsSafeName(c.Name) {
		return fmt.Errorf("invalid service name %q", c.Name)
	}
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return fmt.Errorf("service %s: %w", c.Name, err)
	}
	if c.BinaryPath == "" {
		return fmt.Errorf("service %s: binary_path is required", c.Name)
	}
	if !filepath.IsAbs(c.BinaryPath) {
		return fmt.Errorf("service %s: binary_path must be absolute, got %q", c.Name, c.BinaryPath)
	}
	if c.Port == 0 {
		return fmt.Errorf("service %s: port is required", c.Name)
	}
	switch c.Probe {
	case ProbeAuto, ProbeTCP, ProbeMCP, ProbeHTTP:
	default:
		return fmt.Errorf("service %s: unknown probe %q", c.Name, c.Probe)
	}
	return nil
}

// EffectiveProbe resolves ProbeAuto to the handshake implied by the kind.
func (c *Config) EffectiveProbe() string {
	if c.Probe != ProbeAuto {
		return c.Probe
	}
	switch c.Kind {
	case KindMCP:
		return ProbeMCP
	case KindAgent:
		return ProbeHTTP
	}
	return ProbeTCP
}

// NewRecord returns the initial row persisted for this config at
// registration time.
func (c *Config) NewRecord() Record {
	return Record{
		Name:      c.Name,
		Kind:      c.Kind,
		Port:      c.Port,
		Status:    StatusStopped,
		UpdatedAt: time.Now(),
	}
}
