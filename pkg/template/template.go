package template

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Type selects which scaffold Generate produces.
type Type string

const (
	TypeMCP     Type = "mcp"
	TypeTool    Type = "tool"
	TypeAgent   Type = "agent"
	TypeMinimal Type = "minimal"
	TypeBasic   Type = "basic"
	TypeConfig  Type = "config"
	TypeFull    Type = "full"
)

// ServiceTemplate is one [[services]] block. Field names match the config
// file schema so generated output loads back without edits.
type ServiceTemplate struct {
	Name               string   `toml:"name"`
	Kind               string   `toml:"kind"`
	BinaryPath         string   `toml:"binary_path"`
	Args               []string `toml:"args,omitempty"`
	Env                []string `toml:"env,omitempty"`
	WorkDir            string   `toml:"work_dir,omitempty"`
	Port               uint16   `toml:"port"`
	Enabled            bool     `toml:"enabled"`
	AutoRestart        bool     `toml:"auto_restart,omitempty"`
	HealthCheckTimeout string   `toml:"health_check_timeout,omitempty"`
	Probe              string   `toml:"probe,omitempty"`
	HealthPath         string   `toml:"health_path,omitempty"`
}

// FileTemplate is the scaffold for a whole config file. Service-only types
// fill just Services, so their output is a bare [[services]] block that can
// be appended to an existing file.
type FileTemplate struct {
	LogLevel string               `toml:"log_level,omitempty"`
	Store    *StoreSection        `toml:"store,omitempty"`
	History  *HistorySection      `toml:"history,omitempty"`
	Server   *ServerSection       `toml:"server,omitempty"`
	Engine   *EngineSection       `toml:"engine,omitempty"`
	Ports    map[string]PortRange `toml:"ports,omitempty"`
	Services []ServiceTemplate    `toml:"services,omitempty"`
}

// StoreSection selects the service-state backend.
type StoreSection struct {
	DSN string `toml:"dsn"`
}

// HistorySection wires durable event sinks.
type HistorySection struct {
	Enabled bool     `toml:"enabled"`
	DSNs    []string `toml:"dsns,omitempty"`
}

// ServerSection describes the admin API listener.
type ServerSection struct {
	Listen   string `toml:"listen"`
	BasePath string `toml:"base_path,omitempty"`
}

// EngineSection tunes the background loops.
type EngineSection struct {
	HealthInterval    string `toml:"health_interval"`
	ReconcileInterval string `toml:"reconcile_interval"`
	StopGrace         string `toml:"stop_grace,omitempty"`
}

// PortRange is an inclusive port window for one service kind.
type PortRange struct {
	Low  uint16 `toml:"low"`
	High uint16 `toml:"high"`
}

// Generator provides config scaffold generation for the CLI.
type Generator struct{}

// NewGenerator creates a new template generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a scaffold for the given type and service name.
func (g *Generator) Generate(templateType Type, name string) (*FileTemplate, error) {
	switch templateType {
	case TypeMCP, TypeTool:
		return &FileTemplate{Services: []ServiceTemplate{g.mcpService(name)}}, nil
	case TypeAgent:
		return &FileTemplate{Services: []ServiceTemplate{g.agentService(name)}}, nil
	case TypeMinimal, TypeBasic:
		return &FileTemplate{Services: []ServiceTemplate{g.minimalService(name)}}, nil
	case TypeConfig, TypeFull:
		return g.fullConfig(name), nil
	default:
		return nil, fmt.Errorf("unknown template type: %s (supported: mcp, agent, minimal, config)", templateType)
	}
}

// GenerateTOML renders the scaffold as a TOML document.
func (g *Generator) GenerateTOML(templateType Type, name string) ([]byte, error) {
	tpl, err := g.Generate(templateType, name)
	if err != nil {
		return nil, err
	}
	out, err := toml.Marshal(tpl)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return out, nil
}

// GetSupportedTypes returns the primary template types.
func (g *Generator) GetSupportedTypes() []string {
	return []string{
		string(TypeMCP),
		string(TypeAgent),
		string(TypeMinimal),
		string(TypeConfig),
	}
}

func (g *Generator) mcpService(name string) ServiceTemplate {
	return ServiceTemplate{
		Name:               name,
		Kind:               "mcp",
		BinaryPath:         "/usr/local/bin/" + name,
		Args:               []string{"--port", "5100"},
		Env:                []string{"LOG_LEVEL=info"},
		Port:               5100,
		Enabled:            true,
		AutoRestart:        true,
		HealthCheckTimeout: "3s",
		Probe:              "mcp",
	}
}

func (g *Generator) agentService(name string) ServiceTemplate {
	return ServiceTemplate{
		Name:               name,
		Kind:               "agent",
		BinaryPath:         "/usr/local/bin/" + name,
		Args:               []string{"--port", "9100"},
		Env:                []string{"LOG_LEVEL=info"},
		Port:               9100,
		Enabled:            true,
		AutoRestart:        true,
		HealthCheckTimeout: "3s",
		Probe:              "http",
		HealthPath:         "/health",
	}
}

func (g *Generator) minimalService(name string) ServiceTemplate {
	return ServiceTemplate{
		Name:       name,
		Kind:       "mcp",
		BinaryPath: "/usr/local/bin/" + name,
		Port:       5100,
		Enabled:    true,
	}
}

func (g *Generator) fullConfig(name string) *FileTemplate {
	return &FileTemplate{
		LogLevel: "info",
		Store:    &StoreSection{DSN: "sqlite://steward.db"},
		History: &HistorySection{
			Enabled: false,
			DSNs:    []string{"sqlite://history.db"},
		},
		Server: &ServerSection{Listen: "127.0.0.1:8080"},
		Engine: &EngineSection{
			HealthInterval:    "30s",
			ReconcileInterval: "60s",
			StopGrace:         "5s",
		},
		Ports: map[string]PortRange{
			"mcp":   {Low: 5000, High: 5999},
			"agent": {Low: 9000, High: 9999},
		},
		Services: []ServiceTemplate{
			g.mcpService("mcp-" + name),
			g.agentService("agent-" + name),
		},
	}
}
