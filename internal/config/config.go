package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/steward/internal/logger"
	"github.com/loykin/steward/internal/portalloc"
	"github.com/loykin/steward/internal/service"
	"github.com/spf13/viper"
)

// FileConfig represents the top-level TOML structure as written on disk.
// Load resolves it into a Config; the raw form is exported so hosts can
// compose their own resolution when they embed the engine.

type FileConfig struct {
	Env      []string `toml:"env" mapstructure:"env"`
	EnvFiles []string `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool     `toml:"use_os_env" mapstructure:"use_os_env"`
	LogLevel string   `toml:"log_level" mapstructure:"log_level"`

	Log      *logger.Config             `toml:"log" mapstructure:"log"`
	Store    *StoreConfig               `toml:"store" mapstructure:"store"`
	History  *HistoryConfig             `toml:"history" mapstructure:"history"`
	Server   *ServerConfig              `toml:"server" mapstructure:"server"`
	Engine   *EngineConfig              `toml:"engine" mapstructure:"engine"`
	Ports    map[string]portalloc.Range `toml:"ports" mapstructure:"ports"`
	Services []service.Config           `toml:"services" mapstructure:"services"`
}

// StoreConfig selects the service-state backend by DSN. Supported schemes
// are listed on store/factory.NewFromDSN.
type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// HistoryConfig wires the durable event journal. Each DSN becomes one sink;
// see history/factory.NewSinkFromDSN for the supported schemes.
type HistoryConfig struct {
	Enabled bool          `toml:"enabled" mapstructure:"enabled"`
	DSNs    []string      `toml:"dsns" mapstructure:"dsns"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// ServerConfig describes the admin API listener.
type ServerConfig struct {
	Listen        string     `toml:"listen" mapstructure:"listen"`
	BasePath      string     `toml:"base_path" mapstructure:"base_path"`
	PidFile       string     `toml:"pidfile" mapstructure:"pidfile"`
	LogFile       string     `toml:"logfile" mapstructure:"logfile"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig enables HTTPS for the admin API, either from explicit cert/key
// files or from a directory that may be auto-populated with a self-signed
// certificate.
type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

// AutoGenTLS tunes self-signed certificate generation.
type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

// EngineConfig tunes lifecycle transitions and the background loops. Zero
// values fall back to the engine's own defaults.
type EngineConfig struct {
	StopGrace         time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	Settle            time.Duration `toml:"settle" mapstructure:"settle"`
	RequestTimeout    time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`
	HealthInterval    time.Duration `toml:"health_interval" mapstructure:"health_interval"`
	ReconcileInterval time.Duration `toml:"reconcile_interval" mapstructure:"reconcile_interval"`
	ProbeHost         string        `toml:"probe_host" mapstructure:"probe_host"`
	FreeAttempts      int           `toml:"free_attempts" mapstructure:"free_attempts"`
	FreeInterval      time.Duration `toml:"free_interval" mapstructure:"free_interval"`
}

// Config is the resolved configuration the daemon runs with: environment
// merged, log policy folded into each service, port ranges keyed by kind,
// and every service defaulted and validated.
type Config struct {
	LogLevel  string
	GlobalEnv []string
	Store     *StoreConfig
	History   *HistoryConfig
	Server    *ServerConfig
	Engine    EngineConfig
	Log       logger.Config
	Ranges    map[service.Kind]portalloc.Range
	Services  []service.Config
}

// Load reads and resolves a TOML config file.
func Load(path string) (*Config, error) {
	fc, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	genv, err := resolveGlobalEnv(fc)
	if err != nil {
		return nil, err
	}
	ranges, err := resolveRanges(fc.Ports)
	if err != nil {
		return nil, err
	}
	svcs, err := resolveServices(fc, genv)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		LogLevel:  fc.LogLevel,
		GlobalEnv: genv,
		Store:     fc.Store,
		History:   fc.History,
		Server:    fc.Server,
		Ranges:    ranges,
		Services:  svcs,
	}
	if fc.Engine != nil {
		cfg.Engine = *fc.Engine
	}
	if fc.Log != nil {
		cfg.Log = *fc.Log
	}
	return cfg, nil
}

// LoadServices parses only the [[services]] list, with global env and log
// policy applied exactly as Load does.
func LoadServices(path string) ([]service.Config, error) {
	fc, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	genv, err := resolveGlobalEnv(fc)
	if err != nil {
		return nil, err
	}
	return resolveServices(fc, genv)
}

// LoadGlobalEnv merges env from config: top-level env, env_files contents,
// and optionally OS env when use_os_env is true. Precedence: OS env (when
// enabled) provides the base; then file vars; then the top-level env list
// overrides last.
func LoadGlobalEnv(path string) ([]string, error) {
	fc, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	return resolveGlobalEnv(fc)
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE"
// entries.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

func parseFile(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

func resolveGlobalEnv(fc *FileConfig) ([]string, error) {
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}

func resolveRanges(in map[string]portalloc.Range) (map[service.Kind]portalloc.Range, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[service.Kind]portalloc.Range, len(in))
	for k, r := range in {
		kind, err := service.ParseKind(k)
		if err != nil {
			return nil, fmt.Errorf("port range: %w", err)
		}
		out[kind] = r
	}
	return out, nil
}

// resolveServices folds the top-level log policy into each service, prepends
// the global environment (later entries win, so per-service values override
// global ones), applies defaults, and validates.
func resolveServices(fc *FileConfig, genv []string) ([]service.Config, error) {
	var base logger.Config
	if fc.Log != nil {
		base = *fc.Log
	}
	seen := make(map[string]struct{}, len(fc.Services))
	out := make([]service.Config, 0, len(fc.Services))
	for i := range fc.Services {
		sc := fc.Services[i]
		sc.Log = sc.Log.Merged(base)
		if len(genv) > 0 {
			sc.Env = append(append(make([]string, 0, len(genv)+len(sc.Env)), genv...), sc.Env...)
		}
		sc.ApplyDefaults()
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[sc.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %s", sc.Name)
		}
		seen[sc.Name] = struct{}{}
		out = append(out, sc)
	}
	return out, nil
}
