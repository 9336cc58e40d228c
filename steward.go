// Package steward supervises the child services of an agent platform: MCP
// tool servers and agent servers, each bound to a port from its kind's range
// and tracked as a row in a store. The engine starts, stops, and restarts
// services, classifies their health, and periodically reconciles stored
// state against OS reality without killing anything it did not start.
package steward

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cfg "github.com/loykin/steward/internal/config"
	"github.com/loykin/steward/internal/env"
	"github.com/loykin/steward/internal/event"
	"github.com/loykin/steward/internal/health"
	"github.com/loykin/steward/internal/history"
	historyfactory "github.com/loykin/steward/internal/history/factory"
	"github.com/loykin/steward/internal/lifecycle"
	"github.com/loykin/steward/internal/logger"
	"github.com/loykin/steward/internal/metrics"
	"github.com/loykin/steward/internal/network"
	"github.com/loykin/steward/internal/orchestrator"
	"github.com/loykin/steward/internal/portalloc"
	"github.com/loykin/steward/internal/process"
	iserver "github.com/loykin/steward/internal/server"
	"github.com/loykin/steward/internal/service"
	"github.com/loykin/steward/internal/store"
	storefactory "github.com/loykin/steward/internal/store/factory"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type ServiceConfig = service.Config

type ServiceRecord = service.Record

type Kind = service.Kind

type ServiceStatus = service.Status

type HealthResult = health.Result

type HealthStatus = health.Status

type Config = cfg.Config

type StoreConfig = cfg.StoreConfig

type ServerConfig = cfg.ServerConfig

type EngineConfig = cfg.EngineConfig

type HistoryConfig = cfg.HistoryConfig

type HistorySink = history.Sink

type PortRange = portalloc.Range

type LogConfig = logger.Config

const (
	KindMCP   = service.KindMCP
	KindAgent = service.KindAgent
)

const (
	StatusStarting = service.StatusStarting
	StatusRunning  = service.StatusRunning
	StatusStopped  = service.StatusStopped
	StatusCrashed  = service.StatusCrashed
	StatusOrphaned = service.StatusOrphaned
)

const (
	StatusHealthy   = health.StatusHealthy
	StatusDegraded  = health.StatusDegraded
	StatusUnhealthy = health.StatusUnhealthy
)

const (
	ProbeAuto = service.ProbeAuto
	ProbeTCP  = service.ProbeTCP
	ProbeMCP  = service.ProbeMCP
	ProbeHTTP = service.ProbeHTTP
)

// Event surface, for Subscribe consumers and custom sinks.

type Event = event.Event

type EventHandler = event.Handler

type (
	ServiceStartRequested   = event.ServiceStartRequested
	ServiceStarted          = event.ServiceStarted
	ServiceFailed           = event.ServiceFailed
	ServiceStopped          = event.ServiceStopped
	ServiceRestartRequested = event.ServiceRestartRequested
	HealthCheckFailed       = event.HealthCheckFailed
)

// Engine is a thin facade over the internal orchestrator plus the resources
// it runs on (store, history sinks). It provides a stable public API for
// embedding.
type Engine struct {
	orc  *orchestrator.Orchestrator
	st   store.Store
	hist *history.Handler
}

// New returns an engine backed by the in-memory store and the default port
// ranges, for embedding and quick starts. Persistent setups go through
// LoadConfig and NewEngine.
func New() *Engine {
	eng, err := NewEngine(context.Background(), &Config{})
	if err != nil {
		panic(err)
	}
	return eng
}

// NewEngine wires a full engine from a resolved configuration: the store
// from its DSN (in-memory when unset), port ranges, the event bus with the
// monitoring and lifecycle handlers, optional history sinks, and every
// configured service registered.
func NewEngine(ctx context.Context, c *Config) (*Engine, error) {
	dsn := "memory://"
	if c.Store != nil && c.Store.DSN != "" {
		dsn = c.Store.DSN
	}
	st, err := storefactory.NewFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}

	ports, err := portalloc.New(c.Ranges)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ev := env.New()
	ev.SetGlobal(c.GlobalEnv)
	osm := process.NewManager(ev)
	netm := network.NewManager(osm)
	hc := health.NewChecker(osm, netm, c.Engine.ProbeHost)
	bus := event.NewBus()
	lc := lifecycle.New(osm, netm, st, hc, bus, lifecycle.Options{
		StopGrace:    c.Engine.StopGrace,
		Settle:       c.Engine.Settle,
		FreeAttempts: c.Engine.FreeAttempts,
		FreeInterval: c.Engine.FreeInterval,
	})
	orc := orchestrator.New(osm, lc, st, ports, bus, orchestrator.Options{
		StopGrace:      c.Engine.StopGrace,
		RequestTimeout: c.Engine.RequestTimeout,
	})
	eng := &Engine{orc: orc, st: st}

	if c.History != nil && c.History.Enabled {
		sinks := make([]HistorySink, 0, len(c.History.DSNs))
		for _, hd := range c.History.DSNs {
			s, serr := historyfactory.NewSinkFromDSN(hd)
			if serr != nil {
				_ = eng.Close()
				return nil, fmt.Errorf("history sink: %w", serr)
			}
			sinks = append(sinks, s)
		}
		eng.hist = history.NewHandler(c.History.Timeout, sinks...)
		orc.Subscribe(eng.hist)
	}

	for i := range c.Services {
		if err := orc.Register(ctx, c.Services[i]); err != nil {
			_ = eng.Close()
			return nil, err
		}
	}
	return eng, nil
}

func (e *Engine) Register(ctx context.Context, sc ServiceConfig) error {
	return e.orc.Register(ctx, sc)
}

func (e *Engine) Start(ctx context.Context, name string) error   { return e.orc.Start(ctx, name) }
func (e *Engine) Stop(ctx context.Context, name string) error    { return e.orc.Stop(ctx, name) }
func (e *Engine) Restart(ctx context.Context, name string) error { return e.orc.Restart(ctx, name) }
func (e *Engine) HealthCheck(ctx context.Context, name string) (HealthResult, error) {
	return e.orc.HealthCheck(ctx, name)
}
func (e *Engine) CleanupOrphaned(ctx context.Context, name string) error {
	return e.orc.CleanupOrphaned(ctx, name)
}
func (e *Engine) Status(ctx context.Context, name string) (ServiceRecord, error) {
	return e.orc.Status(ctx, name)
}
func (e *Engine) StatusAll(ctx context.Context, kind *Kind) ([]ServiceRecord, error) {
	return e.orc.StatusAll(ctx, kind)
}
func (e *Engine) StartAll(ctx context.Context, kind *Kind) error { return e.orc.StartAll(ctx, kind) }
func (e *Engine) StopAll(ctx context.Context, kind *Kind) error  { return e.orc.StopAll(ctx, kind) }

func (e *Engine) Validate(name string) error { return e.orc.Validate(name) }
func (e *Engine) Subscribe(h EventHandler)   { e.orc.Subscribe(h) }

// RequestStart and RequestRestart are soft requests: they publish an event
// and return immediately, the lifecycle handler does the work.

func (e *Engine) RequestStart(name string)           { e.orc.RequestStart(name) }
func (e *Engine) RequestRestart(name, reason string) { e.orc.RequestRestart(name, reason) }

// Reconciler and health monitor loops

func (e *Engine) ReconcileOnce(ctx context.Context)      { e.orc.ReconcileOnce(ctx) }
func (e *Engine) StartReconciler(interval time.Duration) { e.orc.StartReconciler(interval) }
func (e *Engine) StopReconciler()                        { e.orc.StopReconciler() }

func (e *Engine) StartHealthMonitors(interval time.Duration) { e.orc.StartHealthMonitors(interval) }
func (e *Engine) StopHealthMonitors()                        { e.orc.StopHealthMonitors() }

// Close shuts the engine down: background loops stop, in-flight event
// reactions drain, then history sinks and the store are released.
func (e *Engine) Close() error {
	e.orc.Shutdown()
	var errs []error
	if e.hist != nil {
		errs = append(errs, e.hist.Close())
	}
	errs = append(errs, e.st.Close())
	return errors.Join(errs...)
}

// LoadConfig reads and resolves a TOML config file.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// LoadServices parses only the [[services]] list of a config file.
func LoadServices(path string) ([]ServiceConfig, error) { return cfg.LoadServices(path) }

// LoadGlobalEnv parses only the global env pairs of a config file.
func LoadGlobalEnv(path string) ([]string, error) { return cfg.LoadGlobalEnv(path) }

// NewHTTPServer starts an HTTP server exposing the admin API for the engine.
func NewHTTPServer(addr, basePath string, e *Engine) (*http.Server, error) {
	return iserver.NewServer(addr, basePath, e.orc)
}

// NewTLSServer starts an HTTPS server for the engine, configured from the
// server section (explicit certs, a cert directory, or auto-generation).
func NewTLSServer(sc ServerConfig, e *Engine) (*http.Server, error) {
	return iserver.NewTLSServer(sc, e.orc)
}

// APIHandler returns the admin API handler rooted at basePath, for embedders
// that mount it into their own HTTP application instead of running a
// dedicated listener.
func (e *Engine) APIHandler(basePath string) http.Handler {
	return iserver.NewRouter(e.orc, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler returns the /metrics handler over the default registry, for
// embedders that mount it on their own mux. The admin API server already
// serves it under its base path.
func MetricsHandler() http.Handler { return metrics.Handler() }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
