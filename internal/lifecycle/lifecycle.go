// Package lifecycle implements the per-service state machine: idempotent
// start with adoption, no-op-safe stop, verified restart, and advisory
// health checks. It owns every pid/status write for a service; callers
// serialize operations per name (see orchestrator).
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/steward/internal/event"
	"github.com/loykin/steward/internal/health"
	"github.com/loykin/steward/internal/metrics"
	"github.com/loykin/steward/internal/network"
	"github.com/loykin/steward/internal/process"
	"github.com/loykin/steward/internal/service"
	"github.com/loykin/steward/internal/store"
)

// OS is the process surface the state machine drives; process.Manager
// satisfies it.
type OS interface {
	FindPIDByPort(port uint16) (int, bool)
	IsRunning(pid int) bool
	Spawn(spec process.SpawnSpec) (int, error)
	Terminate(pid int, grace time.Duration) (*int, error)
}

// Net waits for ports to drain between stop and start; network.Manager
// satisfies it.
type Net interface {
	WaitForFree(ctx context.Context, port uint16, attempts int, interval time.Duration) error
}

// HealthChecker classifies a service; health.Checker satisfies it.
type HealthChecker interface {
	Check(ctx context.Context, cfg service.Config) health.Result
}

// Publisher fans lifecycle events out; event.Bus satisfies it.
type Publisher interface {
	Publish(e event.Event)
}

type Options struct {
	// StopGrace is the window between the graceful signal and the kill.
	StopGrace time.Duration
	// Settle is the pause between stop and start during a restart.
	Settle time.Duration
	// FreeAttempts/FreeInterval bound the post-stop wait for the port to
	// drain during a restart. Zero attempts disables the wait; the clean
	// state check still runs.
	FreeAttempts int
	FreeInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.StopGrace <= 0 {
		o.StopGrace = 5 * time.Second
	}
	if o.Settle <= 0 {
		o.Settle = 500 * time.Millisecond
	}
	if o.FreeInterval <= 0 {
		o.FreeInterval = 200 * time.Millisecond
	}
}

type Manager struct {
	os     OS
	net    Net
	store  store.Store
	health HealthChecker
	bus    Publisher
	opts   Options
	logger *slog.Logger
}

func New(osm OS, netm Net, st store.Store, hc HealthChecker, bus Publisher, opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		os: osm, net: netm, store: st, health: hc, bus: bus,
		opts:   opts,
		logger: slog.Default(),
	}
}

// Start brings the service to running. It is idempotent: a live, responsive
// process already bound to the service's port is adopted in place (pid and
// status persisted, nothing spawned, no ServiceStarted). A live but
// unresponsive squatter marks the row orphaned and fails the start.
func (m *Manager) Start(ctx context.Context, cfg service.Config) error {
	rec := m.ensureRecord(ctx, cfg)

	if pid, bound := m.os.FindPIDByPort(cfg.Port); bound && m.os.IsRunning(pid) {
		res := m.health.Check(ctx, cfg)
		if res.Status != health.StatusUnhealthy {
			m.logger.Info("adopting process already bound to service port",
				"service", cfg.Name, "pid", pid, "port", cfg.Port, "health", string(res.Status))
			m.persistPID(ctx, cfg.Name, pid)
			m.persistStatus(ctx, cfg.Name, service.StatusRunning)
			metrics.IncStart(cfg.Name)
			return nil
		}
		m.persistStatus(ctx, cfg.Name, service.StatusOrphaned)
		err := &process.SpawnError{
			Name:   cfg.Name,
			Binary: cfg.BinaryPath,
			Err:    fmt.Errorf("port %d occupied by unresponsive pid %d", cfg.Port, pid),
		}
		m.bus.Publish(event.ServiceFailed{Name: cfg.Name, Err: err})
		metrics.IncLifecycleError(cfg.Name, "start")
		return err
	}

	m.persistStatus(ctx, cfg.Name, service.StatusStarting)
	pid, err := m.os.Spawn(process.SpawnSpec{
		Name:       cfg.Name,
		BinaryPath: cfg.BinaryPath,
		Args:       cfg.Args,
		Env:        cfg.Env,
		WorkDir:    cfg.WorkDir,
		Log:        cfg.Log,
	})
	if err != nil {
		m.persistStatus(ctx, cfg.Name, service.StatusCrashed)
		m.bus.Publish(event.ServiceFailed{Name: cfg.Name, Err: err})
		metrics.IncLifecycleError(cfg.Name, "start")
		return err
	}

	m.persistPID(ctx, cfg.Name, pid)
	m.persistStatus(ctx, cfg.Name, service.StatusRunning)
	m.bus.Publish(event.ServiceStarted{Name: cfg.Name, PID: pid, Port: cfg.Port})
	metrics.IncStart(cfg.Name)
	m.logger.Info("service started", "service", cfg.Name, "pid", pid, "port", cfg.Port, "was", string(rec.Status))
	return nil
}

// Stop brings the service to stopped. Stopping a service with no live
// process is a success: the row self-heals to stopped and a ServiceStopped
// with no exit code is published.
func (m *Manager) Stop(ctx context.Context, cfg service.Config) error {
	rec := m.ensureRecord(ctx, cfg)

	pid := 0
	switch {
	case rec.HasPID() && m.os.IsRunning(*rec.PID):
		pid = *rec.PID
	default:
		if p, bound := m.os.FindPIDByPort(cfg.Port); bound && m.os.IsRunning(p) {
			pid = p
		}
	}

	if pid == 0 {
		m.persistStopped(ctx, cfg.Name)
		m.bus.Publish(event.ServiceStopped{Name: cfg.Name})
		metrics.IncStop(cfg.Name)
		return nil
	}

	code, err := m.os.Terminate(pid, m.opts.StopGrace)
	if err != nil {
		m.bus.Publish(event.ServiceFailed{Name: cfg.Name, Err: err})
		metrics.IncLifecycleError(cfg.Name, "stop")
		return err
	}
	m.persistStopped(ctx, cfg.Name)
	m.bus.Publish(event.ServiceStopped{Name: cfg.Name, ExitCode: code})
	metrics.IncStop(cfg.Name)
	m.logger.Info("service stopped", "service", cfg.Name, "pid", pid)
	return nil
}

// Restart is stop, settle, verify clean state, start. It never proceeds
// into the start leg while the port is still held by a live process.
func (m *Manager) Restart(ctx context.Context, cfg service.Config) error {
	if err := m.Stop(ctx, cfg); err != nil {
		return fmt.Errorf("restart %s: %w", cfg.Name, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.opts.Settle):
	}

	if m.opts.FreeAttempts > 0 {
		if err := m.net.WaitForFree(ctx, cfg.Port, m.opts.FreeAttempts, m.opts.FreeInterval); err != nil {
			m.bus.Publish(event.ServiceFailed{Name: cfg.Name, Err: err})
			metrics.IncLifecycleError(cfg.Name, "restart")
			return fmt.Errorf("restart %s: %w", cfg.Name, err)
		}
	}
	if err := m.verifyCleanState(ctx, cfg); err != nil {
		m.bus.Publish(event.ServiceFailed{Name: cfg.Name, Err: err})
		metrics.IncLifecycleError(cfg.Name, "restart")
		return err
	}

	if err := m.Start(ctx, cfg); err != nil {
		return fmt.Errorf("restart %s: %w", cfg.Name, err)
	}
	metrics.IncRestart(cfg.Name)
	return nil
}

// verifyCleanState guards the gap between stop and start. A port still held
// by a live process fails the restart loudly; a store row still claiming
// running is corrected to stopped and announced, then the restart proceeds.
func (m *Manager) verifyCleanState(ctx context.Context, cfg service.Config) error {
	if pid, bound := m.os.FindPIDByPort(cfg.Port); bound && m.os.IsRunning(pid) {
		return fmt.Errorf("restart %s: %w", cfg.Name,
			&network.WaitTimeoutError{Port: cfg.Port, Attempts: 1, LastPID: pid})
	}
	rec, err := m.store.Get(ctx, cfg.Name)
	if err == nil && rec.Status == service.StatusRunning {
		m.logger.Warn("store still reports running after stop, correcting",
			"service", cfg.Name, "pid", rec.PID)
		m.persistStopped(ctx, cfg.Name)
		m.bus.Publish(event.ServiceStopped{Name: cfg.Name})
	}
	return nil
}

// HealthCheck classifies the service and demotes a running row to crashed on
// an unhealthy result. The classification is advisory: it is returned, never
// an error. Rows that already say stopped or crashed are left alone.
func (m *Manager) HealthCheck(ctx context.Context, cfg service.Config) (health.Result, error) {
	res := m.health.Check(ctx, cfg)
	metrics.ObserveHealthCheck(cfg.Name, string(res.Status), float64(res.LatencyMS)/1000)
	if res.Status != health.StatusUnhealthy {
		return res, nil
	}

	rec, err := m.store.Get(ctx, cfg.Name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return res, nil
		}
		return res, err
	}
	if rec.Status != service.StatusRunning {
		return res, nil
	}

	m.logger.Warn("running service failed health check",
		"service", cfg.Name, "reason", res.Error)
	if err := m.store.SetLastHealthCheck(ctx, cfg.Name, time.Now()); err != nil {
		m.logger.Error("persist health check timestamp", "service", cfg.Name, "error", err)
	}
	m.persistStatus(ctx, cfg.Name, service.StatusCrashed)
	m.bus.Publish(event.HealthCheckFailed{Name: cfg.Name, Reason: res.Error})
	return res, nil
}

// ensureRecord makes Start/Stop usable by hosts that skipped registration:
// the row is created on first touch. Store failures are logged, not fatal;
// the OS-side work still proceeds.
func (m *Manager) ensureRecord(ctx context.Context, cfg service.Config) service.Record {
	rec, err := m.store.Get(ctx, cfg.Name)
	if err == nil {
		return rec
	}
	if !errors.Is(err, store.ErrNotFound) {
		m.logger.Error("read service record", "service", cfg.Name, "error", err)
		return service.Record{Name: cfg.Name, Kind: cfg.Kind, Port: cfg.Port, Status: service.StatusStopped}
	}
	rec = cfg.NewRecord()
	if err := m.store.Upsert(ctx, rec); err != nil {
		m.logger.Error("create service record", "service", cfg.Name, "error", err)
	}
	return rec
}

func (m *Manager) persistStopped(ctx context.Context, name string) {
	if err := m.store.ClearPID(ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
		m.logger.Error("clear service pid", "service", name, "error", err)
	}
	m.persistStatus(ctx, name, service.StatusStopped)
}

func (m *Manager) persistPID(ctx context.Context, name string, pid int) {
	if err := m.store.UpdatePID(ctx, name, pid); err != nil {
		m.logger.Error("persist service pid", "service", name, "pid", pid, "error", err)
	}
}

func (m *Manager) persistStatus(ctx context.Context, name string, st service.Status) {
	if err := m.store.UpdateStatus(ctx, name, st); err != nil {
		m.logger.Error("persist service status", "service", name, "status", string(st), "error", err)
	}
	for _, s := range service.Statuses() {
		metrics.SetCurrentStatus(name, string(s), s == st)
	}
}
