// Package orchestrator is the engine façade: it validates and registers
// service configs, serializes lifecycle commands per service through
// single-writer actors, and runs the background reconcile and health loops
// that keep stored state aligned with OS reality.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/loykin/steward/internal/event"
	"github.com/loykin/steward/internal/health"
	"github.com/loykin/steward/internal/lifecycle"
	"github.com/loykin/steward/internal/metrics"
	"github.com/loykin/steward/internal/portalloc"
	"github.com/loykin/steward/internal/service"
	"github.com/loykin/steward/internal/store"
)

// shutdownGrace bounds each best-effort wait during Shutdown.
const shutdownGrace = 2 * time.Second

// OS is the process surface the reconciler and cleanup read and, for
// cleanup only, act on; process.Manager satisfies it.
type OS interface {
	FindPIDByPort(port uint16) (int, bool)
	IsRunning(pid int) bool
	Terminate(pid int, grace time.Duration) (*int, error)
}

type Options struct {
	// StopGrace is the graceful-kill window CleanupOrphaned grants a
	// terminated squatter.
	StopGrace time.Duration
	// RequestTimeout bounds the lifecycle calls made on behalf of soft
	// request events.
	RequestTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.StopGrace <= 0 {
		o.StopGrace = 5 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
}

// Orchestrator accepts commands for registered services and fans the
// resulting events out on its bus. State writes happen only in the
// lifecycle manager and the reconciler; handlers and API surfaces go
// through here.
type Orchestrator struct {
	mu      sync.RWMutex
	configs map[string]service.Config
	entries map[string]*svcEntry
	closed  bool

	os     OS
	lc     *lifecycle.Manager
	st     store.Store
	ports  *portalloc.Allocator
	bus    *event.Bus
	lh     *event.LifecycleHandler
	opts   Options
	logger *slog.Logger

	reconStop  chan struct{}
	healthStop chan struct{}
	healthTick time.Duration
	healthWG   sync.WaitGroup
}

type svcEntry struct {
	a         *actor
	cancel    context.CancelFunc
	monitored bool
}

// New wires the façade. The monitoring and lifecycle handlers are
// subscribed immediately, so soft requests work out of the box.
func New(osm OS, lc *lifecycle.Manager, st store.Store, ports *portalloc.Allocator, bus *event.Bus, opts Options) *Orchestrator {
	opts.applyDefaults()
	o := &Orchestrator{
		configs: make(map[string]service.Config),
		entries: make(map[string]*svcEntry),
		os:      osm,
		lc:      lc,
		st:      st,
		ports:   ports,
		bus:     bus,
		opts:    opts,
		logger:  slog.Default(),
	}
	o.lh = event.NewLifecycleHandler(o, opts.RequestTimeout)
	bus.Subscribe(event.NewMonitoringHandler())
	bus.Subscribe(o.lh)
	return o
}

// Register validates cfg, claims its port, and persists the service row.
// Ports are assigned at registration time; a taken port surfaces as a
// *portalloc.ConflictError. Re-registering a name updates its config.
func (o *Orchestrator) Register(ctx context.Context, cfg service.Config) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := o.ports.Register(cfg); err != nil {
		return err
	}
	if err := o.st.Upsert(ctx, cfg.NewRecord()); err != nil {
		return fmt.Errorf("register %s: %w", cfg.Name, err)
	}
	o.mu.Lock()
	o.configs[cfg.Name] = cfg
	stop := o.healthStop
	tick := o.healthTick
	o.mu.Unlock()
	if stop != nil {
		o.monitor(cfg.Name, tick, stop)
	}
	return nil
}

// Start brings the named service to running; a live, responsive process
// already on the service's port is adopted instead of respawned.
func (o *Orchestrator) Start(ctx context.Context, name string) error {
	return o.dispatch(ctx, name, ctrlStart, nil)
}

// Stop stops the named service. Stopping a stopped service succeeds.
func (o *Orchestrator) Stop(ctx context.Context, name string) error {
	return o.dispatch(ctx, name, ctrlStop, nil)
}

// Restart stops the service, waits for its port to drain, verifies clean
// state, and starts it again.
func (o *Orchestrator) Restart(ctx context.Context, name string) error {
	return o.dispatch(ctx, name, ctrlRestart, nil)
}

// HealthCheck classifies the named service and applies the advisory
// demotion rules.
func (o *Orchestrator) HealthCheck(ctx context.Context, name string) (health.Result, error) {
	var res health.Result
	err := o.dispatch(ctx, name, ctrlHealth, &res)
	return res, err
}

// CleanupOrphaned terminates whatever process holds the service's port,
// unless the store says that exact pid is the running service, and settles
// the row at stopped. This is the one destructive remedy the reconciler
// never takes on its own.
func (o *Orchestrator) CleanupOrphaned(ctx context.Context, name string) error {
	return o.dispatch(ctx, name, ctrlCleanup, nil)
}

// RequestStart publishes a soft start request. The lifecycle handler turns
// it into a Start call off the caller's goroutine.
func (o *Orchestrator) RequestStart(name string) {
	o.bus.Publish(event.ServiceStartRequested{Name: name})
}

// RequestRestart publishes a soft restart request with a reason for the
// audit trail.
func (o *Orchestrator) RequestRestart(name, reason string) {
	o.bus.Publish(event.ServiceRestartRequested{Name: name, Reason: reason})
}

// Status returns the stored record for name. Reads bypass the actor: rows
// are written one statement at a time, so a read is consistent without
// serialization.
func (o *Orchestrator) Status(ctx context.Context, name string) (service.Record, error) {
	return o.st.Get(ctx, name)
}

// StatusAll returns all stored records, optionally filtered by kind.
func (o *Orchestrator) StatusAll(ctx context.Context, kind *service.Kind) ([]service.Record, error) {
	return o.st.List(ctx, kind)
}

// Subscribe registers an event handler on the engine bus.
func (o *Orchestrator) Subscribe(h event.Handler) { o.bus.Subscribe(h) }

// Bus exposes the engine bus for hosts that publish their own events.
func (o *Orchestrator) Bus() *event.Bus { return o.bus }

// Validate re-checks a registered service's static configuration, its port
// claim, and that the binary exists on disk. It never touches the process
// table or the store.
func (o *Orchestrator) Validate(name string) error {
	cfg, ok := o.configFor(name)
	if !ok {
		return fmt.Errorf("unknown service: %s", name)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return fmt.Errorf("service %s: binary %s: %w", name, cfg.BinaryPath, err)
	}
	if _, ok := o.ports.Registered(name); !ok {
		return fmt.Errorf("service %s: port is not registered", name)
	}
	return nil
}

// StartAll starts every enabled registered service, optionally filtered by
// kind. All services are attempted; the first error wins.
func (o *Orchestrator) StartAll(ctx context.Context, kind *service.Kind) error {
	var firstErr error
	for _, name := range o.registeredNames() {
		cfg, ok := o.configFor(name)
		if !ok || !cfg.Enabled {
			continue
		}
		if kind != nil && cfg.Kind != *kind {
			continue
		}
		if err := o.Start(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StopAll stops every registered service, optionally filtered by kind.
// Disabled services are stopped too: disabling excludes a service from
// starts, not from stops.
func (o *Orchestrator) StopAll(ctx context.Context, kind *service.Kind) error {
	var firstErr error
	for _, name := range o.registeredNames() {
		cfg, ok := o.configFor(name)
		if !ok {
			continue
		}
		if kind != nil && cfg.Kind != *kind {
			continue
		}
		if err := o.Stop(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Shutdown stops the background loops, drains in-flight event reactions,
// and retires the per-service actors. Managed children keep running; the
// next engine start adopts them in place.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.StopReconciler()
	o.StopHealthMonitors()
	o.healthWG.Wait()

	drained := make(chan struct{})
	go func() {
		o.lh.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(shutdownGrace):
	}

	o.mu.Lock()
	entries := make([]*svcEntry, 0, len(o.entries))
	for _, e := range o.entries {
		entries = append(entries, e)
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		if e.a == nil {
			continue
		}
		reply := make(chan error, 1)
		select {
		case e.a.ctrl <- ctrlMsg{Type: ctrlShutdown, Reply: reply}:
		default:
		}
		if e.cancel != nil {
			e.cancel()
		}
		wg.Add(1)
		go func(a *actor) {
			defer wg.Done()
			select {
			case <-a.done:
			case <-time.After(shutdownGrace):
			}
		}(e.a)
	}
	wg.Wait()
}

// dispatch routes one synchronous operation through the service's actor
// and waits for the outcome.
func (o *Orchestrator) dispatch(ctx context.Context, name string, t ctrlType, out *health.Result) error {
	if _, ok := o.configFor(name); !ok {
		return fmt.Errorf("unknown service: %s", name)
	}
	a := o.ensureActor(name)
	if a == nil {
		return ErrShuttingDown
	}
	reply := make(chan error, 1)
	select {
	case a.ctrl <- ctrlMsg{Type: t, Ctx: ctx, Health: out, Reply: reply}:
	case <-a.done:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-a.done:
		// The actor exited; a queued refusal may still be in flight.
		select {
		case err := <-reply:
			return err
		default:
			return ErrShuttingDown
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) startService(ctx context.Context, name string) error {
	cfg, ok := o.configFor(name)
	if !ok {
		return fmt.Errorf("unknown service: %s", name)
	}
	return o.lc.Start(ctx, cfg)
}

func (o *Orchestrator) stopService(ctx context.Context, name string) error {
	cfg, ok := o.configFor(name)
	if !ok {
		return fmt.Errorf("unknown service: %s", name)
	}
	return o.lc.Stop(ctx, cfg)
}

func (o *Orchestrator) restartService(ctx context.Context, name string) error {
	cfg, ok := o.configFor(name)
	if !ok {
		return fmt.Errorf("unknown service: %s", name)
	}
	return o.lc.Restart(ctx, cfg)
}

func (o *Orchestrator) checkService(ctx context.Context, name string) (health.Result, error) {
	cfg, ok := o.configFor(name)
	if !ok {
		return health.Result{}, fmt.Errorf("unknown service: %s", name)
	}
	return o.lc.HealthCheck(ctx, cfg)
}

// cleanupService runs on the service's actor so the kill can never race a
// start or restart of the same name.
func (o *Orchestrator) cleanupService(ctx context.Context, name string) error {
	cfg, ok := o.configFor(name)
	if !ok {
		return fmt.Errorf("unknown service: %s", name)
	}
	if pid, bound := o.os.FindPIDByPort(cfg.Port); bound && o.os.IsRunning(pid) {
		rec, err := o.st.Get(ctx, name)
		if err == nil && rec.Status == service.StatusRunning && rec.PID != nil && *rec.PID == pid {
			return fmt.Errorf("cleanup %s: pid %d is the running service, refusing to terminate", name, pid)
		}
		o.logger.Warn("terminating orphaned process",
			"service", name, "pid", pid, "port", cfg.Port)
		if _, err := o.os.Terminate(pid, o.opts.StopGrace); err != nil {
			return fmt.Errorf("cleanup %s: %w", name, err)
		}
	}
	o.persistStopped(ctx, name)
	return nil
}

func (o *Orchestrator) configFor(name string) (service.Config, bool) {
	o.mu.RLock()
	cfg, ok := o.configs[name]
	o.mu.RUnlock()
	return cfg, ok
}

func (o *Orchestrator) registeredNames() []string {
	o.mu.RLock()
	names := make([]string, 0, len(o.configs))
	for name := range o.configs {
		names = append(names, name)
	}
	o.mu.RUnlock()
	sort.Strings(names)
	return names
}

// ensureActor returns the single-writer actor for name, creating it on
// first use. It returns nil once Shutdown has begun and no actor exists.
func (o *Orchestrator) ensureActor(name string) *actor {
	o.mu.Lock()
	defer o.mu.Unlock()
	e := o.entries[name]
	if e != nil && e.a != nil {
		return e.a
	}
	if o.closed {
		return nil
	}
	if e == nil {
		e = &svcEntry{}
		o.entries[name] = e
	}
	a := newActor(name, o)
	ctx, cancel := context.WithCancel(context.Background())
	e.a = a
	e.cancel = cancel
	go a.run(ctx)
	return a
}

func (o *Orchestrator) persistStopped(ctx context.Context, name string) {
	if err := o.st.ClearPID(ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
		o.logger.Error("clear service pid", "service", name, "error", err)
	}
	o.persistStatus(ctx, name, service.StatusStopped)
}

func (o *Orchestrator) persistStatus(ctx context.Context, name string, st service.Status) {
	if err := o.st.UpdateStatus(ctx, name, st); err != nil {
		o.logger.Error("persist service status", "service", name, "status", string(st), "error", err)
	}
	for _, s := range service.Statuses() {
		metrics.SetCurrentStatus(name, string(s), s == st)
	}
}
