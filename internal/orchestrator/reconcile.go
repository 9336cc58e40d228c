package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/steward/internal/event"
	"github.com/loykin/steward/internal/metrics"
	"github.com/loykin/steward/internal/service"
	"github.com/loykin/steward/internal/store"
)

// ReconcileOnce runs one corrective pass over every registered service.
// Each correction runs on the service's actor; a busy actor is skipped
// rather than waited on, because an in-flight operation means the service
// is mid-transition and the next pass will see the settled state. One
// service's drift never stops the pass.
func (o *Orchestrator) ReconcileOnce(ctx context.Context) {
	metrics.IncReconcilePass()
	for _, name := range o.registeredNames() {
		a := o.ensureActor(name)
		if a == nil || a.busy.Load() {
			continue
		}
		reply := make(chan error, 1)
		select {
		case a.ctrl <- ctrlMsg{Type: ctrlReconcile, Ctx: ctx, Reply: reply}:
		default:
			continue
		}
		select {
		case err := <-reply:
			if err != nil {
				o.logger.Error("reconcile pass", "service", name, "error", err)
			}
		case <-a.done:
		case <-ctx.Done():
			return
		}
	}
}

// reconcileService aligns one row with observed reality. Drift is normal
// input here, not an error: stale running rows are corrected to stopped
// and evented, and a live process on a port the store believes free is
// flagged orphaned. Nothing is ever killed; CleanupOrphaned is the
// explicit remedy.
func (o *Orchestrator) reconcileService(ctx context.Context, name string) error {
	cfg, ok := o.configFor(name)
	if !ok || !cfg.Enabled {
		return nil
	}
	rec, err := o.st.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		rec = cfg.NewRecord()
		if err := o.st.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("reconcile %s: %w", name, err)
		}
	} else if err != nil {
		return fmt.Errorf("reconcile %s: %w", name, err)
	}

	switch rec.Status {
	case service.StatusRunning:
		if rec.PID != nil && o.os.IsRunning(*rec.PID) {
			return nil
		}
		pid := 0
		if rec.PID != nil {
			pid = *rec.PID
		}
		o.logger.Warn("stored record says running but the process is gone",
			"service", name, "pid", pid)
		o.persistStopped(ctx, name)
		metrics.IncReconcileCorrection(name, "stale_running")
		o.bus.Publish(event.ServiceStopped{Name: name})
		if cfg.AutoRestart {
			o.bus.Publish(event.ServiceRestartRequested{Name: name, Reason: "process died out of band"})
		}
	case service.StatusStopped, service.StatusCrashed:
		pid, bound := o.os.FindPIDByPort(cfg.Port)
		if !bound || !o.os.IsRunning(pid) {
			return nil
		}
		o.logger.Warn("live process on a port the store believes free",
			"service", name, "pid", pid, "port", cfg.Port)
		o.persistStatus(ctx, name, service.StatusOrphaned)
		metrics.IncReconcileCorrection(name, "orphaned_port")
		o.bus.Publish(event.HealthCheckFailed{Name: name, Reason: "orphaned process on managed port"})
	}
	return nil
}

// StartReconciler launches the periodic corrective loop.
func (o *Orchestrator) StartReconciler(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	o.mu.Lock()
	if o.reconStop != nil || o.closed {
		o.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	o.reconStop = stop
	o.mu.Unlock()
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				o.ReconcileOnce(context.Background())
			case <-stop:
				return
			}
		}
	}()
}

// StopReconciler stops the corrective loop if running.
func (o *Orchestrator) StopReconciler() {
	o.mu.Lock()
	ch := o.reconStop
	o.reconStop = nil
	o.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}
