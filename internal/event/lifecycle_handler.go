package event

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Actions is the orchestrator surface the LifecycleHandler drives.
type Actions interface {
	Start(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
}

// LifecycleHandler turns soft request events into orchestrator calls.
// Reactions run on fresh goroutines: publish happens inside a service's
// actor, and calling back into the orchestrator from the publishing
// goroutine would deadlock on that same actor.
type LifecycleHandler struct {
	actions Actions
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewLifecycleHandler(a Actions, timeout time.Duration) *LifecycleHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LifecycleHandler{actions: a, timeout: timeout, logger: slog.Default()}
}

func (h *LifecycleHandler) Name() string { return "lifecycle" }

func (h *LifecycleHandler) Handles(e Event) bool {
	switch e.(type) {
	case ServiceStartRequested, ServiceRestartRequested:
		return true
	}
	return false
}

func (h *LifecycleHandler) Handle(e Event) error {
	switch ev := e.(type) {
	case ServiceStartRequested:
		h.react(ev.Name, "start", h.actions.Start)
	case ServiceRestartRequested:
		h.react(ev.Name, "restart", h.actions.Restart)
	}
	return nil
}

func (h *LifecycleHandler) react(name, op string, fn func(context.Context, string) error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := fn(ctx, name); err != nil {
			h.logger.Error("event-driven operation failed", "op", op, "service", name, "error", err)
		}
	}()
}

// Wait blocks until all in-flight reactions have finished. Shutdown drains
// the handler through this before closing the engine.
func (h *LifecycleHandler) Wait() { h.wg.Wait() }
