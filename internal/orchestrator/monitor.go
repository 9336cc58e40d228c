package orchestrator

import (
	"context"
	"time"

	"github.com/loykin/steward/internal/service"
)

// StartHealthMonitors launches one background checker per registered
// service. Ticks run the advisory health check on the service's actor and
// only while the stored record says running; results land in metrics and
// events, never in a synchronous caller. Services registered later get a
// monitor at registration time.
func (o *Orchestrator) StartHealthMonitors(interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	o.mu.Lock()
	if o.healthStop != nil || o.closed {
		o.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	o.healthStop = stop
	o.healthTick = interval
	names := make([]string, 0, len(o.configs))
	for name := range o.configs {
		names = append(names, name)
	}
	o.mu.Unlock()
	for _, name := range names {
		o.monitor(name, interval, stop)
	}
}

// StopHealthMonitors stops the background checkers if running.
func (o *Orchestrator) StopHealthMonitors() {
	o.mu.Lock()
	ch := o.healthStop
	o.healthStop = nil
	for _, e := range o.entries {
		e.monitored = false
	}
	o.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// monitor starts the per-service checker goroutine exactly once per
// monitor generation.
func (o *Orchestrator) monitor(name string, interval time.Duration, stop <-chan struct{}) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	e := o.entries[name]
	if e == nil {
		e = &svcEntry{}
		o.entries[name] = e
	}
	if e.monitored {
		o.mu.Unlock()
		return
	}
	e.monitored = true
	o.mu.Unlock()
	o.healthWG.Add(1)
	go func() {
		defer o.healthWG.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				o.healthTickOne(name)
			case <-stop:
				return
			}
		}
	}()
}

// healthTickOne nudges the service's actor to run one health check. A busy
// actor is skipped: mid-transition state is not worth classifying, and the
// next tick will see it settled.
func (o *Orchestrator) healthTickOne(name string) {
	ctx := context.Background()
	rec, err := o.st.Get(ctx, name)
	if err != nil || rec.Status != service.StatusRunning {
		return
	}
	a := o.ensureActor(name)
	if a == nil || a.busy.Load() {
		return
	}
	select {
	case a.ctrl <- ctrlMsg{Type: ctrlHealth, Ctx: ctx}:
	default:
	}
}
