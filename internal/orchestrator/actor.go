package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/loykin/steward/internal/health"
)

// ErrShuttingDown is returned for operations dispatched after Shutdown has
// begun retiring the per-service actors.
var ErrShuttingDown = errors.New("orchestrator shutting down")

// ctrlType identifies the operation carried by a ctrlMsg.
type ctrlType int

const (
	ctrlStart ctrlType = iota
	ctrlStop
	ctrlRestart
	ctrlHealth
	ctrlCleanup
	ctrlReconcile
	ctrlShutdown
)

// ctrlMsg is one control message for an actor. Health is populated for
// ctrlHealth so the caller receives the classification alongside the error.
// Reply may be nil for fire-and-forget nudges.
type ctrlMsg struct {
	Type   ctrlType
	Ctx    context.Context
	Health *health.Result
	Reply  chan error
}

// actor serializes all state transitions for one service. Every mutating
// operation on a name flows through its ctrl channel and runs on its
// goroutine, so two concurrent restarts of the same service cannot
// interleave their stop/start halves. Different names run fully parallel.
type actor struct {
	name string
	eng  *Orchestrator
	ctrl chan ctrlMsg
	done chan struct{}
	busy atomic.Bool
}

func newActor(name string, eng *Orchestrator) *actor {
	return &actor{
		name: name,
		eng:  eng,
		ctrl: make(chan ctrlMsg, 16),
		done: make(chan struct{}),
	}
}

// run consumes control messages until the context is canceled or a shutdown
// message arrives. Queued senders are refused on exit so nobody blocks on a
// dead actor.
func (a *actor) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			a.refuseQueued()
			return
		case msg := <-a.ctrl:
			if msg.Type == ctrlShutdown {
				if msg.Reply != nil {
					msg.Reply <- nil
				}
				a.refuseQueued()
				return
			}
			a.dispatch(msg)
		}
	}
}

func (a *actor) dispatch(msg ctrlMsg) {
	a.busy.Store(true)
	defer a.busy.Store(false)
	ctx := msg.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	switch msg.Type {
	case ctrlStart:
		err = a.eng.startService(ctx, a.name)
	case ctrlStop:
		err = a.eng.stopService(ctx, a.name)
	case ctrlRestart:
		err = a.eng.restartService(ctx, a.name)
	case ctrlHealth:
		var res health.Result
		res, err = a.eng.checkService(ctx, a.name)
		if msg.Health != nil {
			*msg.Health = res
		}
	case ctrlCleanup:
		err = a.eng.cleanupService(ctx, a.name)
	case ctrlReconcile:
		err = a.eng.reconcileService(ctx, a.name)
	}
	if msg.Reply != nil {
		msg.Reply <- err
	}
}

func (a *actor) refuseQueued() {
	for {
		select {
		case msg := <-a.ctrl:
			if msg.Reply != nil {
				msg.Reply <- ErrShuttingDown
			}
		default:
			return
		}
	}
}
