package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/steward/internal/event"
	"github.com/loykin/steward/internal/health"
	"github.com/loykin/steward/internal/lifecycle"
	"github.com/loykin/steward/internal/portalloc"
	"github.com/loykin/steward/internal/process"
	"github.com/loykin/steward/internal/service"
	"github.com/loykin/steward/internal/store"
)

// fakeOS models the process table. Spawned pids are live until killed;
// ports are bound explicitly so adoption and squatter scenarios stay
// distinguishable from plain spawns. holdSpawns lets a test freeze a
// service mid-start to observe actor behavior.
type fakeOS struct {
	mu         sync.Mutex
	ports      map[uint16]int
	running    map[int]bool
	nextPID    int
	spawned    []process.SpawnSpec
	terminated []int
	gate       chan struct{}

	inflight  atomic.Int32
	maxFlight atomic.Int32
}

func newFakeOS() *fakeOS {
	return &fakeOS{
		ports:   make(map[uint16]int),
		running: make(map[int]bool),
		nextPID: 1000,
	}
}

func (f *fakeOS) FindPIDByPort(port uint16) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pid, ok := f.ports[port]
	return pid, ok
}

func (f *fakeOS) IsRunning(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[pid]
}

func (f *fakeOS) Spawn(spec process.SpawnSpec) (int, error) {
	cur := f.inflight.Add(1)
	for {
		m := f.maxFlight.Load()
		if cur <= m || f.maxFlight.CompareAndSwap(m, cur) {
			break
		}
	}
	defer f.inflight.Add(-1)

	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	pid := f.nextPID
	f.running[pid] = true
	f.spawned = append(f.spawned, spec)
	return pid, nil
}

func (f *fakeOS) Terminate(pid int, _ time.Duration) (*int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, pid)
	delete(f.running, pid)
	for port, p := range f.ports {
		if p == pid {
			delete(f.ports, port)
		}
	}
	return nil, nil
}

func (f *fakeOS) bind(port uint16, pid int) {
	f.mu.Lock()
	f.ports[port] = pid
	f.running[pid] = true
	f.mu.Unlock()
}

func (f *fakeOS) kill(pid int) {
	f.mu.Lock()
	delete(f.running, pid)
	for port, p := range f.ports {
		if p == pid {
			delete(f.ports, port)
		}
	}
	f.mu.Unlock()
}

func (f *fakeOS) holdSpawns() {
	f.mu.Lock()
	f.gate = make(chan struct{})
	f.mu.Unlock()
}

func (f *fakeOS) releaseSpawns() {
	f.mu.Lock()
	g := f.gate
	f.gate = nil
	f.mu.Unlock()
	if g != nil {
		close(g)
	}
}

func (f *fakeOS) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawned)
}

func (f *fakeOS) terminatedPIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.terminated...)
}

type fakeNet struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNet) WaitForFree(context.Context, uint16, int, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

type fakeHealth struct {
	mu    sync.Mutex
	res   health.Result
	calls int
}

func (f *fakeHealth) Check(context.Context, service.Config) health.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res
}

func (f *fakeHealth) set(res health.Result) {
	f.mu.Lock()
	f.res = res
	f.mu.Unlock()
}

func (f *fakeHealth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Handles(event.Event) bool { return true }

func (r *recorder) Handle(e event.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count(t event.Type) int {
	return len(r.eventsOf(t))
}

func (r *recorder) eventsOf(t event.Type) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

type testEngine struct {
	o   *Orchestrator
	fos *fakeOS
	fh  *fakeHealth
	st  store.Store
	rec *recorder
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	fos := newFakeOS()
	fh := &fakeHealth{res: health.Result{Status: health.StatusHealthy, LatencyMS: 1}}
	st := store.NewMemory()
	ports, err := portalloc.New(nil)
	require.NoError(t, err)
	bus := event.NewBus()
	lc := lifecycle.New(fos, &fakeNet{}, st, fh, bus, lifecycle.Options{
		StopGrace: 50 * time.Millisecond,
		Settle:    time.Millisecond,
	})
	o := New(fos, lc, st, ports, bus, Options{
		StopGrace:      50 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	})
	rec := &recorder{}
	o.Subscribe(rec)
	t.Cleanup(o.Shutdown)
	t.Cleanup(fos.releaseSpawns)
	return &testEngine{o: o, fos: fos, fh: fh, st: st, rec: rec}
}

func testCfg(name string, port uint16) service.Config {
	return service.Config{
		Name:       name,
		Kind:       service.KindMCP,
		BinaryPath: "/usr/local/bin/" + name,
		Port:       port,
		Enabled:    true,
		Probe:      service.ProbeTCP,
	}
}

func TestRegisterPersistsRowAndClaimsPort(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-files", 5101)))

	rec, err := te.o.Status(ctx, "mcp-files")
	require.NoError(t, err)
	assert.Equal(t, service.StatusStopped, rec.Status)
	assert.Equal(t, uint16(5101), rec.Port)
	assert.Nil(t, rec.PID)

	err = te.o.Register(ctx, testCfg("mcp-other", 5101))
	var conflict *portalloc.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint16(5101), conflict.Port)
	assert.Equal(t, "mcp-files", conflict.ExistingOwner)

	bad := testCfg("mcp-bad", 5102)
	bad.BinaryPath = "relative/path"
	require.Error(t, te.o.Register(ctx, bad))
}

func TestStartStopRoundTrip(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-files", 5101)))
	require.NoError(t, te.o.Start(ctx, "mcp-files"))

	rec, err := te.o.Status(ctx, "mcp-files")
	require.NoError(t, err)
	assert.Equal(t, service.StatusRunning, rec.Status)
	require.NotNil(t, rec.PID)
	assert.True(t, te.fos.IsRunning(*rec.PID))

	require.NoError(t, te.o.Stop(ctx, "mcp-files"))
	rec, err = te.o.Status(ctx, "mcp-files")
	require.NoError(t, err)
	assert.Equal(t, service.StatusStopped, rec.Status)
	assert.Nil(t, rec.PID)

	assert.Equal(t, 1, te.rec.count(event.TypeServiceStarted))
	assert.Equal(t, 1, te.rec.count(event.TypeServiceStopped))
}

func TestOperationsOnUnknownServiceFail(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	require.ErrorContains(t, te.o.Start(ctx, "ghost"), "unknown service")
	require.ErrorContains(t, te.o.Restart(ctx, "ghost"), "unknown service")
	require.ErrorContains(t, te.o.Validate("ghost"), "unknown service")
	_, err := te.o.HealthCheck(ctx, "ghost")
	require.ErrorContains(t, err, "unknown service")
}

func TestConcurrentRestartsSerializePerName(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-files", 5101)))
	require.NoError(t, te.o.Start(ctx, "mcp-files"))

	te.fos.holdSpawns()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = te.o.Restart(ctx, "mcp-files")
		}()
	}

	// The first restart parks inside Spawn; the second must stay queued on
	// the actor instead of starting its own stop/start.
	require.Eventually(t, func() bool {
		return te.fos.inflight.Load() == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), te.fos.inflight.Load())

	te.fos.releaseSpawns()
	wg.Wait()

	assert.Equal(t, int32(1), te.fos.maxFlight.Load())
	assert.Equal(t, 3, te.fos.spawnCount())
	rec, err := te.o.Status(ctx, "mcp-files")
	require.NoError(t, err)
	assert.Equal(t, service.StatusRunning, rec.Status)
}

func TestDifferentServicesRunInParallel(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-a", 5101)))
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-b", 5102)))

	te.fos.holdSpawns()
	var wg sync.WaitGroup
	for _, name := range []string{"mcp-a", "mcp-b"} {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			_ = te.o.Start(ctx, n)
		}(name)
	}

	require.Eventually(t, func() bool {
		return te.fos.inflight.Load() == 2
	}, time.Second, 5*time.Millisecond)

	te.fos.releaseSpawns()
	wg.Wait()

	assert.Equal(t, int32(2), te.fos.maxFlight.Load())
	for _, name := range []string{"mcp-a", "mcp-b"} {
		rec, err := te.o.Status(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, service.StatusRunning, rec.Status, name)
	}
}

func TestStartAllAndStopAllFilterByKind(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	agentCfg := testCfg("agent-a", 9101)
	agentCfg.Kind = service.KindAgent
	disabled := testCfg("mcp-off", 5102)
	disabled.Enabled = false
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-a", 5101)))
	require.NoError(t, te.o.Register(ctx, agentCfg))
	require.NoError(t, te.o.Register(ctx, disabled))

	require.NoError(t, te.o.StartAll(ctx, nil))
	assert.Equal(t, 2, te.fos.spawnCount())
	rec, err := te.o.Status(ctx, "mcp-off")
	require.NoError(t, err)
	assert.Equal(t, service.StatusStopped, rec.Status)

	agent := service.KindAgent
	require.NoError(t, te.o.StopAll(ctx, &agent))
	rec, err = te.o.Status(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, service.StatusStopped, rec.Status)
	rec, err = te.o.Status(ctx, "mcp-a")
	require.NoError(t, err)
	assert.Equal(t, service.StatusRunning, rec.Status)

	require.NoError(t, te.o.StopAll(ctx, nil))
	rec, err = te.o.Status(ctx, "mcp-a")
	require.NoError(t, err)
	assert.Equal(t, service.StatusStopped, rec.Status)
}

func TestStatusAllFiltersByKind(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	agentCfg := testCfg("agent-a", 9101)
	agentCfg.Kind = service.KindAgent
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-a", 5101)))
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-b", 5102)))
	require.NoError(t, te.o.Register(ctx, agentCfg))

	all, err := te.o.StatusAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "agent-a", all[0].Name)
	assert.Equal(t, "mcp-a", all[1].Name)
	assert.Equal(t, "mcp-b", all[2].Name)

	agent := service.KindAgent
	agents, err := te.o.StatusAll(ctx, &agent)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "agent-a", agents[0].Name)
}

func TestValidateChecksBinaryOnDisk(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	bin := filepath.Join(t.TempDir(), "mcp-files")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	ok := testCfg("mcp-files", 5101)
	ok.BinaryPath = bin
	require.NoError(t, te.o.Register(ctx, ok))
	require.NoError(t, te.o.Validate("mcp-files"))

	gone := testCfg("mcp-gone", 5102)
	gone.BinaryPath = filepath.Join(t.TempDir(), "missing")
	require.NoError(t, te.o.Register(ctx, gone))
	require.ErrorContains(t, te.o.Validate("mcp-gone"), "binary")
}

func TestCleanupOrphanedTerminatesSquatter(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-files", 5101)))
	te.fos.bind(5101, 999)

	require.NoError(t, te.o.CleanupOrphaned(ctx, "mcp-files"))
	assert.Contains(t, te.fos.terminatedPIDs(), 999)
	rec, err := te.o.Status(ctx, "mcp-files")
	require.NoError(t, err)
	assert.Equal(t, service.StatusStopped, rec.Status)
}

func TestCleanupOrphanedRefusesOwnRunningService(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-files", 5101)))
	require.NoError(t, te.o.Start(ctx, "mcp-files"))
	rec, err := te.o.Status(ctx, "mcp-files")
	require.NoError(t, err)
	require.NotNil(t, rec.PID)
	te.fos.bind(5101, *rec.PID)

	err = te.o.CleanupOrphaned(ctx, "mcp-files")
	require.ErrorContains(t, err, "refusing")
	assert.Empty(t, te.fos.terminatedPIDs())
	rec, err = te.o.Status(ctx, "mcp-files")
	require.NoError(t, err)
	assert.Equal(t, service.StatusRunning, rec.Status)
}

func TestHealthCheckReturnsClassification(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-files", 5101)))
	require.NoError(t, te.o.Start(ctx, "mcp-files"))

	te.fh.set(health.Result{Status: health.StatusDegraded, LatencyMS: 2, Error: "mcp server exports no tools"})
	res, err := te.o.HealthCheck(ctx, "mcp-files")
	require.NoError(t, err)
	assert.Equal(t, health.StatusDegraded, res.Status)

	// Degraded is advisory: the row stays running.
	rec, err := te.o.Status(ctx, "mcp-files")
	require.NoError(t, err)
	assert.Equal(t, service.StatusRunning, rec.Status)
}

func TestRequestStartFlowsThroughBus(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-files", 5101)))

	te.o.RequestStart("mcp-files")
	require.Eventually(t, func() bool {
		rec, err := te.o.Status(ctx, "mcp-files")
		return err == nil && rec.Status == service.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, te.rec.count(event.TypeServiceStartRequested))
	assert.Equal(t, 1, te.rec.count(event.TypeServiceStarted))
}

func TestShutdownRefusesFurtherWork(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, te.o.Register(ctx, testCfg("mcp-files", 5101)))
	require.NoError(t, te.o.Start(ctx, "mcp-files"))
	rec, err := te.o.Status(ctx, "mcp-files")
	require.NoError(t, err)
	require.NotNil(t, rec.PID)
	pid := *rec.PID

	te.o.Shutdown()
	require.ErrorIs(t, te.o.Start(ctx, "mcp-files"), ErrShuttingDown)

	// The engine detaches on shutdown; the child keeps running and is
	// adopted by the next engine start.
	assert.True(t, te.fos.IsRunning(pid))

	te.o.Shutdown()
}
