// Package process provides the OS primitives the lifecycle engine is built
// on: finding the PID bound to a TCP port, liveness probes, spawning detached
// children with rotating log sinks, and graceful-then-forceful termination.
package process

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/steward/internal/env"
	"github.com/loykin/steward/internal/logger"
)

// killWait bounds the final liveness poll after a SIGKILL escalation.
const killWait = 2 * time.Second

// SpawnSpec is the launch description for one service process. BinaryPath is
// executed directly; no shell is involved.
type SpawnSpec struct {
	Name       string
	BinaryPath string
	Args       []string
	Env        []string
	WorkDir    string
	Log        logger.Config
}

// child tracks a process this manager spawned, so it can be reaped and its
// exit code recovered by Terminate.
type child struct {
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int // valid once done is closed
}

// Manager implements the process primitives. It is safe for concurrent use.
// Spawned children are placed in their own process group and are not tied to
// any context: they are meant to outlive engine restarts.
type Manager struct {
	mu       sync.Mutex
	env      *env.Env
	children map[int]*child
}

func NewManager(e *env.Env) *Manager {
	if e == nil {
		e = env.New()
	}
	return &Manager{env: e, children: make(map[int]*child)}
}

// IsRunning reports whether a process with the given PID is alive. Dead,
// invalid, and zombie PIDs all report false; a live process owned by another
// user reports true.
func (m *Manager) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return alive(pid)
}

// Spawn launches the service binary as a detached child and returns its PID.
// stdout/stderr go to the spec's log sinks, or are discarded when none are
// configured. The child is reaped in the background when it exits.
func (m *Manager) Spawn(spec SpawnSpec) (int, error) {
	if spec.BinaryPath == "" {
		return 0, &SpawnError{Name: spec.Name, Err: os.ErrNotExist}
	}
	// #nosec G204 -- binary path comes from validated static configuration
	cmd := exec.Command(spec.BinaryPath, spec.Args...)
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	cmd.Env = m.env.Merge(spec.Env)
	setSysProcAttr(cmd)

	outW, errW := m.openSinks(spec, cmd)

	if err := cmd.Start(); err != nil {
		closeSinks(outW, errW)
		return 0, &SpawnError{Name: spec.Name, Binary: spec.BinaryPath, Err: err}
	}
	pid := cmd.Process.Pid

	c := &child{cmd: cmd, done: make(chan struct{})}
	m.mu.Lock()
	m.pruneLocked()
	m.children[pid] = c
	m.mu.Unlock()

	go m.reap(c, outW, errW)
	return pid, nil
}

func (m *Manager) openSinks(spec SpawnSpec, cmd *exec.Cmd) (io.WriteCloser, io.WriteCloser) {
	if spec.Log.Dir != "" {
		_ = os.MkdirAll(spec.Log.Dir, 0o750)
	}
	outW, errW, _ := spec.Log.Writers(spec.Name)
	if outW != nil {
		cmd.Stdout = outW
	} else {
		cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	if errW != nil {
		cmd.Stderr = errW
	} else {
		cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	return outW, errW
}

func closeSinks(ws ...io.WriteCloser) {
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}

// reap waits for a spawned child so it never lingers as a zombie, records the
// exit code, and closes the log sinks.
func (m *Manager) reap(c *child, outW, errW io.WriteCloser) {
	err := c.cmd.Wait()
	c.exitCode = exitStatusCode(c.cmd, err)
	closeSinks(outW, errW)
	close(c.done)
}

// pruneLocked drops exited children so the registry stays bounded. Exit codes
// for long-gone PIDs are stale anyway once the PID can be reused.
func (m *Manager) pruneLocked() {
	if len(m.children) < 512 {
		return
	}
	for pid, c := range m.children {
		select {
		case <-c.done:
			delete(m.children, pid)
		default:
		}
	}
}

func (m *Manager) lookupChild(pid int) *child {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.children[pid]
}

func (m *Manager) forgetChild(pid int) {
	m.mu.Lock()
	delete(m.children, pid)
	m.mu.Unlock()
}

// Terminate sends a graceful shutdown signal, waits up to grace, then
// escalates to a forceful kill. It returns the exit code when the process was
// one of ours and the exit was observed, and fails only if the process is
// still alive after the kill.
func (m *Manager) Terminate(pid int, grace time.Duration) (*int, error) {
	if pid <= 0 {
		return nil, nil
	}
	if !m.IsRunning(pid) {
		return m.exitCodeOf(pid), nil
	}
	signalTerm(pid)
	if m.waitGone(pid, grace) {
		return m.exitCodeOf(pid), nil
	}
	signalKill(pid)
	if m.waitGone(pid, killWait) {
		return m.exitCodeOf(pid), nil
	}
	return nil, &TerminateError{PID: pid}
}

// waitGone blocks until the process is observed dead or the deadline passes.
// Our own children are waited on precisely via the reaper; adopted PIDs are
// polled.
func (m *Manager) waitGone(pid int, d time.Duration) bool {
	if c := m.lookupChild(pid); c != nil {
		select {
		case <-c.done:
			return true
		case <-time.After(d):
			return false
		}
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !m.IsRunning(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !m.IsRunning(pid)
}

// exitCodeOf returns the recorded exit code for a child we spawned, consuming
// the registry entry. Nil for adopted or still-running processes.
func (m *Manager) exitCodeOf(pid int) *int {
	c := m.lookupChild(pid)
	if c == nil {
		return nil
	}
	select {
	case <-c.done:
		m.forgetChild(pid)
		code := c.exitCode
		return &code
	default:
		return nil
	}
}
