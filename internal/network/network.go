// Package network provides the TCP probing primitives health checks and
// restart sequencing are built on. A successful probe means something is
// listening, never that it is healthy.
package network

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

const freeProbeTimeout = 250 * time.Millisecond

// PortLookup is the one process primitive this package needs; satisfied by
// process.Manager.
type PortLookup interface {
	FindPIDByPort(port uint16) (int, bool)
}

// WaitTimeoutError reports that a port did not become free within the
// bounded retry budget. LastPID is the holder seen on the final attempt.
type WaitTimeoutError struct {
	Port     uint16
	Attempts int
	LastPID  int
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("port %d still occupied by pid %d after %d attempts", e.Port, e.LastPID, e.Attempts)
}

type Manager struct {
	lookup PortLookup
}

func NewManager(lookup PortLookup) *Manager {
	return &Manager{lookup: lookup}
}

// Probe attempts a TCP connect within timeout.
func (m *Manager) Probe(host string, port uint16, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// IsFree reports whether nothing accepts on the port right now.
func (m *Manager) IsFree(host string, port uint16) bool {
	return !m.Probe(host, port, freeProbeTimeout)
}

// WaitForFree polls the port-to-PID lookup until the port is unbound or the
// attempt budget runs out. The interval elapses between attempts, not before
// the first one.
func (m *Manager) WaitForFree(ctx context.Context, port uint16, attempts int, interval time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	lastPID := 0
	for i := 0; i < attempts; i++ {
		pid, bound := m.lookup.FindPIDByPort(port)
		if !bound {
			return nil
		}
		lastPID = pid
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return &WaitTimeoutError{Port: port, Attempts: attempts, LastPID: lastPID}
}
