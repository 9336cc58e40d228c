package service

import (
	"fmt"
	"time"
)

// Kind distinguishes the two families of managed processes. They share the
// same lifecycle; the kind only selects the port range and the default
// health handshake.
type Kind string

const (
	KindMCP   Kind = "mcp"
	KindAgent Kind = "agent"
)

// ParseKind validates a kind string coming from configuration or the API.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMCP, KindAgent:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown service kind %q", s)
}

// Status is the persisted lifecycle state of a service. It reflects what the
// store last recorded, not necessarily OS reality; callers re-verify against
// the OS before trusting it.
type Status string

const (
	// StatusStarting is written between the adopt check and the spawn.
	StatusStarting Status = "starting"
	// StatusRunning means a PID was bound to the service at the last write.
	StatusRunning Status = "running"
	// StatusStopped means the service was stopped deliberately (or corrected
	// to stopped by reconciliation).
	StatusStopped Status = "stopped"
	// StatusCrashed means a spawn failed or a running service was found dead.
	StatusCrashed Status = "crashed"
	// StatusOrphaned means a live process occupies the service's port but is
	// not the PID the store tracks.
	StatusOrphaned Status = "orphaned"
)

// ParseStatus validates a status string read back from a store adapter.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusStarting, StatusRunning, StatusStopped, StatusCrashed, StatusOrphaned:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown service status %q", s)
}

// Statuses lists every status value, for gauges and validation loops.
func Statuses() []Status {
	return []Status{StatusStarting, StatusRunning, StatusStopped, StatusCrashed, StatusOrphaned}
}

// Record is the persisted row for one managed service, keyed by name. Rows
// are created at registration and never deleted during normal operation;
// only the lifecycle manager and the reconciler mutate pid and status.
type Record struct {
	Name              string     `json:"name"`
	Kind              Kind       `json:"kind"`
	Port              uint16     `json:"port"`
	PID               *int       `json:"pid,omitempty"`
	Status            Status     `json:"status"`
	LastHealthCheckAt *time.Time `json:"last_health_check_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasPID reports whether the record carries a PID.
func (r *Record) HasPID() bool { return r.PID != nil && *r.PID > 0 }
