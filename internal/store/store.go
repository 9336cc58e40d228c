// Package store defines the persistence boundary for service records. The
// engine issues only single-row, single-statement writes through this
// interface; any key-value-ish backend can satisfy it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/loykin/steward/internal/service"
)

// ErrNotFound is returned when no record exists for a service name.
var ErrNotFound = errors.New("service record not found")

// Store is the contract the lifecycle manager and reconciler write through.
// Rows are keyed by service name and never deleted during normal operation.
type Store interface {
	// EnsureSchema creates backing structures when missing.
	EnsureSchema(ctx context.Context) error
	// Upsert inserts the record at registration time. On an existing row it
	// refreshes kind and port but preserves the runtime fields (status, pid,
	// last health check) so registration never clobbers live state.
	Upsert(ctx context.Context, rec service.Record) error
	// Get returns the record for name or ErrNotFound.
	Get(ctx context.Context, name string) (service.Record, error)
	// List returns all records, optionally filtered by kind, ordered by name.
	List(ctx context.Context, kind *service.Kind) ([]service.Record, error)
	// UpdateStatus sets the status column for name.
	UpdateStatus(ctx context.Context, name string, status service.Status) error
	// UpdatePID sets the pid column for name.
	UpdatePID(ctx context.Context, name string, pid int) error
	// ClearPID nulls the pid column for name.
	ClearPID(ctx context.Context, name string) error
	// SetLastHealthCheck stamps the last health check time for name.
	SetLastHealthCheck(ctx context.Context, name string, at time.Time) error
	Close() error
}
