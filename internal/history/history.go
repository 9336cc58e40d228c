// Package history journals lifecycle events into external analytics
// backends. It is driven purely by a bus handler: the engine never writes
// history itself, and a missing or failing sink never blocks a transition
// beyond the handler's bounded timeout.
package history

import (
	"context"
	"time"

	"github.com/loykin/steward/internal/event"
)

// Entry is the flattened journal row written to every sink. One lifecycle
// event becomes one entry; fields the variant does not carry stay zero.
type Entry struct {
	OccurredAt time.Time `json:"occurred_at"`
	Event      string    `json:"event"`
	Service    string    `json:"service"`
	PID        int       `json:"pid,omitempty"`
	Port       uint16    `json:"port,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Flatten maps a bus event onto a journal entry stamped with now.
func Flatten(e event.Event, now time.Time) Entry {
	entry := Entry{
		OccurredAt: now.UTC(),
		Event:      string(e.Type()),
		Service:    e.ServiceName(),
	}
	switch v := e.(type) {
	case event.ServiceStarted:
		entry.PID = v.PID
		entry.Port = v.Port
	case event.ServiceFailed:
		if v.Err != nil {
			entry.Reason = v.Err.Error()
		}
	case event.ServiceStopped:
		entry.ExitCode = v.ExitCode
	case event.ServiceRestartRequested:
		entry.Reason = v.Reason
	case event.HealthCheckFailed:
		entry.Reason = v.Reason
	}
	return entry
}

// Sink is a destination for journal entries (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Entry) error
}
