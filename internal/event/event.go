// Package event defines the engine's lifecycle event vocabulary and the
// synchronous bus that fans events out to subscribed handlers.
package event

// Type identifies one of the lifecycle event variants.
type Type string

const (
	TypeServiceStartRequested   Type = "ServiceStartRequested"
	TypeServiceStarted          Type = "ServiceStarted"
	TypeServiceFailed           Type = "ServiceFailed"
	TypeServiceStopped          Type = "ServiceStopped"
	TypeServiceRestartRequested Type = "ServiceRestartRequested"
	TypeHealthCheckFailed       Type = "HealthCheckFailed"
)

// Event is one lifecycle notification. The variant set is closed: every
// observable state transition maps to exactly one of the six types below.
type Event interface {
	Type() Type
	ServiceName() string
}

// ServiceStartRequested is a soft ask: no state has changed yet. The
// LifecycleHandler turns it into an orchestrator Start call.
type ServiceStartRequested struct {
	Name string
}

func (e ServiceStartRequested) Type() Type          { return TypeServiceStartRequested }
func (e ServiceStartRequested) ServiceName() string { return e.Name }

// ServiceStarted records a completed start: the service is running with
// the given PID on its configured port. Adoption of an already-running
// process does not publish this variant.
type ServiceStarted struct {
	Name string
	PID  int
	Port uint16
}

func (e ServiceStarted) Type() Type          { return TypeServiceStarted }
func (e ServiceStarted) ServiceName() string { return e.Name }

// ServiceFailed records a failed lifecycle operation. Err is also returned
// to the caller of the failing operation.
type ServiceFailed struct {
	Name string
	Err  error
}

func (e ServiceFailed) Type() Type          { return TypeServiceFailed }
func (e ServiceFailed) ServiceName() string { return e.Name }

// ServiceStopped records a stop. ExitCode is set when the child was spawned
// by this engine and its exit status was observed; it is nil for no-op stops,
// adopted processes, and reconciler corrections.
type ServiceStopped struct {
	Name     string
	ExitCode *int
}

func (e ServiceStopped) Type() Type          { return TypeServiceStopped }
func (e ServiceStopped) ServiceName() string { return e.Name }

// ServiceRestartRequested is a soft ask mirroring ServiceStartRequested.
type ServiceRestartRequested struct {
	Name   string
	Reason string
}

func (e ServiceRestartRequested) Type() Type          { return TypeServiceRestartRequested }
func (e ServiceRestartRequested) ServiceName() string { return e.Name }

// HealthCheckFailed records an unhealthy classification that demoted a
// running service, or an orphaned process flagged by the reconciler.
type HealthCheckFailed struct {
	Name   string
	Reason string
}

func (e HealthCheckFailed) Type() Type          { return TypeHealthCheckFailed }
func (e HealthCheckFailed) ServiceName() string { return e.Name }
