package process

import "fmt"

// SpawnError is returned when a service process could not be launched: the
// binary is missing, exec failed, or the port is already held by a process
// that is not the service.
type SpawnError struct {
	Name   string
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	if e.Binary != "" {
		return fmt.Sprintf("spawn %s (%s): %v", e.Name, e.Binary, e.Err)
	}
	return fmt.Sprintf("spawn %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TerminateError is returned only when a process survives the forceful kill.
// Graceful-shutdown refusal alone never produces it; escalation does the
// waiting first.
type TerminateError struct {
	PID int
	Err error
}

func (e *TerminateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("terminate pid %d: %v", e.PID, e.Err)
	}
	return fmt.Sprintf("terminate pid %d: process still alive after SIGKILL", e.PID)
}

func (e *TerminateError) Unwrap() error { return e.Err }
