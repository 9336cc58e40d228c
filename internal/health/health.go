// Package health classifies a managed service as healthy, degraded, or
// unhealthy by layering an optional protocol handshake over a TCP probe.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/steward/internal/service"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Result is the outcome of one check. Timeouts and refused handshakes are
// classifications here, never errors.
type Result struct {
	Status         Status `json:"status"`
	LatencyMS      int64  `json:"latency_ms"`
	ToolsAvailable int    `json:"tools_available,omitempty"`
	Error          string `json:"error,omitempty"`
}

// PortLookup resolves which PID, if any, is listening on a local port.
type PortLookup interface {
	FindPIDByPort(port uint16) (int, bool)
}

// Prober reports whether a TCP connect to host:port succeeds within timeout.
type Prober interface {
	Probe(host string, port uint16, timeout time.Duration) bool
}

type Checker struct {
	lookup PortLookup
	prober Prober
	host   string
}

// NewChecker builds a checker probing the given host (empty means loopback).
func NewChecker(lookup PortLookup, prober Prober, host string) *Checker {
	if host == "" {
		host = "127.0.0.1"
	}
	return &Checker{lookup: lookup, prober: prober, host: host}
}

// Check runs the three-step classification:
//  1. nothing bound to the port -> unhealthy, no probe
//  2. TCP probe failure -> unhealthy
//  3. handshake failure or zero tools -> degraded; the port is bound and
//     accepting, so a broken handshake never re-escalates to unhealthy
func (c *Checker) Check(ctx context.Context, cfg service.Config) Result {
	timeout := cfg.HealthCheckTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	start := time.Now()

	if _, bound := c.lookup.FindPIDByPort(cfg.Port); !bound {
		return Result{
			Status:    StatusUnhealthy,
			LatencyMS: time.Since(start).Milliseconds(),
			Error:     fmt.Sprintf("no process listening on port %d", cfg.Port),
		}
	}
	if !c.prober.Probe(c.host, cfg.Port, timeout) {
		return Result{
			Status:    StatusUnhealthy,
			LatencyMS: time.Since(start).Milliseconds(),
			Error:     fmt.Sprintf("tcp probe to port %d failed", cfg.Port),
		}
	}

	switch cfg.EffectiveProbe() {
	case service.ProbeMCP:
		tools, err := countMCPTools(ctx, c.host, cfg.Port, timeout)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			return Result{Status: StatusDegraded, LatencyMS: latency, Error: "mcp handshake: " + err.Error()}
		}
		if tools == 0 {
			return Result{Status: StatusDegraded, LatencyMS: latency, Error: "mcp server exports no tools"}
		}
		return Result{Status: StatusHealthy, LatencyMS: latency, ToolsAvailable: tools}
	case service.ProbeHTTP:
		err := probeHTTP(ctx, c.host, cfg.Port, cfg.HealthPath, timeout)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			return Result{Status: StatusDegraded, LatencyMS: latency, Error: "http handshake: " + err.Error()}
		}
		return Result{Status: StatusHealthy, LatencyMS: latency}
	default:
		return Result{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	}
}
