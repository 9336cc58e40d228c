package client

import "time"

// ServiceStatus is the stored record for one managed service as reported by
// the admin API.
type ServiceStatus struct {
	Name              string     `json:"name"`
	Kind              string     `json:"kind"`
	Port              uint16     `json:"port"`
	PID               *int       `json:"pid,omitempty"`
	Status            string     `json:"status"`
	LastHealthCheckAt *time.Time `json:"last_health_check_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HealthStatus is the outcome of one health check: healthy, degraded, or
// unhealthy, with the probe latency and an optional diagnostic.
type HealthStatus struct {
	Status         string `json:"status"`
	LatencyMS      int64  `json:"latency_ms"`
	ToolsAvailable int    `json:"tools_available,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ValidateResult reports whether a service's static configuration checks out.
type ValidateResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
