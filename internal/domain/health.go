package domain

import "time"

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency failed but the service still serves cached content.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a dependency timed out or the probe was cancelled.
	HealthStatusError = "error"
)

// HealthCheck describes the outcome of one dependency probe.
type HealthCheck struct {
	Status    string        `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// HealthReport aggregates dependency probes for the readiness endpoint.
type HealthReport struct {
	Status      string                 `json:"status"`
	Checks      map[string]HealthCheck `json:"checks"`
	GeneratedAt time.Time              `json:"generatedAt"`
}
