package schema

// Event type constants for the pipeline run event log.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventRunCancelled = "run_cancelled"

	EventFlowStarted   = "flow_started"
	EventFlowCompleted = "flow_completed"
	EventFlowFailed    = "flow_failed"

	EventItemEmitted = "item_emitted"
	EventItemDropped = "item_dropped"
	EventItemErrored = "item_errored"

	EventRetryAttempt           = "retry_attempt"
	EventCircuitBreakerOpen     = "circuit_breaker_open"
	EventCircuitBreakerHalfOpen = "circuit_breaker_half_open"
	EventCircuitBreakerClosed   = "circuit_breaker_closed"
	EventFallbackApplied        = "fallback_applied"

	EventHealthCheckRecorded = "health_check_recorded"
)

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusActive    RunStatus = "active"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// HealthStatus represents the reported state of a health check.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusWarning  HealthStatus = "warning"
	HealthStatusCritical HealthStatus = "critical"
	HealthStatusUnknown  HealthStatus = "unknown"
)
