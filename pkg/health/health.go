// Package health runs named, timeout-bounded probes and aggregates their
// results into system-level snapshots with bounded history.
package health

import (
	"context"
	"runtime"
	"time"

	"github.com/rendis/streamflow/pkg/schema"
)

// Check is a named boolean probe. Critical checks escalate failures to
// CRITICAL during aggregation; non-critical failures only warn.
type Check struct {
	Name        string
	Description string
	Probe       func(ctx context.Context) (bool, error)
	Timeout     time.Duration
	Critical    bool
	Enabled     bool
	Tags        []string
}

// Result is the outcome of one check execution.
type Result struct {
	Name      string              `json:"name"`
	Status    schema.HealthStatus `json:"status"`
	Message   string              `json:"message"`
	Duration  time.Duration       `json:"duration"`
	Critical  bool                `json:"critical"`
	Error     string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// SystemHealth aggregates every result of one monitor run.
type SystemHealth struct {
	Status    schema.HealthStatus `json:"status"`
	Results   []Result            `json:"results"`
	Timestamp time.Time           `json:"timestamp"`
}

// aggregate derives the overall status: CRITICAL when any critical check
// failed or errored, WARNING on any non-critical failure, otherwise
// HEALTHY; UNKNOWN when nothing ran.
func aggregate(results []Result) schema.HealthStatus {
	if len(results) == 0 {
		return schema.HealthStatusUnknown
	}
	status := schema.HealthStatusHealthy
	for _, r := range results {
		switch r.Status {
		case schema.HealthStatusCritical:
			return schema.HealthStatusCritical
		case schema.HealthStatusWarning:
			status = schema.HealthStatusWarning
		}
	}
	return status
}

// DefaultChecks returns the built-in runtime probes.
func DefaultChecks() []Check {
	return []Check{
		{
			Name:        "heap_usage",
			Description: "heap allocation stays under 1 GiB",
			Probe: func(context.Context) (bool, error) {
				var ms runtime.MemStats
				runtime.ReadMemStats(&ms)
				return ms.HeapAlloc < 1<<30, nil
			},
			Timeout:  time.Second,
			Critical: false,
			Enabled:  true,
			Tags:     []string{"runtime"},
		},
		{
			Name:        "goroutine_count",
			Description: "goroutine count stays under 10000",
			Probe: func(context.Context) (bool, error) {
				return runtime.NumGoroutine() < 10000, nil
			},
			Timeout:  time.Second,
			Critical: false,
			Enabled:  true,
			Tags:     []string{"runtime"},
		},
		{
			Name:        "scheduler_latency",
			Description: "a 1ms sleep completes within 50ms",
			Probe: func(ctx context.Context) (bool, error) {
				start := time.Now()
				timer := time.NewTimer(time.Millisecond)
				defer timer.Stop()
				select {
				case <-timer.C:
				case <-ctx.Done():
					return false, ctx.Err()
				}
				return time.Since(start) < 50*time.Millisecond, nil
			},
			Timeout:  time.Second,
			Critical: false,
			Enabled:  true,
			Tags:     []string{"runtime"},
		},
	}
}
