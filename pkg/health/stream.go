package health

import (
	"context"
	"fmt"

	"github.com/rendis/streamflow/pkg/flow"
	"github.com/rendis/streamflow/pkg/schema"
)

const defaultCheckInterval = 100

// CheckStream is a passthrough that runs the monitor's checks after
// every Nth item (default 100). A CRITICAL aggregate terminates the
// stream with a CONFIGURATION_ERROR naming the failing checks.
func CheckStream[T any](m *Monitor, every int) flow.Flow[T, T] {
	if every <= 0 {
		every = defaultCheckInterval
	}
	name := fmt.Sprintf("health_check_stream(%d)", every)
	return flow.New(name, func(ctx context.Context, in flow.Stream[T]) flow.Stream[T] {
		return func(yield func(T, error) bool) {
			count := 0
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				if !yield(item, nil) {
					return false
				}
				count++
				if count%every != 0 {
					return true
				}
				snapshot := m.RunChecks(ctx)
				if snapshot.Status == schema.HealthStatusCritical {
					var zero T
					yield(zero, schema.NewErrorf(schema.ErrCodeConfiguration,
						"critical health check failure: %s", criticalNames(snapshot)).
						WithFlow(name).
						WithDetails(map[string]any{"status": string(snapshot.Status)}))
					return false
				}
				return true
			})
		}
	})
}

func criticalNames(s SystemHealth) string {
	names := ""
	for _, r := range s.Results {
		if r.Status == schema.HealthStatusCritical {
			if names != "" {
				names += ", "
			}
			names += r.Name
		}
	}
	if names == "" {
		return "unknown"
	}
	return names
}
