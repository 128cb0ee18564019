package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/streamflow/pkg/schema"
)

// RunEvent is an immutable entry in the pipeline run log.
type RunEvent struct {
	ID         int64           `json:"id"`
	PipelineID string          `json:"pipeline_id"`
	RunID      string          `json:"run_id,omitempty"`
	FlowName   string          `json:"flow_name,omitempty"`
	Type       string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// HealthSnapshot is a persisted system health report.
type HealthSnapshot struct {
	ID         int64               `json:"id"`
	Status     schema.HealthStatus `json:"status"`
	Report     json.RawMessage     `json:"report"`
	RecordedAt time.Time           `json:"recorded_at"`
}

// PipelineRecord is a persisted declarative pipeline definition.
type PipelineRecord struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Definition  json.RawMessage `json:"definition"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RunEventFilter specifies criteria for listing run events.
type RunEventFilter struct {
	PipelineID string     `json:"pipeline_id,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	FlowName   string     `json:"flow_name,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// SnapshotFilter specifies criteria for listing health snapshots.
type SnapshotFilter struct {
	Status *schema.HealthStatus `json:"status,omitempty"`
	Since  *time.Time           `json:"since,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
}
