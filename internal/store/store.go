package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Run events (append-only)
	AppendRunEvent(ctx context.Context, event *RunEvent) error
	GetRunEvents(ctx context.Context, pipelineID string, since int64) ([]*RunEvent, error)
	GetRunEventsByType(ctx context.Context, eventType string, filter RunEventFilter) ([]*RunEvent, error)

	// Health snapshots
	RecordHealthSnapshot(ctx context.Context, snap *HealthSnapshot) error
	ListHealthSnapshots(ctx context.Context, filter SnapshotFilter) ([]*HealthSnapshot, error)
	LatestHealthSnapshot(ctx context.Context) (*HealthSnapshot, error)

	// Pipeline definitions
	SavePipeline(ctx context.Context, p *PipelineRecord) error
	GetPipeline(ctx context.Context, name string) (*PipelineRecord, error)
	ListPipelines(ctx context.Context) ([]*PipelineRecord, error)
	DeletePipeline(ctx context.Context, name string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
