package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/streamflow/internal/logging"
	"github.com/rendis/streamflow/internal/store"
	"github.com/rendis/streamflow/pkg/flow"
	"github.com/rendis/streamflow/pkg/registry"
	"github.com/rendis/streamflow/pkg/schema"
)

// EventAppender persists run events. Satisfied by store.LibSQLStore.
type EventAppender interface {
	AppendRunEvent(ctx context.Context, event *store.RunEvent) error
}

// Result summarizes a completed pipeline run.
type Result struct {
	RunID    string        `json:"run_id"`
	Pipeline string        `json:"pipeline"`
	ItemsIn  int           `json:"items_in"`
	ItemsOut int           `json:"items_out"`
	Output   []any         `json:"output"`
	Duration time.Duration `json:"duration"`
}

// Runner executes pipeline definitions, logging each run with
// correlation IDs and appending lifecycle events to the run log.
type Runner struct {
	registry *registry.Registry
	events   EventAppender
	logger   *slog.Logger
}

// NewRunner creates a Runner. The appender may be nil, in which case
// runs are not persisted.
func NewRunner(reg *registry.Registry, events EventAppender, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{registry: reg, events: events, logger: logger}
}

// Run builds the definition and pushes the input items through it.
func (r *Runner) Run(ctx context.Context, def *Definition, items []any) (*Result, error) {
	f, err := Build(def, r.registry)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.WithIDs(ctx, def.Name, runID, f.Name())
	logger := logging.LogWith(ctx, r.logger)

	start := time.Now()
	logger.Info("pipeline run started", "stages", len(def.Stages), "items_in", len(items))
	r.append(ctx, def.Name, runID, schema.EventRunStarted, map[string]any{
		"stages":   len(def.Stages),
		"items_in": len(items),
	})

	out, err := flow.Collect(ctx, f.Run(ctx, flow.FromSlice(items)))
	elapsed := time.Since(start)

	if err != nil {
		logger.Error("pipeline run failed", "error", err, "duration", elapsed)
		r.append(ctx, def.Name, runID, schema.EventRunFailed, map[string]any{
			"error":    err.Error(),
			"duration": elapsed.String(),
		})
		return nil, err
	}

	logger.Info("pipeline run completed", "items_out", len(out), "duration", elapsed)
	r.append(ctx, def.Name, runID, schema.EventRunCompleted, map[string]any{
		"items_in":  len(items),
		"items_out": len(out),
		"duration":  elapsed.String(),
	})

	return &Result{
		RunID:    runID,
		Pipeline: def.Name,
		ItemsIn:  len(items),
		ItemsOut: len(out),
		Output:   out,
		Duration: elapsed,
	}, nil
}

// RunRaw parses, validates and runs a definition from raw JSON.
func (r *Runner) RunRaw(ctx context.Context, raw []byte, items []any) (*Result, error) {
	def, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, def, items)
}

func (r *Runner) append(ctx context.Context, pipelineID, runID, eventType string, payload map[string]any) {
	if r.events == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	event := &store.RunEvent{
		PipelineID: pipelineID,
		RunID:      runID,
		Type:       eventType,
		Payload:    raw,
	}
	if err := r.events.AppendRunEvent(ctx, event); err != nil {
		logging.LogWith(ctx, r.logger).Warn("append run event failed", "event_type", eventType, "error", err)
	}
}
