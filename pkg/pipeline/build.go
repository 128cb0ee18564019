package pipeline

import (
	"fmt"

	"github.com/rendis/streamflow/pkg/analysis"
	"github.com/rendis/streamflow/pkg/exprflow"
	"github.com/rendis/streamflow/pkg/flow"
	"github.com/rendis/streamflow/pkg/registry"
	"github.com/rendis/streamflow/pkg/schema"
)

// Build resolves a definition into a single runnable flow. Registry
// stages must be registered as Flow[any, any]; expression stages are
// compiled on first use by their engine.
func Build(def *Definition, reg *registry.Registry) (flow.Flow[any, any], error) {
	if def == nil {
		return flow.Flow[any, any]{}, schema.NewError(schema.ErrCodeValidation, "pipeline definition is nil")
	}
	if len(def.Stages) == 0 {
		return flow.Flow[any, any]{}, schema.NewError(schema.ErrCodeValidation, "pipeline has no stages")
	}

	flows := make([]flow.Flow[any, any], 0, len(def.Stages))
	for i, stage := range def.Stages {
		f, err := buildStage(stage, reg)
		if err != nil {
			return flow.Flow[any, any]{}, schema.NewErrorf(schema.ErrCodeConfiguration,
				"stage %d of pipeline %q: %s", i, def.Name, err.Error()).WithCause(err)
		}
		flows = append(flows, f)
	}

	return flow.Pipe(flows...).WithName(def.Name), nil
}

func buildStage(stage Stage, reg *registry.Registry) (flow.Flow[any, any], error) {
	if stage.Flow != "" {
		return registry.Lookup[any, any](reg, stage.Flow)
	}

	engine, err := exprflow.EngineFor(stage.Engine)
	if err != nil {
		return flow.Flow[any, any]{}, err
	}
	switch stage.Kind {
	case "map":
		return exprflow.Transform(engine, stage.Expr), nil
	case "filter":
		return exprflow.Filter(engine, stage.Expr), nil
	default:
		return flow.Flow[any, any]{}, schema.NewErrorf(schema.ErrCodeConfiguration,
			"unknown stage kind %q", stage.Kind)
	}
}

// Analyze produces the dependency graph of a definition's stages
// without building runnable flows for them.
func Analyze(def *Definition, reg *registry.Registry, analyzer *analysis.Analyzer) (*analysis.Graph, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "pipeline definition is nil")
	}

	described := make([]analysis.Described, 0, len(def.Stages))
	for i, stage := range def.Stages {
		if stage.Flow != "" {
			entry, err := reg.Get(stage.Flow)
			if err != nil {
				return nil, err
			}
			described = append(described, entry)
			continue
		}
		described = append(described, stageDescriptor{
			name: fmt.Sprintf("%s_%s(%s)", stage.Engine, stage.Kind, stage.Expr),
			metadata: map[string]any{
				"stage":  i,
				"engine": stage.Engine,
				"expr":   stage.Expr,
			},
		})
	}

	return analyzer.AnalyzeComposition(described...), nil
}

// stageDescriptor adapts an inline expression stage to the analyzer.
type stageDescriptor struct {
	name     string
	metadata map[string]any
}

func (d stageDescriptor) Name() string             { return d.name }
func (d stageDescriptor) Metadata() map[string]any { return d.metadata }
