package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/streamflow/internal/store"
	"github.com/rendis/streamflow/pkg/analysis"
	"github.com/rendis/streamflow/pkg/flow"
	"github.com/rendis/streamflow/pkg/registry"
	"github.com/rendis/streamflow/pkg/schema"
)

const enricherJSON = `{
	"name": "log-enricher",
	"description": "drops debug noise and extracts messages",
	"stages": [
		{"kind": "filter", "engine": "cel", "expr": "item.level != \"debug\""},
		{"kind": "map", "engine": "jq", "expr": ".msg"}
	]
}`

func logItems() []any {
	return []any{
		map[string]any{"level": "debug", "msg": "verbose"},
		map[string]any{"level": "info", "msg": "started"},
		map[string]any{"level": "error", "msg": "disk full"},
	}
}

// --- Parsing and validation ---

func TestParse_Valid(t *testing.T) {
	def, err := Parse([]byte(enricherJSON))
	require.NoError(t, err)
	assert.Equal(t, "log-enricher", def.Name)
	require.Len(t, def.Stages, 2)
	assert.Equal(t, "filter", def.Stages[0].Kind)
	assert.Equal(t, ".msg", def.Stages[1].Expr)
}

func TestParse_RejectsMissingName(t *testing.T) {
	_, err := Parse([]byte(`{"stages": [{"flow": "noop"}]}`))
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestParse_RejectsEmptyStages(t *testing.T) {
	_, err := Parse([]byte(`{"name": "p", "stages": []}`))
	require.Error(t, err)
}

func TestParse_RejectsMixedStage(t *testing.T) {
	// A stage must be either a flow reference or an expression, not both.
	_, err := Parse([]byte(`{"name": "p", "stages": [{"flow": "noop", "kind": "map", "engine": "cel", "expr": "item"}]}`))
	require.Error(t, err)
}

func TestParse_RejectsUnknownEngine(t *testing.T) {
	_, err := Parse([]byte(`{"name": "p", "stages": [{"kind": "map", "engine": "lua", "expr": "item"}]}`))
	require.Error(t, err)
}

func TestParse_RejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{`))
	require.Error(t, err)
}

// --- Building ---

func TestBuild_ExpressionStages(t *testing.T) {
	def, err := Parse([]byte(enricherJSON))
	require.NoError(t, err)

	f, err := Build(def, registry.New())
	require.NoError(t, err)
	assert.Equal(t, "log-enricher", f.Name())

	ctx := context.Background()
	out, err := flow.Collect(ctx, f.Run(ctx, flow.FromSlice(logItems())))
	require.NoError(t, err)
	assert.Equal(t, []any{"started", "disk full"}, out)
}

func TestBuild_RegistryStage(t *testing.T) {
	reg := registry.New()
	double := flow.Map(func(item any) any {
		return item.(float64) * 2
	}).WithName("double")
	require.NoError(t, reg.Register("double", double))

	def := &Definition{
		Name: "doubler",
		Stages: []Stage{
			{Kind: "map", Engine: "jq", Expr: ". + 1"},
			{Flow: "double"},
		},
	}
	f, err := Build(def, reg)
	require.NoError(t, err)

	ctx := context.Background()
	out, err := flow.Collect(ctx, f.Run(ctx, flow.FromSlice([]any{1, 2})))
	require.NoError(t, err)
	assert.Equal(t, []any{float64(4), float64(6)}, out)
}

func TestBuild_UnknownFlowReference(t *testing.T) {
	def := &Definition{Name: "p", Stages: []Stage{{Flow: "missing"}}}

	_, err := Build(def, registry.New())
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeConfiguration, fe.Code)
	assert.Contains(t, fe.Message, "stage 0")
}

// --- Analysis ---

func TestAnalyze_BuildsGraph(t *testing.T) {
	def, err := Parse([]byte(enricherJSON))
	require.NoError(t, err)

	g, err := Analyze(def, registry.New(), analysis.NewAnalyzer())
	require.NoError(t, err)
	assert.Len(t, g.Nodes(), 2)
	assert.Len(t, g.Edges(), 1)
	assert.Equal(t, analysis.FlowTypeFiltering, g.Nodes()[0].FlowType)
}

// --- Runner ---

type captureAppender struct {
	mu     sync.Mutex
	events []*store.RunEvent
}

func (c *captureAppender) AppendRunEvent(_ context.Context, e *store.RunEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureAppender) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

func TestRunner_RecordsLifecycleEvents(t *testing.T) {
	appender := &captureAppender{}
	runner := NewRunner(registry.New(), appender, nil)

	def, err := Parse([]byte(enricherJSON))
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), def, logItems())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.ItemsIn)
	assert.Equal(t, 2, res.ItemsOut)
	assert.Equal(t, []any{"started", "disk full"}, res.Output)

	assert.Equal(t, []string{schema.EventRunStarted, schema.EventRunCompleted}, appender.types())
	assert.Equal(t, "log-enricher", appender.events[0].PipelineID)
	assert.Equal(t, res.RunID, appender.events[0].RunID)
}

func TestRunner_RecordsFailure(t *testing.T) {
	appender := &captureAppender{}
	runner := NewRunner(registry.New(), appender, nil)

	def := &Definition{
		Name:   "broken",
		Stages: []Stage{{Kind: "map", Engine: "cel", Expr: "item.field.that.breaks =="}},
	}
	_, err := runner.Run(context.Background(), def, []any{1})
	require.Error(t, err)

	assert.Equal(t, []string{schema.EventRunStarted, schema.EventRunFailed}, appender.types())
}

func TestRunner_RunRaw(t *testing.T) {
	runner := NewRunner(registry.New(), nil, nil)

	res, err := runner.RunRaw(context.Background(), []byte(enricherJSON), logItems())
	require.NoError(t, err)
	assert.Equal(t, 2, res.ItemsOut)

	_, err = runner.RunRaw(context.Background(), []byte(`{"name":"x"}`), nil)
	require.Error(t, err)
}
