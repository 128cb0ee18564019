package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/streamflow/pkg/flow"
)

func namedFlows(names ...string) []Described {
	out := make([]Described, len(names))
	for i, n := range names {
		out[i] = flow.Identity[int]().WithName(n)
	}
	return out
}

func TestClassifyByKeyword(t *testing.T) {
	assert.Equal(t, FlowTypeTransformation, classify("map(double)"))
	assert.Equal(t, FlowTypeFiltering, classify("filter(even)"))
	assert.Equal(t, FlowTypeErrorHandling, classify("retry(3, map(f))"))
	assert.Equal(t, FlowTypeTiming, classify("debounce(50ms, leading_edge)"))
	assert.Equal(t, FlowTypeConcurrency, classify("race(2)"))
	assert.Equal(t, FlowTypeAggregation, classify("batch(10)"))
	assert.Equal(t, FlowTypeDeduplication, classify("distinct"))
	assert.Equal(t, FlowTypeSelection, classify("if_then(even)"))
	assert.Equal(t, FlowTypeUtility, classify("identity"))
}

func TestAnalyzeCompositionBuildsSequentialEdges(t *testing.T) {
	a := NewAnalyzer()
	g := a.AnalyzeComposition(namedFlows("map(parse)", "filter(valid)", "batch(10)")...)

	require.Len(t, g.Nodes(), 3)
	require.Len(t, g.Edges(), 2)
	assert.Equal(t, "sequential", g.Edges()[0].EdgeType)
	assert.Len(t, g.EntryPoints(), 1)
	assert.Len(t, g.ExitPoints(), 1)
	assert.Equal(t, g.Nodes()[0].ID, g.EntryPoints()[0])
	assert.Equal(t, g.Nodes()[2].ID, g.ExitPoints()[0])
}

func TestGraphComplexityIsSumOfNodes(t *testing.T) {
	a := NewAnalyzer()
	g := a.AnalyzeComposition(namedFlows("map(f)", "retry(3)", "race(2)")...)
	assert.Equal(t, 1+3+4, g.ComplexityScore())
}

func TestAddEdgeValidatesEndpoints(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode(&Node{ID: "a"}))
	require.Error(t, g.AddEdge(Edge{SourceID: "a", TargetID: "ghost"}))
	require.Error(t, g.AddEdge(Edge{SourceID: "ghost", TargetID: "a"}))
}

func TestDepthAndCriticalPath(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, g.AddNode(&Node{ID: id}))
	}
	require.NoError(t, g.AddEdge(Edge{SourceID: "a", TargetID: "b"}))
	require.NoError(t, g.AddEdge(Edge{SourceID: "b", TargetID: "c"}))
	require.NoError(t, g.AddEdge(Edge{SourceID: "a", TargetID: "d"}))

	assert.Equal(t, 3, g.Depth())
	assert.Equal(t, []string{"a", "b", "c"}, g.CriticalPath())
}

func TestFindCycles(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, g.AddNode(&Node{ID: id}))
	}
	require.NoError(t, g.AddEdge(Edge{SourceID: "a", TargetID: "b"}))
	require.NoError(t, g.AddEdge(Edge{SourceID: "b", TargetID: "c"}))
	require.NoError(t, g.AddEdge(Edge{SourceID: "c", TargetID: "b"}))

	cycles := g.FindCycles()
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{"b", "c"}, cycles[0])
}

func TestAcyclicGraphHasNoCycles(t *testing.T) {
	a := NewAnalyzer()
	g := a.AnalyzeComposition(namedFlows("map(f)", "filter(p)")...)
	assert.Empty(t, g.FindCycles())
}

func TestDetectMapFilterPattern(t *testing.T) {
	a := NewAnalyzer()
	g := a.AnalyzeComposition(namedFlows("map(parse)", "filter(valid)")...)

	patterns := a.DetectPatterns(g)
	require.Len(t, patterns, 1)
	assert.Equal(t, "map_filter", patterns[0].Pattern)
	assert.Len(t, patterns[0].Nodes, 2)
}

func TestDetectFanOut(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"hub", "t1", "t2", "t3"} {
		require.NoError(t, g.AddNode(&Node{ID: id}))
	}
	for _, target := range []string{"t1", "t2", "t3"} {
		require.NoError(t, g.AddEdge(Edge{SourceID: "hub", TargetID: target}))
	}

	patterns := NewAnalyzer().DetectPatterns(g)
	require.Len(t, patterns, 1)
	assert.Equal(t, "fan_out", patterns[0].Pattern)
}

func TestDetectLinearPipeline(t *testing.T) {
	a := NewAnalyzer()
	g := a.AnalyzeComposition(namedFlows("identity", "noop", "passthrough", "sink")...)

	patterns := a.DetectPatterns(g)
	require.Len(t, patterns, 1)
	assert.Equal(t, "linear_pipeline", patterns[0].Pattern)
	assert.Len(t, patterns[0].Nodes, 4)
}

func TestDetectErrorHandlingCluster(t *testing.T) {
	a := NewAnalyzer()
	g := a.AnalyzeComposition(namedFlows("retry(3)", "recover(f)")...)

	patterns := a.DetectPatterns(g)
	found := false
	for _, p := range patterns {
		if p.Pattern == "error_handling" {
			found = true
			assert.Len(t, p.Nodes, 2)
		}
	}
	assert.True(t, found)
}

func TestSuggestions(t *testing.T) {
	a := NewAnalyzer()
	g := a.AnalyzeComposition(namedFlows("retry(3)", "race(2)", "debounce(1s)", "timeout(5s)")...)

	suggestions := a.Suggestions(g)
	types := map[string]bool{}
	for _, s := range suggestions {
		types[s.Type] = true
	}
	assert.True(t, types["caching"], "complexity >= 3 nodes should suggest caching")
	assert.True(t, types["batching"], "total complexity > 10 should suggest batching")
}

func TestExportDocument(t *testing.T) {
	a := NewAnalyzer()
	g := a.AnalyzeComposition(namedFlows("map(parse)", "filter(valid)", "batch(10)")...)

	raw, err := a.Export(g)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Contains(t, doc, "graph")
	require.Contains(t, doc, "patterns")
	require.Contains(t, doc, "optimization_suggestions")
	require.Contains(t, doc, "summary")

	graph := doc["graph"].(map[string]any)
	analysis := graph["analysis"].(map[string]any)
	assert.EqualValues(t, 3, analysis["node_count"])
	assert.EqualValues(t, 2, analysis["edge_count"])
	assert.EqualValues(t, 3, analysis["depth"])
}
