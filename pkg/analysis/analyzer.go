package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Described is the analyzer's view of a flow.
type Described interface {
	Name() string
	Metadata() map[string]any
}

// Pattern is one recognized structural pattern.
type Pattern struct {
	Pattern     string   `json:"pattern"`
	Nodes       []string `json:"nodes"`
	Description string   `json:"description"`
}

// Suggestion proposes one structural optimization.
type Suggestion struct {
	Type             string   `json:"type"`
	AffectedNodes    []string `json:"affected_nodes"`
	PotentialBenefit string   `json:"potential_benefit"`
}

// typeKeywords maps name fragments to flow types; first match wins.
var typeKeywords = []struct {
	fragment string
	flowType FlowType
}{
	{"retry", FlowTypeErrorHandling},
	{"recover", FlowTypeErrorHandling},
	{"circuit_breaker", FlowTypeErrorHandling},
	{"catch", FlowTypeErrorHandling},
	{"fallback", FlowTypeErrorHandling},
	{"distinct", FlowTypeDeduplication},
	{"batch", FlowTypeAggregation},
	{"chunk", FlowTypeAggregation},
	{"window", FlowTypeAggregation},
	{"group", FlowTypeAggregation},
	{"scan", FlowTypeAggregation},
	{"buffer", FlowTypeAggregation},
	{"memoize", FlowTypeAggregation},
	{"pairwise", FlowTypeAggregation},
	{"if_then", FlowTypeSelection},
	{"switch", FlowTypeSelection},
	{"branch", FlowTypeSelection},
	{"while", FlowTypeSelection},
	{"route", FlowTypeSelection},
	{"race", FlowTypeConcurrency},
	{"parallel", FlowTypeConcurrency},
	{"merge", FlowTypeConcurrency},
	{"zip", FlowTypeConcurrency},
	{"combine", FlowTypeConcurrency},
	{"delay", FlowTypeTiming},
	{"throttle", FlowTypeTiming},
	{"debounce", FlowTypeTiming},
	{"timeout", FlowTypeTiming},
	{"sample", FlowTypeTiming},
	{"log", FlowTypeObservability},
	{"trace", FlowTypeObservability},
	{"label", FlowTypeObservability},
	{"count", FlowTypeObservability},
	{"tap", FlowTypeObservability},
	{"then", FlowTypeObservability},
	{"filter", FlowTypeFiltering},
	{"guard", FlowTypeFiltering},
	{"take", FlowTypeFiltering},
	{"skip", FlowTypeFiltering},
	{"map", FlowTypeTransformation},
	{"transform", FlowTypeTransformation},
	{"expand", FlowTypeTransformation},
	{"from_func", FlowTypeTransformation},
	{"flatten", FlowTypeTransformation},
}

// typeComplexity is the base complexity score per flow type.
var typeComplexity = map[FlowType]int{
	FlowTypeTransformation: 1,
	FlowTypeFiltering:      1,
	FlowTypeObservability:  1,
	FlowTypeUtility:        1,
	FlowTypeDeduplication:  2,
	FlowTypeAggregation:    2,
	FlowTypeSelection:      2,
	FlowTypeTiming:         3,
	FlowTypeErrorHandling:  3,
	FlowTypeConcurrency:    4,
}

// Analyzer builds flow graphs and inspects their structure.
type Analyzer struct{}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// AnalyzeFlow builds a single-node graph for one flow.
func (a *Analyzer) AnalyzeFlow(f Described) *Graph {
	g := NewGraph()
	g.AddNode(a.nodeFor(f))
	return g
}

// AnalyzeComposition builds a graph for a pipeline of flows executed in
// order, with a sequential edge between each consecutive pair.
func (a *Analyzer) AnalyzeComposition(flows ...Described) *Graph {
	g := NewGraph()
	var prev *Node
	for _, f := range flows {
		n := a.nodeFor(f)
		g.AddNode(n)
		if prev != nil {
			g.AddEdge(Edge{SourceID: prev.ID, TargetID: n.ID, EdgeType: "sequential"})
		}
		prev = n
	}
	return g
}

func (a *Analyzer) nodeFor(f Described) *Node {
	name := f.Name()
	ft := classify(name)
	return &Node{
		ID:              uuid.NewString(),
		Name:            name,
		FlowType:        ft,
		Description:     fmt.Sprintf("%s flow %q", ft, name),
		Metadata:        f.Metadata(),
		ComplexityScore: typeComplexity[ft],
	}
}

// classify maps a flow name to its type by keyword.
func classify(name string) FlowType {
	lower := strings.ToLower(name)
	for _, kw := range typeKeywords {
		if strings.Contains(lower, kw.fragment) {
			return kw.flowType
		}
	}
	return FlowTypeUtility
}

// DetectPatterns recognizes structural patterns in a graph.
func (a *Analyzer) DetectPatterns(g *Graph) []Pattern {
	var patterns []Pattern

	for _, e := range g.Edges() {
		src, dst := g.Node(e.SourceID), g.Node(e.TargetID)
		if src.FlowType == FlowTypeTransformation && dst.FlowType == FlowTypeFiltering {
			patterns = append(patterns, Pattern{
				Pattern:     "map_filter",
				Nodes:       []string{src.ID, dst.ID},
				Description: "transformation immediately followed by filtering",
			})
		}
	}

	for _, n := range g.Nodes() {
		if targets := g.successors(n.ID); len(targets) >= 3 {
			patterns = append(patterns, Pattern{
				Pattern:     "fan_out",
				Nodes:       append([]string{n.ID}, targets...),
				Description: fmt.Sprintf("node fans out to %d targets", len(targets)),
			})
		}
	}

	if p, ok := linearPipeline(g); ok {
		patterns = append(patterns, p)
	}

	var errNodes []string
	for _, n := range g.Nodes() {
		if n.FlowType == FlowTypeErrorHandling {
			errNodes = append(errNodes, n.ID)
		}
	}
	if len(errNodes) >= 2 {
		patterns = append(patterns, Pattern{
			Pattern:     "error_handling",
			Nodes:       errNodes,
			Description: "cluster of error-handling flows",
		})
	}
	return patterns
}

// linearPipeline reports a single-entry, single-exit chain of at least
// four nodes.
func linearPipeline(g *Graph) (Pattern, bool) {
	if len(g.Nodes()) < 4 {
		return Pattern{}, false
	}
	entries, exits := g.EntryPoints(), g.ExitPoints()
	if len(entries) != 1 || len(exits) != 1 {
		return Pattern{}, false
	}
	var chain []string
	id := entries[0]
	for {
		chain = append(chain, id)
		next := g.successors(id)
		if len(next) == 0 {
			break
		}
		if len(next) > 1 {
			return Pattern{}, false
		}
		id = next[0]
	}
	if len(chain) < 4 || len(chain) != len(g.Nodes()) {
		return Pattern{}, false
	}
	return Pattern{
		Pattern:     "linear_pipeline",
		Nodes:       chain,
		Description: fmt.Sprintf("linear chain of %d flows", len(chain)),
	}, true
}

// Suggestions proposes optimizations based on node and graph complexity.
func (a *Analyzer) Suggestions(g *Graph) []Suggestion {
	var suggestions []Suggestion

	var heavy []string
	for _, n := range g.Nodes() {
		if n.ComplexityScore >= 3 {
			heavy = append(heavy, n.ID)
		}
	}
	if len(heavy) > 0 {
		suggestions = append(suggestions, Suggestion{
			Type:             "caching",
			AffectedNodes:    heavy,
			PotentialBenefit: "memoize expensive flows to avoid recomputation",
		})
	}

	if g.ComplexityScore() > 10 {
		var all []string
		for _, n := range g.Nodes() {
			all = append(all, n.ID)
		}
		suggestions = append(suggestions, Suggestion{
			Type:             "batching",
			AffectedNodes:    all,
			PotentialBenefit: "batch items to amortize per-item overhead across the pipeline",
		})
	}

	for _, e := range g.Edges() {
		src, dst := g.Node(e.SourceID), g.Node(e.TargetID)
		if src.FlowType == FlowTypeTransformation && dst.FlowType == FlowTypeTransformation {
			suggestions = append(suggestions, Suggestion{
				Type:             "parallelization",
				AffectedNodes:    []string{src.ID, dst.ID},
				PotentialBenefit: "independent sequential transformations can run concurrently",
			})
		}
	}
	return suggestions
}

// exportDoc is the JSON analysis document layout.
type exportDoc struct {
	Graph struct {
		Nodes       []*Node  `json:"nodes"`
		Edges       []Edge   `json:"edges"`
		EntryPoints []string `json:"entry_points"`
		ExitPoints  []string `json:"exit_points"`
		Analysis    struct {
			ComplexityScore int        `json:"complexity_score"`
			NodeCount       int        `json:"node_count"`
			EdgeCount       int        `json:"edge_count"`
			Depth           int        `json:"depth"`
			CriticalPath    []string   `json:"critical_path"`
			Cycles          [][]string `json:"cycles"`
		} `json:"analysis"`
	} `json:"graph"`
	Patterns    []Pattern    `json:"patterns"`
	Suggestions []Suggestion `json:"optimization_suggestions"`
	Summary     string       `json:"summary"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Export renders the full analysis document for a graph as JSON.
func (a *Analyzer) Export(g *Graph) ([]byte, error) {
	var doc exportDoc
	doc.Graph.Nodes = g.Nodes()
	doc.Graph.Edges = g.Edges()
	doc.Graph.EntryPoints = g.EntryPoints()
	doc.Graph.ExitPoints = g.ExitPoints()
	doc.Graph.Analysis.ComplexityScore = g.ComplexityScore()
	doc.Graph.Analysis.NodeCount = len(g.Nodes())
	doc.Graph.Analysis.EdgeCount = len(g.Edges())
	doc.Graph.Analysis.Depth = g.Depth()
	doc.Graph.Analysis.CriticalPath = g.CriticalPath()
	doc.Graph.Analysis.Cycles = g.FindCycles()
	doc.Patterns = a.DetectPatterns(g)
	doc.Suggestions = a.Suggestions(g)
	doc.Summary = fmt.Sprintf("%d flows, %d edges, total complexity %d, %d patterns detected",
		doc.Graph.Analysis.NodeCount, doc.Graph.Analysis.EdgeCount,
		doc.Graph.Analysis.ComplexityScore, len(doc.Patterns))
	doc.GeneratedAt = time.Now().UTC()
	return json.MarshalIndent(doc, "", "  ")
}
