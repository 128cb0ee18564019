// Package analysis builds graph representations of flow compositions and
// derives structural metrics, patterns, and optimization suggestions.
package analysis

import (
	"slices"

	"github.com/rendis/streamflow/pkg/schema"
)

// FlowType classifies a node by the kind of work its flow performs.
type FlowType string

const (
	FlowTypeTransformation FlowType = "transformation"
	FlowTypeFiltering      FlowType = "filtering"
	FlowTypeAggregation    FlowType = "aggregation"
	FlowTypeSelection      FlowType = "selection"
	FlowTypeConcurrency    FlowType = "concurrency"
	FlowTypeErrorHandling  FlowType = "error_handling"
	FlowTypeTiming         FlowType = "timing"
	FlowTypeObservability  FlowType = "observability"
	FlowTypeDeduplication  FlowType = "deduplication"
	FlowTypeUtility        FlowType = "utility"
)

// Node is one flow in a graph.
type Node struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	FlowType        FlowType       `json:"flow_type"`
	Description     string         `json:"description,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ComplexityScore int            `json:"complexity_score"`
}

// Edge connects two nodes.
type Edge struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	EdgeType string `json:"edge_type"`
}

// Graph aggregates nodes and edges plus derived entry and exit points.
type Graph struct {
	nodes map[string]*Node
	order []string
	edges []Edge
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode inserts a node. Returns error on duplicate or empty ID.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "graph node requires an id")
	}
	if _, exists := g.nodes[n.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "node %q already in graph", n.ID)
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge inserts an edge. Both endpoints must reference existing nodes.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.nodes[e.SourceID]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "edge source %q not in graph", e.SourceID)
	}
	if _, ok := g.nodes[e.TargetID]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "edge target %q not in graph", e.TargetID)
	}
	g.edges = append(g.edges, e)
	return nil
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id string) *Node { return g.nodes[id] }

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// EntryPoints returns IDs of nodes with no incoming edges.
func (g *Graph) EntryPoints() []string {
	incoming := map[string]int{}
	for _, e := range g.edges {
		incoming[e.TargetID]++
	}
	var entries []string
	for _, id := range g.order {
		if incoming[id] == 0 {
			entries = append(entries, id)
		}
	}
	return entries
}

// ExitPoints returns IDs of nodes with no outgoing edges.
func (g *Graph) ExitPoints() []string {
	outgoing := map[string]int{}
	for _, e := range g.edges {
		outgoing[e.SourceID]++
	}
	var exits []string
	for _, id := range g.order {
		if outgoing[id] == 0 {
			exits = append(exits, id)
		}
	}
	return exits
}

// ComplexityScore is the sum of all node scores.
func (g *Graph) ComplexityScore() int {
	total := 0
	for _, n := range g.nodes {
		total += n.ComplexityScore
	}
	return total
}

// successors returns target IDs of edges out of id, in edge order.
func (g *Graph) successors(id string) []string {
	var out []string
	for _, e := range g.edges {
		if e.SourceID == id {
			out = append(out, e.TargetID)
		}
	}
	return out
}

// Depth is the longest node-count path from any entry point to any
// reachable node. Cyclic edges are not followed twice on one path.
func (g *Graph) Depth() int {
	return len(g.CriticalPath())
}

// CriticalPath returns the node IDs of a longest path from an entry
// point.
func (g *Graph) CriticalPath() []string {
	var best []string
	var walk func(id string, path []string, onPath map[string]bool)
	walk = func(id string, path []string, onPath map[string]bool) {
		path = append(path, id)
		onPath[id] = true
		if len(path) > len(best) {
			best = slices.Clone(path)
		}
		for _, next := range g.successors(id) {
			if !onPath[next] {
				walk(next, path, onPath)
			}
		}
		delete(onPath, id)
	}
	for _, entry := range g.EntryPoints() {
		walk(entry, nil, map[string]bool{})
	}
	// A graph that is one big cycle has no entry points but still has
	// depth; fall back to walking from every node.
	if best == nil && len(g.order) > 0 {
		for _, id := range g.order {
			walk(id, nil, map[string]bool{})
		}
	}
	return best
}

// FindCycles returns every distinct cycle reachable from the entry
// points (or from any node when no entry points exist).
func (g *Graph) FindCycles() [][]string {
	var cycles [][]string
	seen := map[string]bool{}

	var walk func(id string, path []string, index map[string]int)
	walk = func(id string, path []string, index map[string]int) {
		if at, ok := index[id]; ok {
			cycle := slices.Clone(path[at:])
			key := cycleKey(cycle)
			if !seen[key] {
				seen[key] = true
				cycles = append(cycles, cycle)
			}
			return
		}
		index[id] = len(path)
		for _, next := range g.successors(id) {
			walk(next, append(path, id), index)
		}
		delete(index, id)
	}

	starts := g.EntryPoints()
	if len(starts) == 0 {
		starts = g.order
	}
	for _, start := range starts {
		walk(start, nil, map[string]int{})
	}
	return cycles
}

// cycleKey normalizes a cycle to its rotation starting at the smallest
// ID, so the same loop found from different nodes counts once.
func cycleKey(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	min := 0
	for i, id := range cycle {
		if id < cycle[min] {
			min = i
		}
	}
	key := ""
	for i := range cycle {
		key += cycle[(min+i)%len(cycle)] + "->"
	}
	return key
}
