package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/streamflow/internal/store"
	"github.com/rendis/streamflow/pkg/analysis"
	"github.com/rendis/streamflow/pkg/pipeline"
)

// handleList returns flow names, optionally scoped to one category.
func (s *Server) handleList(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")

	var names []string
	if category != "" {
		names = s.registry.List(category)
	} else {
		names = s.registry.List()
	}

	return marshalResult(map[string]any{
		"flows":      names,
		"count":      len(names),
		"categories": s.registry.Categories(),
	})
}

// handleSearch performs a case-insensitive catalogue search.
func (s *Server) handleSearch(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}

	matches := s.registry.Search(query)
	return marshalResult(map[string]any{
		"query":   query,
		"matches": matches,
		"count":   len(matches),
	})
}

// handleInfo returns the registration details of one flow.
func (s *Server) handleInfo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}

	info, infoErr := s.registry.Info(name)
	if infoErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("flow lookup failed: %v", infoErr)), nil
	}
	return marshalResult(info)
}

// handleAnalyze builds and exports the graph of a named composition.
func (s *Server) handleAnalyze(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawNames := req.GetStringSlice("flows", nil)
	if len(rawNames) == 0 {
		return mcp.NewToolResultError("flows must be a non-empty array of flow names"), nil
	}

	described := make([]analysis.Described, 0, len(rawNames))
	for _, name := range rawNames {
		entry, err := s.registry.Get(name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("flow lookup failed: %v", err)), nil
		}
		described = append(described, entry)
	}

	graph := s.analyzer.AnalyzeComposition(described...)
	data, err := s.analyzer.Export(graph)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

// handleHealth runs all checks and reports aggregated status.
func (s *Server) handleHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot := s.monitor.RunChecks(ctx)

	if req.GetBool("history", false) {
		data, err := s.monitor.ExportReport()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
		}
		return mcp.NewToolResultJSON(json.RawMessage(data))
	}
	return marshalResult(snapshot)
}

// handleDefine validates a pipeline definition and persists it.
func (s *Server) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}

	raw, err := json.Marshal(defRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}

	def, parseErr := pipeline.Parse(raw)
	if parseErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("definition rejected: %v", parseErr)), nil
	}

	// Resolve eagerly so broken flow references fail at define time.
	if _, buildErr := pipeline.Build(def, s.registry); buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("definition rejected: %v", buildErr)), nil
	}

	record := &store.PipelineRecord{
		Name:        def.Name,
		Description: def.Description,
		Definition:  raw,
		CreatedAt:   time.Now().UTC(),
	}
	if storeErr := s.store.SavePipeline(ctx, record); storeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store pipeline: %v", storeErr)), nil
	}

	return marshalResult(map[string]any{
		"name":   def.Name,
		"stages": len(def.Stages),
	})
}

// handleRun executes a stored pipeline against the given items.
func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	items, ok := req.GetArguments()["items"].([]any)
	if !ok {
		return mcp.NewToolResultError("items must be an array"), nil
	}

	record, getErr := s.store.GetPipeline(ctx, name)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("pipeline lookup failed: %v", getErr)), nil
	}

	result, runErr := s.runner.RunRaw(ctx, record.Definition, items)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("pipeline run failed: %v", runErr)), nil
	}
	return marshalResult(result)
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
