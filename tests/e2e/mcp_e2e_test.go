package e2e

import (
	"context"
	"encoding/json"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/streamflow/pkg/schema"
)

// callTool invokes a tool through the underlying MCP server so the
// full request path (routing, recovery middleware) is exercised.
func callTool(t *testing.T, h *harness, tool string, args map[string]any) map[string]any {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      tool,
			"arguments": args,
		},
	})
	require.NoError(t, err)

	respMsg := h.server.MCPServer().HandleMessage(context.Background(), raw)
	respRaw, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var envelope struct {
		Result *mcptypes.CallToolResult `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(respRaw, &envelope))
	require.Nil(t, envelope.Error, "rpc error calling %s", tool)
	require.NotNil(t, envelope.Result)
	require.False(t, envelope.Result.IsError, "tool %s returned error: %v", tool, envelope.Result.Content)

	text := mcptypes.GetTextFromContent(envelope.Result.Content[0])
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &doc))
	return doc
}

func TestMCPCatalogueFlow(t *testing.T) {
	h := newHarness(t)

	listed := callTool(t, h, "flows.list", nil)
	assert.Equal(t, float64(8), listed["count"])

	found := callTool(t, h, "flows.search", map[string]any{"query": "trim"})
	assert.Equal(t, []any{"trim_space"}, found["matches"])

	info := callTool(t, h, "flows.info", map[string]any{"name": "trim_space"})
	assert.Equal(t, "map(trim_space)", info["flow_name"])
}

func TestMCPAnalyze(t *testing.T) {
	h := newHarness(t)

	doc := callTool(t, h, "flows.analyze", map[string]any{
		"flows": []any{"drop_nil", "stringify", "distinct"},
	})
	graph := doc["graph"].(map[string]any)
	assert.Equal(t, float64(3), graph["node_count"])
	assert.Equal(t, float64(2), graph["edge_count"])
	assert.NotNil(t, doc["summary"])
}

func TestMCPHealthCheck(t *testing.T) {
	h := newHarness(t)

	doc := callTool(t, h, "health.check", nil)
	assert.Equal(t, string(schema.HealthStatusHealthy), doc["status"])
}

func TestMCPDefineAndRunPipeline(t *testing.T) {
	h := newHarness(t)

	defined := callTool(t, h, "pipeline.define", map[string]any{
		"definition": map[string]any{
			"name": "cleaner",
			"stages": []any{
				map[string]any{"flow": "stringify"},
				map[string]any{"flow": "lowercase"},
			},
		},
	})
	assert.Equal(t, "cleaner", defined["name"])

	run := callTool(t, h, "pipeline.run", map[string]any{
		"name":  "cleaner",
		"items": []any{"HELLO", 42},
	})
	assert.Equal(t, []any{"hello", "42"}, run["output"])

	// Run events landed in the shared store.
	events, err := h.store.GetRunEvents(context.Background(), "cleaner", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
