package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	s, _ := newTestServer(t)
	require.NotNil(t, s)
	assert.NotNil(t, s.MCPServer())
	assert.NotNil(t, s.logger)
}

func TestServerRegistersAllTools(t *testing.T) {
	s, _ := newTestServer(t)

	tools := s.tools()
	require.Len(t, tools, 7)

	names := make([]string, len(tools))
	for i, tl := range tools {
		names[i] = tl.Tool.Name
	}
	assert.ElementsMatch(t, []string{
		"flows.list", "flows.search", "flows.info", "flows.analyze",
		"health.check", "pipeline.define", "pipeline.run",
	}, names)
}
