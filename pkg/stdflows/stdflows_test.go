package stdflows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/streamflow/pkg/flow"
	"github.com/rendis/streamflow/pkg/registry"
)

func newCatalogue(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, Register(reg))
	return reg
}

func runNamed(t *testing.T, reg *registry.Registry, name string, items []any) []any {
	t.Helper()
	f, err := registry.Lookup[any, any](reg, name)
	require.NoError(t, err)

	ctx := context.Background()
	out, err := flow.Collect(ctx, f.Run(ctx, flow.FromSlice(items)))
	require.NoError(t, err)
	return out
}

func TestRegister_PopulatesCatalogue(t *testing.T) {
	reg := newCatalogue(t)

	assert.Equal(t, 8, reg.Count())
	assert.ElementsMatch(t, []string{"transformation", "filtering", "deduplication", "utility"}, reg.Categories())
	assert.True(t, reg.Has("identity"))
}

func TestRegister_TwiceConflicts(t *testing.T) {
	reg := newCatalogue(t)
	require.Error(t, Register(reg))
}

func TestStringify(t *testing.T) {
	reg := newCatalogue(t)
	out := runNamed(t, reg, "stringify", []any{1, true, "x"})
	assert.Equal(t, []any{"1", "true", "x"}, out)
}

func TestTrimAndLowercase(t *testing.T) {
	reg := newCatalogue(t)

	assert.Equal(t, []any{"hi", 7}, runNamed(t, reg, "trim_space", []any{"  hi ", 7}))
	assert.Equal(t, []any{"warn", 7}, runNamed(t, reg, "lowercase", []any{"WARN", 7}))
}

func TestDropFilters(t *testing.T) {
	reg := newCatalogue(t)

	assert.Equal(t, []any{"a", 1}, runNamed(t, reg, "drop_nil", []any{"a", nil, 1}))
	assert.Equal(t, []any{"a", 1}, runNamed(t, reg, "drop_empty_strings", []any{"a", "", 1}))
}

func TestDistinct(t *testing.T) {
	reg := newCatalogue(t)
	out := runNamed(t, reg, "distinct", []any{1, "1", 1, 2})
	// 1 and "1" render identically, so only the first survives.
	assert.Equal(t, []any{1, 2}, out)
}

func TestCompactMaps(t *testing.T) {
	reg := newCatalogue(t)
	out := runNamed(t, reg, "compact_maps", []any{
		map[string]any{"a": 1, "b": nil},
		"untouched",
	})
	assert.Equal(t, map[string]any{"a": 1}, out[0])
	assert.Equal(t, "untouched", out[1])
}
