package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/streamflow/pkg/flow"
	"github.com/rendis/streamflow/pkg/schema"
)

func doubler() flow.Flow[int, int] {
	return flow.Map(func(n int) int { return n * 2 }).
		WithName("doubler").
		WithMetadata("category", "math")
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("double", doubler(), "math"))

	entry, err := r.Get("double")
	require.NoError(t, err)
	assert.Equal(t, "doubler", entry.Name())
	assert.True(t, r.Has("double"))
	assert.Equal(t, 1, r.Count())
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("double", doubler()))

	err := r.Register("double", doubler())
	var ferr *schema.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeConflict, ferr.Code)
}

func TestGetUnknownFails(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	var ferr *schema.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeNotFound, ferr.Code)
}

func TestListByCategory(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("double", doubler(), "math", "demo"))
	require.NoError(t, r.Register("upper", flow.Map(func(s string) string { return s }).WithName("upper"), "text"))

	assert.Equal(t, []string{"double", "upper"}, r.List())
	assert.Equal(t, []string{"double"}, r.List("math"))
	assert.Empty(t, r.List("unknown"))
	assert.Equal(t, []string{"demo", "math", "text"}, r.Categories())
}

func TestSearchMatchesNameAndMetadata(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("double", doubler()))
	require.NoError(t, r.Register("noop", flow.Identity[int]()))

	assert.Equal(t, []string{"double"}, r.Search("DOUB"))
	// Metadata value "math" matches case-insensitively.
	assert.Equal(t, []string{"double"}, r.Search("Math"))
	assert.Empty(t, r.Search("nothing"))
}

func TestRemovePurgesCategories(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("double", doubler(), "math", "demo"))
	require.NoError(t, r.Register("triple", flow.Map(func(n int) int { return n * 3 }), "math"))

	require.NoError(t, r.Remove("double"))
	assert.False(t, r.Has("double"))
	// "demo" became empty and was dropped; "math" survives.
	assert.Equal(t, []string{"math"}, r.Categories())

	err := r.Remove("double")
	require.Error(t, err)
}

func TestClearCategory(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("double", doubler(), "math"))
	require.NoError(t, r.Register("upper", flow.Identity[string](), "text"))

	r.Clear("math")
	assert.False(t, r.Has("double"))
	assert.True(t, r.Has("upper"))

	r.Clear()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.Categories())
}

func TestInfo(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("double", doubler(), "math", "demo"))

	info, err := r.Info("double")
	require.NoError(t, err)
	assert.Equal(t, "double", info.Name)
	assert.Equal(t, "doubler", info.FlowName)
	assert.Equal(t, []string{"demo", "math"}, info.Categories)
	assert.Equal(t, "math", info.Metadata["category"])
}

func TestLookupTyped(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("double", doubler()))

	typed, err := Lookup[int, int](r, "double")
	require.NoError(t, err)

	ctx := context.Background()
	got, err := flow.Collect(ctx, typed.Run(ctx, flow.Range(1, 4)))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, got)

	_, err = Lookup[string, string](r, "double")
	var ferr *schema.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeValidation, ferr.Code)
}
