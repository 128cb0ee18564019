package expressions

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/streamflow/pkg/schema"
)

// --- CEL ---

func TestNewCELEngine(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.NotNil(t, e)
	assert.Equal(t, "cel", e.Name())
}

func TestCEL_ItemField(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	item := map[string]any{"level": "error", "count": 3}
	out, err := e.Evaluate(context.Background(), `item.level == "error"`, item)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_Arithmetic(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), "item * 2", int64(21))
	require.NoError(t, err)
	assert.Equal(t, int64(42), out)
}

func TestCEL_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "item ==", 1)
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestCEL_CompilationCache(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "item + 1", int64(1))
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), "item + 1", int64(2))
	require.NoError(t, err)

	e.mu.RLock()
	defer e.mu.RUnlock()
	assert.Len(t, e.cache, 1)
}

// --- expr-lang ---

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_ItemField(t *testing.T) {
	e := NewExprEngine()

	item := map[string]any{"score": 87}
	out, err := e.Evaluate(context.Background(), "item.score > 50", item)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_StringOps(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), `upper(item)`, "warn")
	require.NoError(t, err)
	assert.Equal(t, "WARN", out)
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "item >", 1)
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

// --- gojq ---

func TestNewGoJQEngine(t *testing.T) {
	e := NewGoJQEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "jq", e.Name())
}

func TestGoJQ_Identity(t *testing.T) {
	e := NewGoJQEngine()
	item := map[string]any{"name": "streamflow"}

	out, err := e.Evaluate(context.Background(), ".", item)
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "streamflow", m["name"])
}

func TestGoJQ_SelectField(t *testing.T) {
	e := NewGoJQEngine()
	item := map[string]any{"host": "db-1", "latency": 12}

	out, err := e.Evaluate(context.Background(), ".host", item)
	require.NoError(t, err)
	assert.Equal(t, "db-1", out)
}

func TestGoJQ_NumberNormalization(t *testing.T) {
	e := NewGoJQEngine()
	item := map[string]any{"count": 5}

	out, err := e.Evaluate(context.Background(), ".count + 1", item)
	require.NoError(t, err)
	assert.Equal(t, float64(6), out)
}

func TestGoJQ_MultipleOutputs(t *testing.T) {
	e := NewGoJQEngine()
	item := []any{1, 2, 3}

	out, err := e.Evaluate(context.Background(), ".[]", item)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, out)
}

func TestGoJQ_EmptyOutput(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), "empty", map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQ_ParseError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), ".[", map[string]any{})
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestGoJQ_RuntimeError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), ".foo", "not-an-object")
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeExecution, fe.Code)
}

func TestGoJQ_EnvironIsSandboxed(t *testing.T) {
	e := NewGoJQEngine()
	t.Setenv("STREAMFLOW_SECRET", "hidden")

	out, err := e.Evaluate(context.Background(), `$ENV.STREAMFLOW_SECRET`, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

// --- Concurrency ---

func TestEngines_ConcurrentEvaluate(t *testing.T) {
	cel, err := NewCELEngine()
	require.NoError(t, err)
	engines := []Engine{cel, NewExprEngine(), NewGoJQEngine()}

	exprs := map[string]string{
		"cel":  "item + 1",
		"expr": "item + 1",
		"jq":   ". + 1",
	}

	var wg sync.WaitGroup
	for _, e := range engines {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(e Engine, i int) {
				defer wg.Done()
				_, err := e.Evaluate(context.Background(), exprs[e.Name()], i)
				assert.NoError(t, err)
			}(e, i)
		}
	}
	wg.Wait()
}

func TestEngines_Names(t *testing.T) {
	cel, err := NewCELEngine()
	require.NoError(t, err)
	for _, e := range []Engine{cel, NewExprEngine(), NewGoJQEngine()} {
		assert.NotEmpty(t, e.Name(), fmt.Sprintf("%T", e))
	}
}
