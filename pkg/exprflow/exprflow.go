// Package exprflow builds flows whose behavior is defined by expression
// strings instead of Go functions. Expressions are evaluated per item by
// a pluggable engine (CEL, expr-lang or jq), which makes these
// combinators suitable for declarative pipeline definitions loaded at
// runtime.
package exprflow

import (
	"context"
	"fmt"

	"github.com/rendis/streamflow/internal/expressions"
	"github.com/rendis/streamflow/pkg/flow"
	"github.com/rendis/streamflow/pkg/schema"
)

// EngineFor returns the expression engine registered under the given
// name ("cel", "expr" or "jq").
func EngineFor(name string) (expressions.Engine, error) {
	switch name {
	case "cel":
		return expressions.NewCELEngine()
	case "expr":
		return expressions.NewExprEngine(), nil
	case "jq":
		return expressions.NewGoJQEngine(), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration,
			"unknown expression engine %q", name)
	}
}

// Transform builds a flow that maps every item through the expression.
// The item is bound to the variable "item" (or "." for jq).
func Transform(engine expressions.Engine, expression string) flow.Flow[any, any] {
	name := fmt.Sprintf("%s_map(%s)", engine.Name(), expression)
	return flow.New(name, func(ctx context.Context, in flow.Stream[any]) flow.Stream[any] {
		return func(yield func(any, error) bool) {
			in(func(item any, err error) bool {
				if err != nil {
					return yield(nil, err)
				}
				out, evalErr := engine.Evaluate(ctx, expression, item)
				if evalErr != nil {
					return yield(nil, schema.NewError(schema.ErrCodeExecution,
						"transform expression failed").WithFlow(name).WithCause(evalErr))
				}
				return yield(out, nil)
			})
		}
	})
}

// Filter builds a flow that keeps items for which the expression yields
// a truthy verdict. Non-boolean results follow jq truthiness: nil and
// false are dropped, everything else passes.
func Filter(engine expressions.Engine, expression string) flow.Flow[any, any] {
	name := fmt.Sprintf("%s_filter(%s)", engine.Name(), expression)
	return flow.New(name, func(ctx context.Context, in flow.Stream[any]) flow.Stream[any] {
		return func(yield func(any, error) bool) {
			in(func(item any, err error) bool {
				if err != nil {
					return yield(nil, err)
				}
				verdict, evalErr := engine.Evaluate(ctx, expression, item)
				if evalErr != nil {
					return yield(nil, schema.NewError(schema.ErrCodeExecution,
						"filter expression failed").WithFlow(name).WithCause(evalErr))
				}
				if !truthy(verdict) {
					return true
				}
				return yield(item, nil)
			})
		}
	})
}

// Route evaluates the expression per item and dispatches the item to
// the case flow whose key equals the result (rendered as a string).
// Items with no matching case go to fallback when provided, and are
// dropped otherwise.
func Route(engine expressions.Engine, expression string, cases map[string]flow.Flow[any, any], fallback ...flow.Flow[any, any]) flow.Flow[any, any] {
	name := fmt.Sprintf("%s_route(%s)", engine.Name(), expression)
	return flow.New(name, func(ctx context.Context, in flow.Stream[any]) flow.Stream[any] {
		return func(yield func(any, error) bool) {
			in(func(item any, err error) bool {
				if err != nil {
					return yield(nil, err)
				}
				verdict, evalErr := engine.Evaluate(ctx, expression, item)
				if evalErr != nil {
					return yield(nil, schema.NewError(schema.ErrCodeExecution,
						"route expression failed").WithFlow(name).WithCause(evalErr))
				}
				key := routeKey(verdict)
				target, ok := cases[key]
				if !ok {
					if len(fallback) == 0 {
						return true
					}
					target = fallback[0]
				}
				return emitThrough(ctx, target, item, yield)
			})
		}
	})
}

// emitThrough runs a single item through a flow and forwards every
// resulting item to yield.
func emitThrough(ctx context.Context, f flow.Flow[any, any], item any, yield func(any, error) bool) bool {
	cont := true
	out := f.Run(ctx, flow.Pure(item))
	out(func(v any, err error) bool {
		cont = yield(v, err)
		return cont
	})
	return cont
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

func routeKey(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
