// Package expressions provides sandboxed expression engines for dynamic
// stream combinators: CEL for predicates, Expr for general logic, and
// GoJQ for JSON reshaping. All engines cache compiled programs.
package expressions

import "context"

// Engine evaluates an expression against one stream item. The item is
// exposed to the expression as the top-level variable "item".
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, item any) (any, error)
}
