package trampoline

import (
	"context"
	"fmt"

	"github.com/rendis/streamflow/pkg/flow"
	"github.com/rendis/streamflow/pkg/schema"
)

// Step transforms one Context into another.
type Step = flow.Flow[Context, Context]

// runStep applies one step to a single context and returns the last
// context it produced, or the input when the step emitted nothing.
func runStep(ctx context.Context, step Step, c Context) (Context, error) {
	results, err := flow.Collect(ctx, step.Run(ctx, flow.Pure(c)))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return c, nil
	}
	return results[len(results)-1], nil
}

// ExitableChain runs steps in order against one Context, forking after
// each. An exit signal stops the chain immediately; a break signal stops
// this pass so the caller can restart it.
func ExitableChain(steps ...Step) Step {
	name := fmt.Sprintf("exitable_chain(%d)", len(steps))
	return flow.New(name, func(ctx context.Context, in flow.Stream[Context]) flow.Stream[Context] {
		return func(yield func(Context, error) bool) {
			in(func(c Context, err error) bool {
				if err != nil {
					return yield(nil, err)
				}
				cur := c
				for _, step := range steps {
					next, serr := runStep(ctx, step, cur)
					if serr != nil {
						return yield(nil, serr)
					}
					cur = next.Fork()
					if ExitSignaled(cur) || BreakSignaled(cur) {
						break
					}
				}
				return yield(cur, nil)
			})
		}
	})
}

// Trampoline re-invokes step against each Context until the exit signal
// is set. A break signal is cleared and the loop restarts from the top.
func Trampoline(step Step) Step {
	name := fmt.Sprintf("trampoline(%s)", step.Name())
	return flow.New(name, func(ctx context.Context, in flow.Stream[Context]) flow.Stream[Context] {
		return func(yield func(Context, error) bool) {
			in(func(c Context, err error) bool {
				if err != nil {
					return yield(nil, err)
				}
				cur := c
				for !ExitSignaled(cur) {
					if cerr := ctx.Err(); cerr != nil {
						return yield(nil, schema.NewError(schema.ErrCodeCancelled, "trampoline cancelled").WithFlow(name).WithCause(cerr))
					}
					next, serr := runStep(ctx, step, cur)
					if serr != nil {
						return yield(nil, serr)
					}
					cur = next
					if BreakSignaled(cur) {
						ClearBreak(cur)
					}
				}
				return yield(cur, nil)
			})
		}
	})
}

// TrampolineChain is Trampoline over an ExitableChain of steps.
func TrampolineChain(steps ...Step) Step {
	return Trampoline(ExitableChain(steps...))
}

// ConditionalFlow evaluates cond once per Context and dispatches to
// thenStep or elseStep. Without an else, a false condition passes the
// Context through unchanged.
func ConditionalFlow(cond flow.Flow[Context, bool], thenStep Step, elseStep ...Step) Step {
	name := fmt.Sprintf("conditional(%s)", cond.Name())
	return flow.New(name, func(ctx context.Context, in flow.Stream[Context]) flow.Stream[Context] {
		return func(yield func(Context, error) bool) {
			in(func(c Context, err error) bool {
				if err != nil {
					return yield(nil, err)
				}
				verdict, cerr := evalCondition(ctx, cond, c)
				if cerr != nil {
					return yield(nil, cerr)
				}
				switch {
				case verdict:
					next, serr := runStep(ctx, thenStep, c)
					if serr != nil {
						return yield(nil, serr)
					}
					return yield(next, nil)
				case len(elseStep) > 0:
					next, serr := runStep(ctx, elseStep[0], c)
					if serr != nil {
						return yield(nil, serr)
					}
					return yield(next, nil)
				default:
					return yield(c, nil)
				}
			})
		}
	})
}

// SkipIf executes target only when cond evaluates false for the current
// Context; otherwise the Context passes through unchanged.
func SkipIf(cond flow.Flow[Context, bool], target Step) Step {
	name := fmt.Sprintf("skip_if(%s)", cond.Name())
	return flow.New(name, func(ctx context.Context, in flow.Stream[Context]) flow.Stream[Context] {
		return func(yield func(Context, error) bool) {
			in(func(c Context, err error) bool {
				if err != nil {
					return yield(nil, err)
				}
				verdict, cerr := evalCondition(ctx, cond, c)
				if cerr != nil {
					return yield(nil, cerr)
				}
				if verdict {
					return yield(c, nil)
				}
				next, serr := runStep(ctx, target, c)
				if serr != nil {
					return yield(nil, serr)
				}
				return yield(next, nil)
			})
		}
	})
}

// SkipOnSignal suppresses one execution of step when the skip signal is
// set, clearing the signal so only that one step is skipped.
func SkipOnSignal(step Step) Step {
	name := fmt.Sprintf("skip_on_signal(%s)", step.Name())
	return flow.New(name, func(ctx context.Context, in flow.Stream[Context]) flow.Stream[Context] {
		return func(yield func(Context, error) bool) {
			in(func(c Context, err error) bool {
				if err != nil {
					return yield(nil, err)
				}
				if SkipSignaled(c) {
					ClearSkip(c)
					return yield(c, nil)
				}
				next, serr := runStep(ctx, step, c)
				if serr != nil {
					return yield(nil, serr)
				}
				return yield(next, nil)
			})
		}
	})
}

func evalCondition(ctx context.Context, cond flow.Flow[Context, bool], c Context) (bool, error) {
	verdicts, err := flow.Collect(ctx, cond.Run(ctx, flow.Pure(c)))
	if err != nil {
		return false, err
	}
	if len(verdicts) == 0 {
		return false, schema.NewErrorf(schema.ErrCodeExecution, "condition flow %q produced no verdict", cond.Name())
	}
	return verdicts[0], nil
}
