package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rendis/streamflow/pkg/schema"
)

// IfThen routes each item into thenFlow when pred holds, otherwise into
// elseFlow. Without an else flow, items failing pred are dropped.
func IfThen[In, Out any](pred func(In) bool, thenFlow Flow[In, Out], elseFlow ...Flow[In, Out]) Flow[In, Out] {
	name := fmt.Sprintf("if_then(%s)", funcName(pred))
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				switch {
				case pred(item):
					return emitAll(ctx, thenFlow, item, yield)
				case len(elseFlow) > 0:
					return emitAll(ctx, elseFlow[0], item, yield)
				default:
					return true
				}
			})
		}
	})
}

// Tap invokes fn per item before yielding it unchanged. Errors from fn
// propagate in-band.
func Tap[T any](fn func(context.Context, T) error) Flow[T, T] {
	name := fmt.Sprintf("tap(%s)", funcName(fn))
	return New(name, func(ctx context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				if ferr := fn(ctx, item); ferr != nil {
					var zero T
					return yield(zero, schema.NewError(schema.ErrCodeExecution, ferr.Error()).WithFlow(name).WithCause(ferr))
				}
				return yield(item, nil)
			})
		}
	})
}

// Then invokes fn per item strictly after the item has been delivered
// downstream.
func Then[T any](fn func(context.Context, T) error) Flow[T, T] {
	name := fmt.Sprintf("then(%s)", funcName(fn))
	return New(name, func(ctx context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				if !yield(item, nil) {
					return false
				}
				if ferr := fn(ctx, item); ferr != nil {
					var zero T
					return yield(zero, schema.NewError(schema.ErrCodeExecution, ferr.Error()).WithFlow(name).WithCause(ferr))
				}
				return true
			})
		}
	})
}

// Retry re-runs f on each item up to attempts total attempts. When every
// attempt fails, a RETRY_EXHAUSTED error embedding the attempt count and
// last cause is emitted for that item.
func Retry[In, Out any](attempts int, f Flow[In, Out]) Flow[In, Out] {
	name := fmt.Sprintf("retry(%d, %s)", attempts, f.Name())
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			if attempts < 1 {
				var zero Out
				yield(zero, schema.NewErrorf(schema.ErrCodeConfiguration, "retry requires at least 1 attempt, got %d", attempts).WithFlow(name))
				return
			}
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				var lastErr error
				for attempt := 1; attempt <= attempts; attempt++ {
					results, rerr := Collect(ctx, f.Run(ctx, Pure(item)))
					if rerr == nil {
						for _, out := range results {
							if !yield(out, nil) {
								return false
							}
						}
						return true
					}
					lastErr = rerr
				}
				var zero Out
				return yield(zero, schema.NewErrorf(schema.ErrCodeRetryExhausted, "all %d attempts failed", attempts).
					WithFlow(name).
					WithCause(lastErr).
					WithDetails(map[string]any{"attempts": attempts}))
			})
		}
	})
}

// Recover runs f on each item and substitutes handler's result when the
// item fails, continuing with the next item.
func Recover[In, Out any](f Flow[In, Out], handler func(ctx context.Context, err error, item In) (Out, error)) Flow[In, Out] {
	name := fmt.Sprintf("recover(%s)", f.Name())
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				results, rerr := Collect(ctx, f.Run(ctx, Pure(item)))
				if rerr != nil {
					replacement, herr := handler(ctx, rerr, item)
					if herr != nil {
						var zero Out
						return yield(zero, schema.NewError(schema.ErrCodeExecution, herr.Error()).WithFlow(name).WithCause(herr))
					}
					return yield(replacement, nil)
				}
				for _, out := range results {
					if !yield(out, nil) {
						return false
					}
				}
				return true
			})
		}
	})
}

// Switch dispatches each item to the case flow matching keyFn(item).
// Unmatched items are dropped unless a default flow is given.
func Switch[In any, K comparable, Out any](keyFn func(In) K, cases map[K]Flow[In, Out], defaultFlow ...Flow[In, Out]) Flow[In, Out] {
	name := fmt.Sprintf("switch(%s)", funcName(keyFn))
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				if f, ok := cases[keyFn(item)]; ok {
					return emitAll(ctx, f, item, yield)
				}
				if len(defaultFlow) > 0 {
					return emitAll(ctx, defaultFlow[0], item, yield)
				}
				return true
			})
		}
	})
}

// While applies f only while pred holds. The first failing item closes the
// stream; processing does not resume.
func While[In, Out any](pred func(In) bool, f Flow[In, Out]) Flow[In, Out] {
	name := fmt.Sprintf("while(%s)", funcName(pred))
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				if !pred(item) {
					return false
				}
				return emitAll(ctx, f, item, yield)
			})
		}
	})
}

// breakerState is the lifecycle state of a circuit breaker.
type breakerState int

const (
	breakerClosed   breakerState = iota // normal operation
	breakerOpen                         // failing, rejecting calls
	breakerHalfOpen                     // testing recovery
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker wraps f with a consecutive-failure guard. Once threshold
// consecutive item failures are seen the breaker opens and items fail fast
// with CIRCUIT_OPEN, without invoking f, until recovery elapses; the next
// item is then a half-open trial that re-closes the breaker on success.
// Breaker state belongs to this Flow instance and persists across runs.
func CircuitBreaker[In, Out any](threshold int, recovery time.Duration, f Flow[In, Out]) Flow[In, Out] {
	name := fmt.Sprintf("circuit_breaker(%d, %s)", threshold, f.Name())

	var mu sync.Mutex
	state := breakerClosed
	consecutiveFailures := 0
	var lastFailure time.Time

	allow := func() error {
		mu.Lock()
		defer mu.Unlock()
		switch state {
		case breakerOpen:
			if time.Since(lastFailure) >= recovery {
				state = breakerHalfOpen
				return nil
			}
			return schema.NewErrorf(schema.ErrCodeCircuitOpen,
				"circuit breaker open: %d consecutive failures", consecutiveFailures).
				WithFlow(name).
				WithDetails(map[string]any{
					"consecutive_failures": consecutiveFailures,
					"state":                state.String(),
					"cooldown_remaining":   (recovery - time.Since(lastFailure)).String(),
				})
		default:
			return nil
		}
	}
	record := func(failed bool) {
		mu.Lock()
		defer mu.Unlock()
		if !failed {
			consecutiveFailures = 0
			state = breakerClosed
			return
		}
		consecutiveFailures++
		lastFailure = time.Now()
		if state == breakerHalfOpen || consecutiveFailures >= threshold {
			state = breakerOpen
		}
	}

	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			if threshold < 1 {
				var zero Out
				yield(zero, schema.NewErrorf(schema.ErrCodeConfiguration, "circuit breaker threshold must be positive, got %d", threshold).WithFlow(name))
				return
			}
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				if aerr := allow(); aerr != nil {
					var zero Out
					return yield(zero, aerr)
				}
				results, rerr := Collect(ctx, f.Run(ctx, Pure(item)))
				record(rerr != nil)
				if rerr != nil {
					var zero Out
					return yield(zero, rerr)
				}
				for _, out := range results {
					if !yield(out, nil) {
						return false
					}
				}
				return true
			})
		}
	})
}

// CatchAndContinue absorbs item-level errors, optionally reporting them
// through handler, and continues with the next item.
func CatchAndContinue[T any](handler ...func(error)) Flow[T, T] {
	return New("catch_and_continue", func(_ context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			in(func(item T, err error) bool {
				if err != nil {
					if len(handler) > 0 {
						handler[0](err)
					}
					return true
				}
				return yield(item, nil)
			})
		}
	})
}

// ChainFlows applies every flow independently to the same input and
// concatenates their outputs in flow order. The input is buffered so it
// can be replayed to each flow.
func ChainFlows[In, Out any](flows ...Flow[In, Out]) Flow[In, Out] {
	name := fmt.Sprintf("chain_flows(%d)", len(flows))
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			items, err := Collect(ctx, in)
			if err != nil {
				var zero Out
				yield(zero, err)
				return
			}
			for _, f := range flows {
				ok := true
				f.Run(ctx, FromSlice(items))(func(out Out, oerr error) bool {
					ok = yield(out, oerr)
					return ok
				})
				if !ok {
					return
				}
			}
		}
	})
}

// BranchFlows partitions the input by pred and yields all true-branch
// results before all false-branch results, order preserved within each
// branch. Without a false flow, items failing pred are dropped.
func BranchFlows[In, Out any](pred func(In) bool, trueFlow Flow[In, Out], falseFlow ...Flow[In, Out]) Flow[In, Out] {
	name := fmt.Sprintf("branch_flows(%s)", funcName(pred))
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			items, err := Collect(ctx, in)
			if err != nil {
				var zero Out
				yield(zero, err)
				return
			}
			var trueItems, falseItems []In
			for _, item := range items {
				if pred(item) {
					trueItems = append(trueItems, item)
				} else {
					falseItems = append(falseItems, item)
				}
			}
			ok := true
			forward := func(out Out, oerr error) bool {
				ok = yield(out, oerr)
				return ok
			}
			trueFlow.Run(ctx, FromSlice(trueItems))(forward)
			if !ok || len(falseFlow) == 0 {
				return
			}
			falseFlow[0].Run(ctx, FromSlice(falseItems))(forward)
		}
	})
}

// emitAll runs f over a single-item stream and forwards every output.
func emitAll[In, Out any](ctx context.Context, f Flow[In, Out], item In, yield func(Out, error) bool) bool {
	ok := true
	f.Run(ctx, Pure(item))(func(out Out, err error) bool {
		ok = yield(out, err)
		return ok
	})
	return ok
}
