package flow

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/rendis/streamflow/pkg/schema"
)

// Zipped pairs one input value with one value from a companion stream.
type Zipped[T, U any] struct {
	First  T
	Second U
}

// Race runs every flow concurrently against each input item; the first
// successful result wins that item's slot and the losers are cancelled.
// When every flow fails, an EXECUTION_ERROR is emitted for the item.
func Race[In, Out any](flows ...Flow[In, Out]) Flow[In, Out] {
	name := fmt.Sprintf("race(%d)", len(flows))
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			if len(flows) == 0 {
				var zero Out
				yield(zero, schema.NewError(schema.ErrCodeConfiguration, "race requires at least one flow").WithFlow(name))
				return
			}
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				out, rerr := raceItem(ctx, flows, item)
				if rerr != nil {
					var zero Out
					return yield(zero, rerr)
				}
				return yield(out, nil)
			})
		}
	})
}

func raceItem[In, Out any](ctx context.Context, flows []Flow[In, Out], item In) (Out, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		val Out
		err error
	}
	results := make(chan outcome, len(flows))
	for _, f := range flows {
		go func(f Flow[In, Out]) {
			vals, err := Collect(ctx, f.Run(ctx, Pure(item)))
			if err == nil && len(vals) == 0 {
				err = schema.NewErrorf(schema.ErrCodeExecution, "flow %q produced no result", f.Name())
			}
			if err != nil {
				results <- outcome{err: err}
				return
			}
			results <- outcome{val: vals[0]}
		}(f)
	}

	var lastErr error
	for range flows {
		select {
		case r := <-results:
			if r.err == nil {
				return r.val, nil
			}
			lastErr = r.err
		case <-ctx.Done():
			var zero Out
			return zero, schema.NewError(schema.ErrCodeCancelled, "race cancelled").WithCause(ctx.Err())
		}
	}
	var zero Out
	return zero, schema.NewError(schema.ErrCodeExecution, "all racing flows failed").WithCause(lastErr)
}

// Parallel gathers, per input item, every flow's outputs into one slice
// in flow order. Any flow failure fails the whole item.
func Parallel[In, Out any](flows ...Flow[In, Out]) Flow[In, []Out] {
	return parallelNamed(fmt.Sprintf("parallel(%d)", len(flows)), false, flows)
}

// ParallelSuccessful is Parallel with failed flows silently omitted from
// the per-item result; the result slice may be empty.
func ParallelSuccessful[In, Out any](flows ...Flow[In, Out]) Flow[In, []Out] {
	return parallelNamed(fmt.Sprintf("parallel_successful(%d)", len(flows)), true, flows)
}

func parallelNamed[In, Out any](name string, skipFailures bool, flows []Flow[In, Out]) Flow[In, []Out] {
	return New(name, func(ctx context.Context, in Stream[In]) Stream[[]Out] {
		return func(yield func([]Out, error) bool) {
			in(func(item In, err error) bool {
				if err != nil {
					return yield(nil, err)
				}
				perFlow := make([][]Out, len(flows))
				errs := make([]error, len(flows))
				var wg sync.WaitGroup
				for i, f := range flows {
					wg.Add(1)
					go func(i int, f Flow[In, Out]) {
						defer wg.Done()
						perFlow[i], errs[i] = Collect(ctx, f.Run(ctx, Pure(item)))
					}(i, f)
				}
				wg.Wait()

				var combined []Out
				for i := range flows {
					if errs[i] != nil {
						if skipFailures {
							continue
						}
						return yield(nil, schema.NewErrorf(schema.ErrCodeExecution, "flow %q failed", flows[i].Name()).WithFlow(name).WithCause(errs[i]))
					}
					combined = append(combined, perFlow[i]...)
				}
				if combined == nil {
					combined = []Out{}
				}
				return yield(combined, nil)
			})
		}
	})
}

// Zip pairs input items positionally with values from other, stopping as
// soon as either side exhausts or errors.
func Zip[T, U any](other Stream[U]) Flow[T, Zipped[T, U]] {
	return New("zip", func(_ context.Context, in Stream[T]) Stream[Zipped[T, U]] {
		return func(yield func(Zipped[T, U], error) bool) {
			next, stop := iter.Pull2(iter.Seq2[U, error](other))
			defer stop()
			in(func(item T, err error) bool {
				if err != nil {
					return yield(Zipped[T, U]{}, err)
				}
				oval, oerr, ok := next()
				if !ok {
					return false
				}
				if oerr != nil {
					yield(Zipped[T, U]{}, oerr)
					return false
				}
				return yield(Zipped[T, U]{First: item, Second: oval}, nil)
			})
		}
	})
}

// MergeFlows interleaves every flow's outputs for the same buffered input
// in completion order. All items are eventually delivered unless a flow
// errors, which propagates immediately and cancels the rest.
func MergeFlows[In, Out any](flows ...Flow[In, Out]) Flow[In, Out] {
	name := fmt.Sprintf("merge_flows(%d)", len(flows))
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			items, err := Collect(ctx, in)
			if err != nil {
				var zero Out
				yield(zero, err)
				return
			}
			streams := make([]Stream[Out], len(flows))
			for i, f := range flows {
				streams[i] = f.Run(ctx, FromSlice(items))
			}
			Merge(streams...)(yield)
		}
	})
}

// CombineLatest pairs each input item with the most recent value seen
// from other. Inputs arriving before other's first value produce no
// combination.
func CombineLatest[T, U any](other Stream[U]) Flow[T, Zipped[T, U]] {
	return New("combine_latest", func(ctx context.Context, in Stream[T]) Stream[Zipped[T, U]] {
		return func(yield func(Zipped[T, U], error) bool) {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			var mu sync.Mutex
			var latest U
			haveLatest := false
			var otherErr error

			done := make(chan struct{})
			go func() {
				defer close(done)
				other(func(v U, err error) bool {
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						otherErr = err
						return false
					}
					latest = v
					haveLatest = true
					select {
					case <-ctx.Done():
						return false
					default:
						return true
					}
				})
			}()

			in(func(item T, err error) bool {
				if err != nil {
					return yield(Zipped[T, U]{}, err)
				}
				mu.Lock()
				v, ok, oerr := latest, haveLatest, otherErr
				mu.Unlock()
				if oerr != nil {
					yield(Zipped[T, U]{}, oerr)
					return false
				}
				if !ok {
					return true
				}
				return yield(Zipped[T, U]{First: item, Second: v}, nil)
			})
			cancel()
			<-done
		}
	})
}

// FlatMapCtx is a context-aware FlatMap: fn receives the current item and
// the first item seen in this consumption, and its stream is flattened
// into the output.
func FlatMapCtx[In, Out any](fn func(ctx context.Context, current, original In) Stream[Out]) Flow[In, Out] {
	name := fmt.Sprintf("flat_map_ctx(%s)", funcName(fn))
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			var original In
			haveOriginal := false
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				if !haveOriginal {
					original = item
					haveOriginal = true
				}
				ok := true
				fn(ctx, item, original)(func(out Out, oerr error) bool {
					ok = yield(out, oerr)
					return ok
				})
				return ok
			})
		}
	})
}
