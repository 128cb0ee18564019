package flow

import (
	"context"
	"fmt"

	"github.com/rendis/streamflow/pkg/schema"
)

// Map applies fn to every item. In-band errors pass through untouched.
func Map[In, Out any](fn func(In) Out) Flow[In, Out] {
	name := fmt.Sprintf("map(%s)", funcName(fn))
	return New(name, func(_ context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				return yield(fn(item), nil)
			})
		}
	})
}

// Filter keeps items for which pred holds. In-band errors pass through.
func Filter[T any](pred func(T) bool) Flow[T, T] {
	name := fmt.Sprintf("filter(%s)", funcName(pred))
	return New(name, func(_ context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				if !pred(item) {
					return true
				}
				return yield(item, nil)
			})
		}
	})
}

// FlatMap expands every item into a stream and concatenates the results.
func FlatMap[In, Out any](fn func(In) Stream[Out]) Flow[In, Out] {
	name := fmt.Sprintf("flat_map(%s)", funcName(fn))
	return New(name, func(_ context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				ok := true
				fn(item)(func(out Out, oerr error) bool {
					ok = yield(out, oerr)
					return ok
				})
				return ok
			})
		}
	})
}

// Take passes through the first n items, then closes upstream.
func Take[T any](n int) Flow[T, T] {
	return New(fmt.Sprintf("take(%d)", n), func(_ context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			if n <= 0 {
				return
			}
			seen := 0
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				if !yield(item, nil) {
					return false
				}
				seen++
				return seen < n
			})
		}
	})
}

// Skip drops the first n items and passes through the rest.
func Skip[T any](n int) Flow[T, T] {
	return New(fmt.Sprintf("skip(%d)", n), func(_ context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			skipped := 0
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				if skipped < n {
					skipped++
					return true
				}
				return yield(item, nil)
			})
		}
	})
}

// Guard emits a VALIDATION_ERROR for items failing pred and passes the
// rest through.
func Guard[T any](pred func(T) bool, msg string) Flow[T, T] {
	name := fmt.Sprintf("guard(%s)", funcName(pred))
	return New(name, func(_ context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				if !pred(item) {
					var zero T
					return yield(zero, schema.NewError(schema.ErrCodeValidation, msg).WithFlow(name))
				}
				return yield(item, nil)
			})
		}
	})
}

// Flatten expands a stream of slices into a stream of their elements.
func Flatten[T any]() Flow[[]T, T] {
	return New("flatten", func(_ context.Context, in Stream[[]T]) Stream[T] {
		return func(yield func(T, error) bool) {
			in(func(items []T, err error) bool {
				if err != nil {
					var zero T
					return yield(zero, err)
				}
				for _, item := range items {
					if !yield(item, nil) {
						return false
					}
				}
				return true
			})
		}
	})
}

// WithFallback substitutes fallback when the stream completes without
// emitting anything; otherwise it is a passthrough.
func WithFallback[T any](fallback T) Flow[T, T] {
	return New("with_fallback", func(_ context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			emitted := false
			stopped := false
			in(func(item T, err error) bool {
				emitted = true
				if !yield(item, err) {
					stopped = true
					return false
				}
				return true
			})
			if !emitted && !stopped {
				yield(fallback, nil)
			}
		}
	})
}

// Collect drains a stream into an ordered slice. It stops at the first
// in-band error or context cancellation.
func Collect[T any](ctx context.Context, s Stream[T]) ([]T, error) {
	var out []T
	var ferr error
	s(func(item T, err error) bool {
		if cerr := ctx.Err(); cerr != nil {
			ferr = schema.NewError(schema.ErrCodeCancelled, "stream consumption cancelled").WithCause(cerr)
			return false
		}
		if err != nil {
			ferr = err
			return false
		}
		out = append(out, item)
		return true
	})
	return out, ferr
}

// ForEach drains a stream invoking fn per item, discarding results. It
// stops at the first error from the stream or from fn.
func ForEach[T any](ctx context.Context, s Stream[T], fn func(T) error) error {
	var ferr error
	s(func(item T, err error) bool {
		if cerr := ctx.Err(); cerr != nil {
			ferr = schema.NewError(schema.ErrCodeCancelled, "stream consumption cancelled").WithCause(cerr)
			return false
		}
		if err != nil {
			ferr = err
			return false
		}
		if err := fn(item); err != nil {
			ferr = err
			return false
		}
		return true
	})
	return ferr
}

// Preview takes at most limit items and then closes the stream, releasing
// upstream resources.
func Preview[T any](ctx context.Context, s Stream[T], limit int) ([]T, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []T
	var ferr error
	s(func(item T, err error) bool {
		if cerr := ctx.Err(); cerr != nil {
			ferr = schema.NewError(schema.ErrCodeCancelled, "stream consumption cancelled").WithCause(cerr)
			return false
		}
		if err != nil {
			ferr = err
			return false
		}
		out = append(out, item)
		return len(out) < limit
	})
	return out, ferr
}
