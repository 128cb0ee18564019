package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/rendis/streamflow/pkg/schema"
)

// Group pairs a grouping key with every item that mapped to it.
type Group[K comparable, T any] struct {
	Key   K
	Items []T
}

// Pair holds two consecutive stream items.
type Pair[T any] struct {
	Prev T
	Curr T
}

// Batch groups items into contiguous slices of size n; the final group
// may be short.
func Batch[T any](n int) Flow[T, []T] {
	return batchNamed[T](fmt.Sprintf("batch(%d)", n), n)
}

// Chunk is Batch under its other conventional name.
func Chunk[T any](n int) Flow[T, []T] {
	return batchNamed[T](fmt.Sprintf("chunk(%d)", n), n)
}

func batchNamed[T any](name string, n int) Flow[T, []T] {
	return New(name, func(_ context.Context, in Stream[T]) Stream[[]T] {
		return func(yield func([]T, error) bool) {
			if n <= 0 {
				yield(nil, schema.NewErrorf(schema.ErrCodeConfiguration, "batch size must be positive, got %d", n).WithFlow(name))
				return
			}
			group := make([]T, 0, n)
			stopped := false
			in(func(item T, err error) bool {
				if err != nil {
					stopped = true
					yield(nil, err)
					return false
				}
				group = append(group, item)
				if len(group) == n {
					out := group
					group = make([]T, 0, n)
					if !yield(out, nil) {
						stopped = true
						return false
					}
				}
				return true
			})
			if !stopped && len(group) > 0 {
				yield(group, nil)
			}
		}
	})
}

// Window emits sliding windows of exactly size consecutive items,
// advancing by step. Streams shorter than size emit nothing.
func Window[T any](size, step int) Flow[T, []T] {
	name := fmt.Sprintf("window(%d, %d)", size, step)
	return New(name, func(_ context.Context, in Stream[T]) Stream[[]T] {
		return func(yield func([]T, error) bool) {
			if size <= 0 || step <= 0 {
				yield(nil, schema.NewErrorf(schema.ErrCodeConfiguration, "window size and step must be positive, got size=%d step=%d", size, step).WithFlow(name))
				return
			}
			var buf []T
			drop := 0
			in(func(item T, err error) bool {
				if err != nil {
					yield(nil, err)
					return false
				}
				if drop > 0 {
					drop--
					return true
				}
				buf = append(buf, item)
				if len(buf) < size {
					return true
				}
				out := make([]T, size)
				copy(out, buf[:size])
				if !yield(out, nil) {
					return false
				}
				if step < len(buf) {
					buf = buf[step:]
				} else {
					drop = step - len(buf)
					buf = nil
				}
				return true
			})
		}
	})
}

// Scan emits initial, then each running fold result. Output length is
// input length plus one.
func Scan[In, Out any](fn func(Out, In) Out, initial Out) Flow[In, Out] {
	name := fmt.Sprintf("scan(%s)", funcName(fn))
	return New(name, func(_ context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			acc := initial
			if !yield(acc, nil) {
				return
			}
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				acc = fn(acc, item)
				return yield(acc, nil)
			})
		}
	})
}

// GroupBy collects the whole stream, then emits one Group per distinct
// key in first-seen key order. Not incremental.
func GroupBy[T any, K comparable](keyFn func(T) K) Flow[T, Group[K, T]] {
	name := fmt.Sprintf("group_by(%s)", funcName(keyFn))
	return New(name, func(ctx context.Context, in Stream[T]) Stream[Group[K, T]] {
		return func(yield func(Group[K, T], error) bool) {
			items, err := Collect(ctx, in)
			if err != nil {
				yield(Group[K, T]{}, err)
				return
			}
			groups := map[K][]T{}
			var order []K
			for _, item := range items {
				k := keyFn(item)
				if _, seen := groups[k]; !seen {
					order = append(order, k)
				}
				groups[k] = append(groups[k], item)
			}
			for _, k := range order {
				if !yield(Group[K, T]{Key: k, Items: groups[k]}, nil) {
					return
				}
			}
		}
	})
}

// Distinct emits the first occurrence of each value, preserving
// first-seen order.
func Distinct[T comparable]() Flow[T, T] {
	return distinctNamed("distinct", func(item T) T { return item })
}

// DistinctBy emits the first occurrence per key, preserving first-seen
// order.
func DistinctBy[T any, K comparable](keyFn func(T) K) Flow[T, T] {
	return distinctNamed(fmt.Sprintf("distinct_by(%s)", funcName(keyFn)), keyFn)
}

func distinctNamed[T any, K comparable](name string, keyFn func(T) K) Flow[T, T] {
	return New(name, func(_ context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			seen := map[K]struct{}{}
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				k := keyFn(item)
				if _, dup := seen[k]; dup {
					return true
				}
				seen[k] = struct{}{}
				return yield(item, nil)
			})
		}
	})
}

// Pairwise emits (prev, curr) for each consecutive pair of items.
func Pairwise[T any]() Flow[T, Pair[T]] {
	return New("pairwise", func(_ context.Context, in Stream[T]) Stream[Pair[T]] {
		return func(yield func(Pair[T], error) bool) {
			var prev T
			first := true
			in(func(item T, err error) bool {
				if err != nil {
					return yield(Pair[T]{}, err)
				}
				if first {
					first = false
					prev = item
					return true
				}
				p := Pair[T]{Prev: prev, Curr: item}
				prev = item
				return yield(p, nil)
			})
		}
	})
}

// Memoize runs f per item and caches the results for that item's key.
// Repeated keys replay the cached results without re-invoking f. The
// cache lives for one stream consumption.
func Memoize[In any, K comparable, Out any](keyFn func(In) K, f Flow[In, Out]) Flow[In, Out] {
	name := fmt.Sprintf("memoize(%s)", f.Name())
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			cache := map[K][]Out{}
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				k := keyFn(item)
				results, hit := cache[k]
				if !hit {
					var rerr error
					results, rerr = Collect(ctx, f.Run(ctx, Pure(item)))
					if rerr != nil {
						var zero Out
						return yield(zero, rerr)
					}
					cache[k] = results
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

// Buffer accumulates items until trigger produces a value, then emits the
// accumulated slice and resets. Remaining items are flushed when the
// source completes.
func Buffer[T, U any](trigger Stream[U]) Flow[T, []T] {
	return New("buffer", func(ctx context.Context, in Stream[T]) Stream[[]T] {
		return func(yield func([]T, error) bool) {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			src := pump(ctx, in)
			trig := pump(ctx, trigger)

			var buf []T
			for {
				select {
				case it, open := <-src:
					if !open {
						if len(buf) > 0 {
							yield(buf, nil)
						}
						return
					}
					if it.err != nil {
						yield(nil, it.err)
						return
					}
					buf = append(buf, it.val)
				case _, open := <-trig:
					if !open {
						trig = nil
						continue
					}
					out := buf
					buf = nil
					if !yield(out, nil) {
						return
					}
				}
			}
		}
	})
}

// Expand re-applies fn breadth-first to each item up to maxDepth levels,
// emitting the original item first, then each expansion level in order.
func Expand[T any](fn func(T) []T, maxDepth int) Flow[T, T] {
	name := fmt.Sprintf("expand(%s)", funcName(fn))
	return New(name, func(_ context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				level := []T{item}
				for depth := 0; depth <= maxDepth && len(level) > 0; depth++ {
					var next []T
					for _, cur := range level {
						if !yield(cur, nil) {
							return false
						}
						if depth < maxDepth {
							next = append(next, fn(cur)...)
						}
					}
					level = next
				}
				return true
			})
		}
	})
}

// Finalize guarantees cleanup runs exactly once, on normal completion or
// before an in-band error is delivered downstream.
func Finalize[T any](cleanup func()) Flow[T, T] {
	return New("finalize", func(_ context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			var once sync.Once
			defer once.Do(cleanup)
			in(func(item T, err error) bool {
				if err != nil {
					once.Do(cleanup)
					return yield(item, err)
				}
				return yield(item, nil)
			})
		}
	})
}
