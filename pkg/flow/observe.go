package flow

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Tracer receives stream lifecycle callbacks from Trace.
type Tracer interface {
	StreamStart(name string)
	Item(name string, item any)
	Error(name string, err error)
	StreamEnd(name string, count int)
}

// Label traces stream start and each value through the default logger,
// passing items through unchanged.
func Label[T any](tag string) Flow[T, T] {
	return Log[T](tag, slog.Default())
}

// Log is a passthrough that logs stream start, each item, each in-band
// error, and stream end with the item count.
func Log[T any](name string, logger *slog.Logger) Flow[T, T] {
	return New("log("+name+")", func(ctx context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			logger.DebugContext(ctx, "stream started", "stream", name)
			count := 0
			defer func() {
				logger.DebugContext(ctx, "stream ended", "stream", name, "items", count)
			}()
			in(func(item T, err error) bool {
				if err != nil {
					logger.WarnContext(ctx, "stream item error", "stream", name, "error", err)
					return yield(item, err)
				}
				count++
				logger.DebugContext(ctx, "stream item", "stream", name, "value", item)
				return yield(item, nil)
			})
		}
	})
}

// Trace is a passthrough reporting lifecycle events to tr.
func Trace[T any](name string, tr Tracer) Flow[T, T] {
	return New("trace("+name+")", func(_ context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			tr.StreamStart(name)
			count := 0
			defer func() {
				tr.StreamEnd(name, count)
			}()
			in(func(item T, err error) bool {
				if err != nil {
					tr.Error(name, err)
					return yield(item, err)
				}
				count++
				tr.Item(name, item)
				return yield(item, nil)
			})
		}
	})
}

// Count is a passthrough that increments counter per delivered item.
func Count[T any](counter *atomic.Int64) Flow[T, T] {
	return New("count", func(_ context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				counter.Add(1)
				return yield(item, nil)
			})
		}
	})
}
