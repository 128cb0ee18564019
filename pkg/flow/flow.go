// Package flow implements a composable stream-transformation algebra.
// A Stream is a pull-driven sequence with in-band per-item errors; a Flow
// wraps a Stream transformation together with a display name and metadata.
package flow

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"runtime"
	"strings"

	"github.com/rendis/streamflow/pkg/schema"
)

// Stream produces a lazy, ordered sequence of values. The consumer's loop
// drives production; returning false from yield closes the stream and
// propagates upstream so producers can release resources. Item-level errors
// travel in-band as (zero, err) pairs.
type Stream[T any] func(yield func(T, error) bool)

// Flow is a named, immutable transformation from Stream[In] to Stream[Out].
// Combinators return new Flow values whose names document their derivation.
type Flow[In, Out any] struct {
	transform func(context.Context, Stream[In]) Stream[Out]
	name      string
	metadata  map[string]any
}

// New builds a Flow from a raw stream transformation.
func New[In, Out any](name string, transform func(context.Context, Stream[In]) Stream[Out]) Flow[In, Out] {
	return Flow[In, Out]{transform: transform, name: name}
}

// Run applies the flow to a source stream. A Flow is a transformer, never
// itself a sequence; running it without a source is a usage error.
func (f Flow[In, Out]) Run(ctx context.Context, in Stream[In]) Stream[Out] {
	if f.transform == nil {
		return Fail[Out](schema.NewError(schema.ErrCodeValidation, "flow has no transform; construct flows with the package combinators").WithFlow(f.name))
	}
	if in == nil {
		return Fail[Out](schema.NewErrorf(schema.ErrCodeValidation, "flow %q cannot run without a source stream; call flow.Run(ctx, stream)", f.name).WithFlow(f.name))
	}
	return f.transform(ctx, in)
}

// Name returns the flow's display name.
func (f Flow[In, Out]) Name() string { return f.name }

// Metadata returns a copy of the flow's metadata.
func (f Flow[In, Out]) Metadata() map[string]any {
	if f.metadata == nil {
		return map[string]any{}
	}
	return maps.Clone(f.metadata)
}

// WithName returns a copy of the flow under a new name.
func (f Flow[In, Out]) WithName(name string) Flow[In, Out] {
	f.name = name
	return f
}

// WithMetadata returns a copy of the flow with one metadata entry added.
func (f Flow[In, Out]) WithMetadata(key string, value any) Flow[In, Out] {
	md := maps.Clone(f.metadata)
	if md == nil {
		md = map[string]any{}
	}
	md[key] = value
	f.metadata = md
	return f
}

func (f Flow[In, Out]) String() string {
	return fmt.Sprintf("<Flow %s>", f.name)
}

// Compose feeds a's output stream into b. The result is named "a >> b".
// Free function because Go methods cannot introduce type parameters.
func Compose[A, B, C any](a Flow[A, B], b Flow[B, C]) Flow[A, C] {
	return New(a.name+" >> "+b.name, func(ctx context.Context, in Stream[A]) Stream[C] {
		return b.Run(ctx, a.Run(ctx, in))
	})
}

// Pipe chains same-typed flows left to right. With no arguments it is the
// identity flow.
func Pipe[T any](flows ...Flow[T, T]) Flow[T, T] {
	if len(flows) == 0 {
		return Identity[T]()
	}
	out := flows[0]
	for _, f := range flows[1:] {
		out = Compose(out, f)
	}
	return out
}

// Identity passes the stream through unchanged.
func Identity[T any]() Flow[T, T] {
	return New("identity", func(_ context.Context, in Stream[T]) Stream[T] {
		return in
	})
}

// FromFunc lifts a fallible per-item function into a flow. Errors from fn
// are emitted in-band and the stream continues with the next item.
func FromFunc[In, Out any](fn func(context.Context, In) (Out, error)) Flow[In, Out] {
	name := fmt.Sprintf("from_func(%s)", funcName(fn))
	return New(name, func(ctx context.Context, in Stream[In]) Stream[Out] {
		return func(yield func(Out, error) bool) {
			in(func(item In, err error) bool {
				if err != nil {
					var zero Out
					return yield(zero, err)
				}
				out, ferr := fn(ctx, item)
				if ferr != nil {
					var zero Out
					return yield(zero, schema.NewError(schema.ErrCodeExecution, ferr.Error()).WithFlow(name).WithCause(ferr))
				}
				return yield(out, nil)
			})
		}
	})
}

// Fail returns a stream that emits a single error and ends.
func Fail[T any](err error) Stream[T] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}

// pump drains a stream into a channel from a goroutine, so consumers can
// select over it. The channel closes when the stream ends; cancelling ctx
// stops the producer.
func pump[T any](ctx context.Context, s Stream[T]) <-chan streamItem[T] {
	ch := make(chan streamItem[T])
	go func() {
		defer close(ch)
		s(func(v T, err error) bool {
			select {
			case ch <- streamItem[T]{v, err}:
				return err == nil
			case <-ctx.Done():
				return false
			}
		})
	}()
	return ch
}

// funcName reports the short name of fn for flow naming. Anonymous
// functions come out as func1, func2, matching their runtime names.
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return "func"
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "func"
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}
