package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rendis/streamflow/pkg/schema"
)

// DebounceMode selects which item of a burst Debounce keeps.
type DebounceMode int

const (
	// LeadingEdge emits the first item of a burst and suppresses the rest
	// until the quiet interval has passed.
	LeadingEdge DebounceMode = iota
	// TrailingEdge suppresses until the quiet interval has passed, then
	// emits the last item seen in the burst.
	TrailingEdge
)

func (m DebounceMode) String() string {
	if m == TrailingEdge {
		return "trailing_edge"
	}
	return "leading_edge"
}

// Delay shifts every emission later by d, preserving order.
func Delay[T any](d time.Duration) Flow[T, T] {
	name := fmt.Sprintf("delay(%s)", d)
	return New(name, func(ctx context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				if !sleep(ctx, d) {
					var zero T
					yield(zero, schema.NewError(schema.ErrCodeCancelled, "delay interrupted").WithFlow(name).WithCause(ctx.Err()))
					return false
				}
				return yield(item, nil)
			})
		}
	})
}

// Throttle enforces a minimum inter-emission interval of 1/ratePerSecond.
// The last-emission timestamp belongs to this Flow instance and persists
// across repeated runs.
func Throttle[T any](ratePerSecond float64) Flow[T, T] {
	name := fmt.Sprintf("throttle(%g/s)", ratePerSecond)

	var mu sync.Mutex
	var lastEmit time.Time

	return New(name, func(ctx context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			if ratePerSecond <= 0 {
				var zero T
				yield(zero, schema.NewErrorf(schema.ErrCodeConfiguration, "throttle rate must be positive, got %g", ratePerSecond).WithFlow(name))
				return
			}
			minInterval := time.Duration(float64(time.Second) / ratePerSecond)
			in(func(item T, err error) bool {
				if err != nil {
					return yield(item, err)
				}
				mu.Lock()
				wait := minInterval - time.Since(lastEmit)
				mu.Unlock()
				if wait > 0 && !sleep(ctx, wait) {
					var zero T
					yield(zero, schema.NewError(schema.ErrCodeCancelled, "throttle interrupted").WithFlow(name).WithCause(ctx.Err()))
					return false
				}
				mu.Lock()
				lastEmit = time.Now()
				mu.Unlock()
				return yield(item, nil)
			})
		}
	})
}

// Debounce suppresses burst emissions within interval. LeadingEdge keeps
// the first item of a burst, TrailingEdge the last; a burst ends after
// interval of upstream silence.
func Debounce[T any](interval time.Duration, mode DebounceMode) Flow[T, T] {
	name := fmt.Sprintf("debounce(%s, %s)", interval, mode)
	return New(name, func(ctx context.Context, in Stream[T]) Stream[T] {
		if mode == TrailingEdge {
			return debounceTrailing(ctx, interval, in)
		}
		return debounceLeading(interval, in)
	})
}

// debounceLeading measures the gap between arrivals: the first item, and
// any item arriving after at least interval of silence, starts a new
// burst and is emitted.
func debounceLeading[T any](interval time.Duration, in Stream[T]) Stream[T] {
	return func(yield func(T, error) bool) {
		var lastArrival time.Time
		first := true
		in(func(item T, err error) bool {
			if err != nil {
				return yield(item, err)
			}
			now := time.Now()
			newBurst := first || now.Sub(lastArrival) >= interval
			first = false
			lastArrival = now
			if !newBurst {
				return true
			}
			return yield(item, nil)
		})
	}
}

// debounceTrailing holds the most recent item and emits it once interval
// passes without a newer arrival. The held item is flushed when upstream
// completes.
func debounceTrailing[T any](ctx context.Context, interval time.Duration, in Stream[T]) Stream[T] {
	return func(yield func(T, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		src := pump(ctx, in)
		timer := time.NewTimer(interval)
		timer.Stop()
		defer timer.Stop()

		var pending T
		havePending := false
		for {
			select {
			case it, open := <-src:
				if !open {
					if havePending {
						yield(pending, nil)
					}
					return
				}
				if it.err != nil {
					var zero T
					yield(zero, it.err)
					return
				}
				pending = it.val
				havePending = true
				timer.Reset(interval)
			case <-timer.C:
				if !havePending {
					continue
				}
				havePending = false
				if !yield(pending, nil) {
					return
				}
			}
		}
	}
}

// Timeout raises TIMEOUT_ERROR when no item arrives within d of stream
// start or of the previous item. Already-delivered items stand.
func Timeout[T any](d time.Duration) Flow[T, T] {
	name := fmt.Sprintf("timeout(%s)", d)
	return New(name, func(ctx context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			src := pump(ctx, in)
			timer := time.NewTimer(d)
			defer timer.Stop()

			for {
				select {
				case it, open := <-src:
					if !open {
						return
					}
					if !yield(it.val, it.err) || it.err != nil {
						return
					}
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(d)
				case <-timer.C:
					var zero T
					yield(zero, schema.NewErrorf(schema.ErrCodeTimeout, "no item within %s", d).WithFlow(name))
					return
				}
			}
		}
	})
}

// Sample emits the most recently seen upstream value on each tick of
// interval, or nothing when no new value arrived since the previous tick.
func Sample[T any](interval time.Duration) Flow[T, T] {
	name := fmt.Sprintf("sample(%s)", interval)
	return New(name, func(ctx context.Context, in Stream[T]) Stream[T] {
		return func(yield func(T, error) bool) {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			src := pump(ctx, in)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			var latest T
			fresh := false
			for {
				select {
				case it, open := <-src:
					if !open {
						return
					}
					if it.err != nil {
						var zero T
						yield(zero, it.err)
						return
					}
					latest = it.val
					fresh = true
				case <-ticker.C:
					if !fresh {
						continue
					}
					fresh = false
					if !yield(latest, nil) {
						return
					}
				}
			}
		}
	})
}

// sleep waits for d or until ctx is cancelled; it reports whether the
// full duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
