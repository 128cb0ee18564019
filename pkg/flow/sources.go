package flow

import (
	"sync"
)

// FromSlice emits the items of a slice in order.
func FromSlice[T any](items []T) Stream[T] {
	return func(yield func(T, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Range emits the integers in [start, end).
func Range(start, end int) Stream[int] {
	return func(yield func(int, error) bool) {
		for i := start; i < end; i++ {
			if !yield(i, nil) {
				return
			}
		}
	}
}

// Repeat emits item count times. A negative count emits forever.
func Repeat[T any](item T, count int) Stream[T] {
	return func(yield func(T, error) bool) {
		for i := 0; count < 0 || i < count; i++ {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Empty emits nothing.
func Empty[T any]() Stream[T] {
	return func(yield func(T, error) bool) {}
}

// Pure emits a single value.
func Pure[T any](item T) Stream[T] {
	return func(yield func(T, error) bool) {
		yield(item, nil)
	}
}

// StartWith prepends items to a source stream.
func StartWith[T any](source Stream[T], items ...T) Stream[T] {
	return func(yield func(T, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
		source(yield)
	}
}

// FromChannel emits values received from ch until it is closed.
func FromChannel[T any](ch <-chan T) Stream[T] {
	return func(yield func(T, error) bool) {
		for item := range ch {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// ChainStreams concatenates independent streams end to end. An in-band
// error in one stream ends the whole chain.
func ChainStreams[T any](streams ...Stream[T]) Stream[T] {
	return func(yield func(T, error) bool) {
		for _, s := range streams {
			ok := true
			s(func(item T, err error) bool {
				if err != nil {
					ok = false
					yield(item, err)
					return false
				}
				ok = yield(item, nil)
				return ok
			})
			if !ok {
				return
			}
		}
	}
}

// Merge interleaves independent streams in completion order. Every item is
// eventually delivered unless one stream errors, which propagates
// immediately and cancels the rest.
func Merge[T any](streams ...Stream[T]) Stream[T] {
	return func(yield func(T, error) bool) {
		done := make(chan struct{})
		out := make(chan streamItem[T])

		var wg sync.WaitGroup
		for _, s := range streams {
			wg.Add(1)
			go func(s Stream[T]) {
				defer wg.Done()
				s(func(item T, err error) bool {
					select {
					case out <- streamItem[T]{item, err}:
						return err == nil
					case <-done:
						return false
					}
				})
			}(s)
		}
		go func() {
			wg.Wait()
			close(out)
		}()
		defer close(done)

		for it := range out {
			if !yield(it.val, it.err) || it.err != nil {
				return
			}
		}
	}
}

// streamItem carries one in-band stream element through a channel.
type streamItem[T any] struct {
	val T
	err error
}
