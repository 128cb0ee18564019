package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/streamflow/pkg/schema"
)

func TestFilterLaws(t *testing.T) {
	ctx := context.Background()
	input := []int{1, 2, 3, 4, 5}

	all, err := Collect(ctx, Filter(func(int) bool { return true }).Run(ctx, FromSlice(input)))
	require.NoError(t, err)
	assert.Equal(t, input, all)

	none, err := Collect(ctx, Filter(func(int) bool { return false }).Run(ctx, FromSlice(input)))
	require.NoError(t, err)
	assert.Empty(t, none)

	even := func(n int) bool { return n%2 == 0 }
	once, err := Collect(ctx, Filter(even).Run(ctx, FromSlice(input)))
	require.NoError(t, err)
	twice, err := Collect(ctx, Compose(Filter(even), Filter(even)).Run(ctx, FromSlice(input)))
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestTakeSkipComplementarity(t *testing.T) {
	ctx := context.Background()
	input := []int{10, 20, 30, 40, 50}

	head, err := Collect(ctx, Take[int](2).Run(ctx, FromSlice(input)))
	require.NoError(t, err)
	tail, err := Collect(ctx, Skip[int](2).Run(ctx, FromSlice(input)))
	require.NoError(t, err)

	assert.Equal(t, input, append(head, tail...))
}

func TestTakeClosesUpstream(t *testing.T) {
	ctx := context.Background()
	produced := 0
	source := Stream[int](func(yield func(int, error) bool) {
		for i := 0; ; i++ {
			produced++
			if !yield(i, nil) {
				return
			}
		}
	})

	got, err := Collect(ctx, Take[int](3).Run(ctx, source))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.LessOrEqual(t, produced, 4)
}

func TestFlatMap(t *testing.T) {
	ctx := context.Background()
	f := FlatMap(func(n int) Stream[int] { return FromSlice([]int{n, n * 10}) })

	got, err := Collect(ctx, f.Run(ctx, FromSlice([]int{1, 2})))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 10, 2, 20}, got)
}

func TestFlatten(t *testing.T) {
	ctx := context.Background()
	got, err := Collect(ctx, Flatten[int]().Run(ctx, FromSlice([][]int{{1, 2}, {3}, {}})))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	g := Guard(func(n int) bool { return n >= 0 }, "value must be non-negative")

	got, err := Collect(ctx, g.Run(ctx, FromSlice([]int{1, 2, -1, 3})))
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, got)

	var ferr *schema.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeValidation, ferr.Code)
}

func TestWithFallback(t *testing.T) {
	ctx := context.Background()

	got, err := Collect(ctx, WithFallback(99).Run(ctx, Empty[int]()))
	require.NoError(t, err)
	assert.Equal(t, []int{99}, got)

	got, err = Collect(ctx, WithFallback(99).Run(ctx, FromSlice([]int{1, 2})))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
}

func TestForEach(t *testing.T) {
	ctx := context.Background()
	var seen []int
	err := ForEach(ctx, Range(0, 4), func(n int) error {
		seen = append(seen, n)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
}

func TestPreviewDoesNotLeak(t *testing.T) {
	ctx := context.Background()
	released := false
	source := Stream[int](func(yield func(int, error) bool) {
		defer func() { released = true }()
		for i := 0; ; i++ {
			if !yield(i, nil) {
				return
			}
		}
	})

	got, err := Preview(ctx, source, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.True(t, released)
}

func TestSources(t *testing.T) {
	ctx := context.Background()

	got, err := Collect(ctx, Repeat("x", 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "x", "x"}, got)

	single, err := Collect(ctx, Pure(7))
	require.NoError(t, err)
	assert.Equal(t, []int{7}, single)

	prefixed, err := Collect(ctx, StartWith(Range(2, 4), 0, 1))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, prefixed)

	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	close(ch)
	fromCh, err := Collect(ctx, FromChannel(ch))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, fromCh)

	chained, err := Collect(ctx, ChainStreams(Range(0, 2), Range(5, 7)))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 5, 6}, chained)
}

func TestMergeDeliversEverything(t *testing.T) {
	ctx := context.Background()
	got, err := Collect(ctx, Merge(Range(0, 3), Range(10, 13)))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1, 2, 10, 11, 12}, got)
}
