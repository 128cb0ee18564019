package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/streamflow/pkg/schema"
)

func slowMap(d time.Duration, fn func(int) int) Flow[int, int] {
	return FromFunc(func(ctx context.Context, n int) (int, error) {
		if !sleep(ctx, d) {
			return 0, ctx.Err()
		}
		return fn(n), nil
	})
}

func TestRaceFastWins(t *testing.T) {
	ctx := context.Background()
	fast := Map(double)
	slow := slowMap(100*time.Millisecond, func(n int) int { return n + 1000 })

	got, err := Collect(ctx, Race(fast, slow).Run(ctx, Range(1, 4)))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, got)
}

func TestRaceAllFail(t *testing.T) {
	ctx := context.Background()
	failing := FromFunc(func(_ context.Context, _ int) (int, error) {
		return 0, errors.New("nope")
	})

	_, err := Collect(ctx, Race(failing, failing).Run(ctx, Pure(1)))
	var ferr *schema.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeExecution, ferr.Code)
	assert.Equal(t, "all racing flows failed", ferr.Message)
}

func TestParallelGathersInFlowOrder(t *testing.T) {
	ctx := context.Background()
	f := Parallel(
		slowMap(20*time.Millisecond, double),
		Map(func(n int) int { return n + 1 }),
	)

	got, err := Collect(ctx, f.Run(ctx, Range(1, 3)))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{2, 2}, {4, 3}}, got)
}

func TestParallelFailsWholeItem(t *testing.T) {
	ctx := context.Background()
	failing := FromFunc(func(_ context.Context, _ int) (int, error) {
		return 0, errors.New("nope")
	})

	_, err := Collect(ctx, Parallel(Map(double), failing).Run(ctx, Pure(1)))
	require.Error(t, err)
}

func TestParallelSuccessfulOmitsFailures(t *testing.T) {
	ctx := context.Background()
	failing := FromFunc(func(_ context.Context, _ int) (int, error) {
		return 0, errors.New("nope")
	})

	got, err := Collect(ctx, ParallelSuccessful(Map(double), failing).Run(ctx, Pure(3)))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{6}}, got)

	empty, err := Collect(ctx, ParallelSuccessful(failing).Run(ctx, Pure(3)))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{}}, empty)
}

func TestZipStopsAtShorterSide(t *testing.T) {
	ctx := context.Background()
	f := Zip[int](FromSlice([]string{"a", "b", "c"}))

	got, err := Collect(ctx, f.Run(ctx, Range(0, 10)))
	require.NoError(t, err)
	assert.Equal(t, []Zipped[int, string]{
		{First: 0, Second: "a"},
		{First: 1, Second: "b"},
		{First: 2, Second: "c"},
	}, got)
}

func TestMergeFlowsDeliversAllOutputs(t *testing.T) {
	ctx := context.Background()
	f := MergeFlows(Map(double), Map(func(n int) int { return n + 100 }))

	got, err := Collect(ctx, f.Run(ctx, Range(1, 4)))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{2, 4, 6, 101, 102, 103}, got)
}

func TestCombineLatestPairsWithLatest(t *testing.T) {
	ctx := context.Background()
	f := CombineLatest[int](Pure("tick"))

	// Give the companion stream time to produce before inputs arrive.
	source := Stream[int](func(yield func(int, error) bool) {
		time.Sleep(20 * time.Millisecond)
		yield(1, nil)
		yield(2, nil)
	})

	got, err := Collect(ctx, f.Run(ctx, source))
	require.NoError(t, err)
	assert.Equal(t, []Zipped[int, string]{
		{First: 1, Second: "tick"},
		{First: 2, Second: "tick"},
	}, got)
}

func TestCombineLatestSkipsBeforeFirstValue(t *testing.T) {
	ctx := context.Background()
	silent := Stream[string](func(yield func(string, error) bool) {
		time.Sleep(50 * time.Millisecond)
	})

	got, err := Collect(ctx, CombineLatest[int](silent).Run(ctx, Range(0, 3)))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFlatMapCtxSeesOriginal(t *testing.T) {
	ctx := context.Background()
	f := FlatMapCtx(func(_ context.Context, current, original int) Stream[int] {
		return Pure(current*10 + original)
	})

	got, err := Collect(ctx, f.Run(ctx, Range(1, 4)))
	require.NoError(t, err)
	assert.Equal(t, []int{11, 21, 31}, got)
}
