package operators

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/source"
)

func collect[T any](src streamx.Source[T]) (values []T, err error, completed bool) {
	streamx.Subscribe[T](src,
		func(v T) { values = append(values, v) },
		func(e error) { err = e },
		func() { completed = true },
	)
	return
}

func TestMap_TransformsEveryValue(t *testing.T) {
	values, err, completed := collect[int](Map(source.Just(1, 2, 3), func(v int) (int, error) { return v * 2, nil }))
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, []int{2, 4, 6}, values)
}

func TestMap_ErrorFromMapperTerminates(t *testing.T) {
	boom := errors.New("boom")
	_, err, completed := collect[int](Map(source.Just(1, 2, 3), func(v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, completed)
}

func TestMap_PanicFromMapperBecomesError(t *testing.T) {
	_, err, _ := collect[int](Map(source.Just(1), func(v int) (int, error) {
		panic("nope")
	}))
	require.Error(t, err)
}

func TestFilter_KeepsOnlyMatching(t *testing.T) {
	values, _, _ := collect[int](Filter(source.Range(0, 6), func(v int) (bool, error) { return v%2 == 0, nil }))
	assert.Equal(t, []int{0, 2, 4}, values)
}

func TestScan_EmitsRunningTotalsIndependentlyPerSubscription(t *testing.T) {
	scanned := Scan[int, int](source.Just(1, 2, 3), 0, func(acc, v int) (int, error) { return acc + v, nil })
	v1, _, _ := collect[int](scanned)
	v2, _, _ := collect[int](scanned)
	assert.Equal(t, []int{1, 3, 6}, v1)
	assert.Equal(t, []int{1, 3, 6}, v2)
}

func TestTake_StopsAfterNAndCompletes(t *testing.T) {
	values, _, completed := collect[int](Take(source.Range(0, 100), 3))
	assert.True(t, completed)
	assert.Equal(t, []int{0, 1, 2}, values)
}

func TestTake_ZeroCompletesImmediately(t *testing.T) {
	values, _, completed := collect[int](Take(source.Range(0, 100), 0))
	assert.True(t, completed)
	assert.Empty(t, values)
}

func TestSkip_DropsFirstN(t *testing.T) {
	values, _, _ := collect[int](Skip(source.Range(0, 5), 2))
	assert.Equal(t, []int{2, 3, 4}, values)
}

func TestTakeWhile_StopsAtFirstFalse(t *testing.T) {
	values, _, completed := collect[int](TakeWhile(source.Range(0, 10), func(v int) bool { return v < 3 }))
	assert.True(t, completed)
	assert.Equal(t, []int{0, 1, 2}, values)
}

func TestDistinctUntilChanged_DropsConsecutiveDuplicatesOnly(t *testing.T) {
	values, _, _ := collect[int](DistinctUntilChanged[int](source.FromSlice([]int{1, 1, 2, 2, 1, 3, 3})))
	assert.Equal(t, []int{1, 2, 1, 3}, values)
}

func TestDistinctUntilChanged_WithComparerUsesCustomEquality(t *testing.T) {
	values, _, _ := collect[int](DistinctUntilChanged(source.FromSlice([]int{1, -1, 2, -2, 2}), WithComparer(func(a, b int) bool {
		if a < 0 {
			a = -a
		}
		if b < 0 {
			b = -b
		}
		return a == b
	})))
	assert.Equal(t, []int{1, 2}, values)
}

func TestDistinctUntilChangedBy_ComparesByDerivedKey(t *testing.T) {
	type pair struct {
		key   int
		value string
	}
	values, _, _ := collect[pair](DistinctUntilChangedBy(source.FromSlice([]pair{
		{1, "a"}, {1, "b"}, {2, "c"}, {2, "d"}, {1, "e"},
	}), func(p pair) int { return p.key }))
	require.Len(t, values, 3)
	assert.Equal(t, []int{1, 2, 1}, []int{values[0].key, values[1].key, values[2].key})
}

func TestStartWith_PrependsValues(t *testing.T) {
	values, _, _ := collect[int](StartWith(source.Just(3, 4), 1, 2))
	assert.Equal(t, []int{1, 2, 3, 4}, values)
}

func TestEndWith_AppendsAfterNormalCompletionOnly(t *testing.T) {
	values, _, completed := collect[int](EndWith(source.Just(1, 2), 3, 4))
	assert.True(t, completed)
	assert.Equal(t, []int{1, 2, 3, 4}, values)

	boom := errors.New("boom")
	values2, err, _ := collect[int](EndWith(source.Err[int](boom), 3, 4))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, values2)
}

func TestOnErrorReturn_ReplacesErrorWithFallbackValue(t *testing.T) {
	boom := errors.New("boom")
	values, err, completed := collect[int](OnErrorReturn(source.Err[int](boom), func(error) int { return -1 }))
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, []int{-1}, values)
}

func TestOnErrorResumeNext_SwitchesToFallbackSource(t *testing.T) {
	boom := errors.New("boom")
	values, err, completed := collect[int](OnErrorResumeNext(source.Err[int](boom), func(error) streamx.Source[int] {
		return source.Just(9, 8)
	}))
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, []int{9, 8}, values)
}

func TestMaterialize_TurnsTerminalsIntoValues(t *testing.T) {
	notifications, err, completed := collect[streamx.Notification[int]](Materialize[int](source.Just(1, 2)))
	require.NoError(t, err)
	assert.True(t, completed)
	require.Len(t, notifications, 3)
	assert.Equal(t, streamx.KindNext, notifications[0].Kind)
	assert.Equal(t, streamx.KindNext, notifications[1].Kind)
	assert.Equal(t, streamx.KindComplete, notifications[2].Kind)
}

func TestDematerialize_InvertsMaterialize(t *testing.T) {
	materialized := Materialize[int](source.Just(1, 2))
	values, err, completed := collect[int](Dematerialize[int](materialized))
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, []int{1, 2}, values)
}

func TestDoOnNext_RunsSideEffectBeforeForwarding(t *testing.T) {
	var seen []int
	values, _, _ := collect[int](DoOnNext(source.Just(1, 2), func(v int) { seen = append(seen, v) }))
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, values, seen)
}

func TestDoFinally_RunsExactlyOnceOnNormalCompletion(t *testing.T) {
	n := 0
	collect[int](DoFinally(source.Just(1), func() { n++ }))
	assert.Equal(t, 1, n)
}

func TestDoFinally_RunsOnceOnEarlyDispose(t *testing.T) {
	n := 0
	d := streamx.Subscribe[int64](DoFinally[int64](neverSource(), func() { n++ }), nil, nil, nil)
	d.Dispose()
	d.Dispose()
	assert.Equal(t, 1, n)
}

func neverSource() streamx.Source[int64] {
	return streamx.SourceFunc[int64](func(c streamx.Consumer[int64]) {
		c.OnSubscribe(noopDisposable{})
	})
}

type noopDisposable struct{}

func (noopDisposable) Dispose()       {}
func (noopDisposable) IsDisposed() bool { return false }
