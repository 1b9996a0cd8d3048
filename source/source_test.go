package source

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/scheduler"
)

func collect[T any](src streamx.Source[T]) (values []T, err error, completed bool) {
	streamx.Subscribe[T](src,
		func(v T) { values = append(values, v) },
		func(e error) { err = e },
		func() { completed = true },
	)
	return
}

func TestJust_EmitsInOrderThenCompletes(t *testing.T) {
	values, err, completed := collect[int](Just(1, 2, 3))
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, []int{1, 2, 3}, values)
}

func TestEmpty_CompletesWithoutValues(t *testing.T) {
	values, err, completed := collect[int](Empty[int]())
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Empty(t, values)
}

func TestErr_TerminatesImmediately(t *testing.T) {
	boom := errors.New("boom")
	values, err, completed := collect[int](Err[int](boom))
	assert.Same(t, boom, err)
	assert.False(t, completed)
	assert.Empty(t, values)
}

func TestRange_EmitsConsecutiveIntegers(t *testing.T) {
	values, _, completed := collect[int](Range(5, 3))
	assert.True(t, completed)
	assert.Equal(t, []int{5, 6, 7}, values)
}

func TestFromChan_DrainsUntilClosed(t *testing.T) {
	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	close(ch)
	values, _, completed := collect[int](FromChan[int](ch))
	assert.True(t, completed)
	assert.Equal(t, []int{1, 2}, values)
}

func TestFromFunc_StopsOnNotOkAndPropagatesError(t *testing.T) {
	i := 0
	values, _, completed := collect[int](FromFunc(func() (int, bool, error) {
		if i >= 3 {
			return 0, false, nil
		}
		i++
		return i, true, nil
	}))
	assert.True(t, completed)
	assert.Equal(t, []int{1, 2, 3}, values)

	boom := errors.New("bad")
	_, err, _ := collect[int](FromFunc(func() (int, bool, error) {
		return 0, false, boom
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestDefer_CallsFactoryPerSubscription(t *testing.T) {
	calls := 0
	src := Defer(func() streamx.Source[int] {
		calls++
		return Just(calls)
	})
	v1, _, _ := collect[int](src)
	v2, _, _ := collect[int](src)
	assert.Equal(t, []int{1}, v1)
	assert.Equal(t, []int{2}, v2)
}

func TestUsing_EagerReleaseHappensBeforeTerminalByDefault(t *testing.T) {
	var order []string
	src := Using[int, int](
		func() (int, error) { order = append(order, "acquire"); return 1, nil },
		func(int) streamx.Source[int] { return Just(1) },
		func(int) { order = append(order, "release") },
		true,
	)
	streamx.Subscribe[int](src, func(int) { order = append(order, "next") }, nil, func() { order = append(order, "complete") })
	assert.Equal(t, []string{"acquire", "next", "release", "complete"}, order)
}

func TestUsing_NonEagerReleasesAfterTerminal(t *testing.T) {
	var order []string
	src := Using[int, int](
		func() (int, error) { return 1, nil },
		func(int) streamx.Source[int] { return Just(1) },
		func(int) { order = append(order, "release") },
		false,
	)
	streamx.Subscribe[int](src, nil, nil, func() { order = append(order, "complete") })
	assert.Equal(t, []string{"complete", "release"}, order)
}

func TestTimer_FiresOnceAfterDelay(t *testing.T) {
	v := scheduler.NewVirtual(time.Unix(0, 0))
	var values []int64
	completed := false
	streamx.Subscribe[int64](Timer(10*time.Millisecond, v), func(n int64) { values = append(values, n) }, nil, func() { completed = true })

	v.Advance(5 * time.Millisecond)
	assert.Empty(t, values)

	v.Advance(5 * time.Millisecond)
	assert.Equal(t, []int64{0}, values)
	assert.True(t, completed)
}

func TestInterval_TicksAtEveryPeriod(t *testing.T) {
	v := scheduler.NewVirtual(time.Unix(0, 0))
	var values []int64
	d := streamx.Subscribe[int64](Interval(10*time.Millisecond, v), func(n int64) { values = append(values, n) }, nil, nil)

	v.Advance(35 * time.Millisecond)
	assert.Equal(t, []int64{0, 1, 2}, values)

	d.Dispose()
	v.Advance(100 * time.Millisecond)
	assert.Equal(t, []int64{0, 1, 2}, values)
}
