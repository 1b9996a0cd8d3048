package multicast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/scheduler"
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

func TestPublish_LateSubscriberMissesValuesEmittedBeforeItJoined(t *testing.T) {
	cs := Publish(source.Just(1, 2, 3))

	var early []int
	cs.Subscribe(streamx.NewConsumer[int](nil, func(v int) { early = append(early, v) }, nil, nil))
	cs.Connect()
	assert.Equal(t, []int{1, 2, 3}, early)

	var late []int
	var lateCompleted bool
	cs.Subscribe(streamx.NewConsumer[int](nil, func(v int) { late = append(late, v) }, nil, func() { lateCompleted = true }))
	assert.Empty(t, late)
	assert.True(t, lateCompleted, "terminal is latched and replayed even for publish")
}

func TestReplaySizeBound_KeepsOnlyTheMostRecentN(t *testing.T) {
	cs := ReplaySizeBound(source.Range(0, 5), 2)
	cs.Connect()

	values, _, completed := collect[int](cs)
	assert.True(t, completed)
	assert.Equal(t, []int{3, 4}, values)
}

func TestReplayUnbounded_JoiningAfterCompletionSeesEverythingThenComplete(t *testing.T) {
	cs := ReplayUnbounded(source.Just(1, 2, 3))
	cs.Connect()

	values, _, completed := collect[int](cs)
	assert.True(t, completed)
	assert.Equal(t, []int{1, 2, 3}, values)
}

func TestReplayTimeBound_EvictsEntriesOlderThanTheSpan(t *testing.T) {
	v := scheduler.NewVirtual(time.Unix(0, 0))
	var upstreamConsumer streamx.Consumer[int]
	upstream := streamx.SourceFunc[int](func(c streamx.Consumer[int]) {
		upstreamConsumer = c
		c.OnSubscribe(noopDisposable{})
	})
	cs := ReplayTimeBound[int](upstream, 10*time.Millisecond, v)
	cs.Connect()

	upstreamConsumer.OnNext(1)
	v.Advance(15 * time.Millisecond)
	upstreamConsumer.OnNext(2)
	upstreamConsumer.OnComplete()

	values, _, completed := collect[int](cs)
	assert.True(t, completed)
	assert.Equal(t, []int{2}, values)
}

func TestConnect_IsIdempotentWhileAlreadyConnected(t *testing.T) {
	subscribeCount := 0
	upstream := streamx.SourceFunc[int](func(c streamx.Consumer[int]) {
		subscribeCount++
		c.OnSubscribe(noopDisposable{})
	})
	cs := Publish[int](upstream)
	d1 := cs.Connect()
	d2 := cs.Connect()
	assert.Same(t, d1, d2)
	assert.Equal(t, 1, subscribeCount)
}

func TestShare_ConnectsOnFirstSubscriberAndDisconnectsAtZero(t *testing.T) {
	subscribeCount := 0
	upstream := streamx.SourceFunc[int](func(c streamx.Consumer[int]) {
		subscribeCount++
		c.OnSubscribe(noopDisposable{})
		c.OnNext(1)
		c.OnNext(2)
		c.OnComplete()
	})

	shared := Share[int](upstream)
	var v1, v2 []int
	d1 := streamx.Subscribe[int](shared, func(v int) { v1 = append(v1, v) }, nil, nil)
	d2 := streamx.Subscribe[int](shared, func(v int) { v2 = append(v2, v) }, nil, nil)
	assert.Equal(t, []int{1, 2}, v1)
	assert.Empty(t, v2, "second subscriber joins after the synchronous upstream already finished and terminated")
	d1.Dispose()
	d2.Dispose()

	// upstream already reached a genuine terminal, so a third subscriber
	// after the refcount dropped to zero just sees the latched terminal —
	// Connect never resubscribes a source that has already finished.
	var v3 []int
	var v3Completed bool
	streamx.Subscribe[int](shared, func(v int) { v3 = append(v3, v) }, nil, func() { v3Completed = true })
	assert.Empty(t, v3)
	assert.True(t, v3Completed)
	assert.Equal(t, 1, subscribeCount)
}

func TestCache_ConnectsOnceAndReplaysToEverySubscriber(t *testing.T) {
	attempts := 0
	upstream := streamx.SourceFunc[int](func(c streamx.Consumer[int]) {
		attempts++
		c.OnSubscribe(noopDisposable{})
		c.OnNext(7)
		c.OnComplete()
	})

	cached := Cache[int](upstream)
	v1, _, c1 := collect[int](cached)
	v2, _, c2 := collect[int](cached)
	assert.Equal(t, []int{7}, v1)
	assert.Equal(t, []int{7}, v2)
	assert.True(t, c1)
	assert.True(t, c2)
	assert.Equal(t, 1, attempts)
}

type noopDisposable struct{}

func (noopDisposable) Dispose()         {}
func (noopDisposable) IsDisposed() bool { return false }

func TestReplayUnbounded_ErrorIsLatchedForFutureSubscribers(t *testing.T) {
	boom := assertError("boom")
	cs := ReplayUnbounded[int](source.Err[int](boom))
	cs.Connect()

	_, err, _ := collect[int](cs)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

type assertError string

func (e assertError) Error() string { return string(e) }
