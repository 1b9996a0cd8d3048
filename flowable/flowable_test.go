package flowable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/source"
)

type recordingSubscriber struct {
	values       []int
	err          error
	completed    bool
	subscription Subscription
}

func (r *recordingSubscriber) OnSubscribe(s Subscription) { r.subscription = s }
func (r *recordingSubscriber) OnNext(v int)                { r.values = append(r.values, v) }
func (r *recordingSubscriber) OnError(err error)           { r.err = err }
func (r *recordingSubscriber) OnComplete()                 { r.completed = true }

func TestToBackpressured_DeliversNoMoreThanRequested(t *testing.T) {
	r := &recordingSubscriber{}
	ToBackpressured[int](source.Just(0, 1, 2, 3, 4), BUFFER).Subscribe(r)

	require.NotNil(t, r.subscription)
	assert.Empty(t, r.values)

	r.subscription.Request(2)
	assert.Equal(t, []int{0, 1}, r.values)

	r.subscription.Request(10)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, r.values)
	assert.True(t, r.completed)
}

func TestToBackpressured_DropStrategyDiscardsBeyondOutstandingDemand(t *testing.T) {
	var upstreamConsumer streamx.Consumer[int]
	upstream := streamx.SourceFunc[int](func(c streamx.Consumer[int]) {
		upstreamConsumer = c
		c.OnSubscribe(noopDisposable{})
	})

	r := &recordingSubscriber{}
	ToBackpressured[int](upstream, DROP).Subscribe(r)

	r.subscription.Request(2)
	upstreamConsumer.OnNext(1)
	upstreamConsumer.OnNext(2)
	upstreamConsumer.OnNext(3)
	assert.Equal(t, []int{1, 2}, r.values, "the third value arrives once outstanding demand is already exhausted and is dropped")
}

func TestToBackpressured_LatestStrategyKeepsOnlyTheMostRecentValue(t *testing.T) {
	var upstreamConsumer streamx.Consumer[int]
	upstream := streamx.SourceFunc[int](func(c streamx.Consumer[int]) {
		upstreamConsumer = c
		c.OnSubscribe(noopDisposable{})
	})

	r := &recordingSubscriber{}
	ToBackpressured[int](upstream, LATEST).Subscribe(r)

	upstreamConsumer.OnNext(1)
	upstreamConsumer.OnNext(2)
	upstreamConsumer.OnNext(3)
	assert.Empty(t, r.values, "nothing requested yet")

	r.subscription.Request(1)
	assert.Equal(t, []int{3}, r.values)
}

func TestToBackpressured_ErrorStrategySignalsOverflow(t *testing.T) {
	var upstreamConsumer streamx.Consumer[int]
	upstream := streamx.SourceFunc[int](func(c streamx.Consumer[int]) {
		upstreamConsumer = c
		c.OnSubscribe(noopDisposable{})
	})

	r := &recordingSubscriber{}
	ToBackpressured[int](upstream, ERROR).Subscribe(r)

	upstreamConsumer.OnNext(1)
	require.Error(t, r.err)
}

func TestToBackpressured_TerminalDeliversEvenWithoutOutstandingDemand(t *testing.T) {
	r := &recordingSubscriber{}
	ToBackpressured[int](source.Empty[int](), BUFFER).Subscribe(r)
	assert.True(t, r.completed)
}

func TestFromPublisher_RequestsUnboundedAndForwardsEverything(t *testing.T) {
	pub := ToBackpressured[int](source.Just(1, 2, 3), BUFFER)
	var values []int
	var completed bool
	streamx.Subscribe[int](FromPublisher[int](pub), func(v int) { values = append(values, v) }, nil, func() { completed = true })
	assert.Equal(t, []int{1, 2, 3}, values)
	assert.True(t, completed)
}

func TestCancel_StopsFurtherDeliveryAndDisposesUpstream(t *testing.T) {
	disposed := false
	upstream := streamx.SourceFunc[int](func(c streamx.Consumer[int]) {
		c.OnSubscribe(disposableFunc{dispose: func() { disposed = true }, isDisposed: func() bool { return disposed }})
	})

	r := &recordingSubscriber{}
	ToBackpressured[int](upstream, BUFFER).Subscribe(r)
	r.subscription.Cancel()
	assert.True(t, disposed)
	assert.True(t, r.subscription.IsCancelled())
}

type noopDisposable struct{}

func (noopDisposable) Dispose()         {}
func (noopDisposable) IsDisposed() bool { return false }

type disposableFunc struct {
	dispose    func()
	isDisposed func() bool
}

func (d disposableFunc) Dispose()         { d.dispose() }
func (d disposableFunc) IsDisposed() bool { return d.isDisposed() }
