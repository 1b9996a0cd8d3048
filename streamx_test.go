package streamx_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsocket/streamx"
)

func just[T any](values ...T) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		c.OnSubscribe(noopDisposable{})
		for _, v := range values {
			c.OnNext(v)
		}
		c.OnComplete()
	})
}

type noopDisposable struct{}

func (noopDisposable) Dispose()         {}
func (noopDisposable) IsDisposed() bool { return false }

func TestSubscribe_WiresAllThreeCallbacksAndReturnsTheSubscribedDisposable(t *testing.T) {
	var values []int
	var completed bool
	d := streamx.Subscribe[int](just(1, 2, 3), func(v int) { values = append(values, v) }, nil, func() { completed = true })
	assert.Equal(t, []int{1, 2, 3}, values)
	assert.True(t, completed)
	require.NotNil(t, d)
	assert.False(t, d.IsDisposed())
}

func TestSubscribe_ReturnsAnEmptyDisposableWhenOnSubscribeWasNeverCalled(t *testing.T) {
	silent := streamx.SourceFunc[int](func(c streamx.Consumer[int]) {})
	d := streamx.Subscribe[int](silent, nil, nil, nil)
	require.NotNil(t, d)
	assert.True(t, d.IsDisposed(), "the empty disposable stands in for a Source that never called OnSubscribe")
	assert.NotPanics(t, d.Dispose)
}

func TestSubscribe_ForwardsTheErrorCallback(t *testing.T) {
	boom := errors.New("boom")
	failing := streamx.SourceFunc[int](func(c streamx.Consumer[int]) {
		c.OnSubscribe(noopDisposable{})
		c.OnError(boom)
	})
	var got error
	streamx.Subscribe[int](failing, nil, func(e error) { got = e }, nil)
	assert.ErrorIs(t, got, boom)
}

func TestNewConsumer_NilCallbacksAreNoOpsRatherThanPanics(t *testing.T) {
	c := streamx.NewConsumer[int](nil, nil, nil, nil)
	assert.NotPanics(t, func() {
		c.OnSubscribe(noopDisposable{})
		c.OnNext(1)
		c.OnError(errors.New("boom"))
		c.OnComplete()
	})
}

func TestNotificationConstructors_TagTheCorrectKind(t *testing.T) {
	n := streamx.Next[int](7)
	assert.Equal(t, streamx.KindNext, n.Kind)
	assert.Equal(t, 7, n.Value)

	boom := errors.New("boom")
	e := streamx.Error[int](boom)
	assert.Equal(t, streamx.KindError, e.Kind)
	assert.ErrorIs(t, e.Err, boom)

	c := streamx.Complete[int]()
	assert.Equal(t, streamx.KindComplete, c.Kind)
}
