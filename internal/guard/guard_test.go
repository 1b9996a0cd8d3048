package guard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/disposable"
	"github.com/rsocket/streamx/hooks"
)

func TestGuard_DeliversOnSubscribeBeforeAnythingElse(t *testing.T) {
	var order []string
	c := streamx.NewConsumer[int](
		func(streamx.Disposable) { order = append(order, "subscribe") },
		func(int) { order = append(order, "next") },
		nil, nil,
	)
	g := New[int](c)
	g.Start()
	g.Next(1)
	assert.Equal(t, []string{"subscribe", "next"}, order)
}

func TestGuard_StopsDeliveryAfterComplete(t *testing.T) {
	var next []int
	completed := 0
	c := streamx.NewConsumer[int](nil, func(v int) { next = append(next, v) }, nil, func() { completed++ })
	g := New[int](c)
	g.Start()
	g.Next(1)
	require.True(t, g.Complete())
	g.Next(2)
	assert.False(t, g.Complete())
	assert.Equal(t, []int{1}, next)
	assert.Equal(t, 1, completed)
	assert.True(t, g.IsDisposed())
}

func TestGuard_SecondErrorRoutesToUndeliverableHook(t *testing.T) {
	var captured error
	hooks.SetUndeliverableErrorHandler(func(err error) { captured = err })
	defer hooks.SetUndeliverableErrorHandler(nil)

	c := streamx.NewConsumer[int](nil, nil, func(error) {}, nil)
	g := New[int](c)
	g.Start()
	require.True(t, g.Error(errors.New("first")))
	second := errors.New("second")
	assert.False(t, g.Error(second))
	assert.Same(t, second, captured)
}

func TestGuard_SetUpstreamAfterDisposeDisposesImmediately(t *testing.T) {
	c := streamx.NewConsumer[int](nil, nil, nil, nil)
	g := New[int](c)
	g.Start()
	g.Dispose()

	upstream := disposable.NewAction(func() {})
	g.SetUpstream(upstream)
	assert.True(t, upstream.IsDisposed())
}

func TestGuard_DisposeBlocksFurtherNext(t *testing.T) {
	var next []int
	c := streamx.NewConsumer[int](nil, func(v int) { next = append(next, v) }, nil, nil)
	g := New[int](c)
	g.Start()
	g.Next(1)
	g.Dispose()
	g.Next(2)
	assert.Equal(t, []int{1}, next)
}
