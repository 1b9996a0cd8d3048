// Package guard is the internal handshake enforcer shared by every source
// and operator: it is the one place that knows how to deliver OnSubscribe
// exactly once, serialize terminals, and discard late callbacks instead of
// breaking the spec.md §3 consumer contract. Grounded on the teacher's
// rx/mono.go and rx/flux.go pattern of an atomic "sig" field guarding
// terminal delivery, generalized here to any Consumer[T] and shared across
// the whole operator set rather than duplicated per type.
package guard

import (
	"go.uber.org/atomic"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/disposable"
	"github.com/rsocket/streamx/hooks"
)

// Guard wraps a downstream Consumer and is itself the Disposable handed to
// it via OnSubscribe. It tracks whatever upstream Disposable the operator
// later supplies via SetUpstream, and makes sure OnNext never reaches the
// downstream once a terminal has fired or the subscription was cancelled.
type Guard[T any] struct {
	downstream streamx.Consumer[T]
	terminated atomic.Bool
	cancelled  atomic.Bool
	upstream   *disposable.Serial
}

// New builds a Guard around downstream. Callers must invoke Start before
// delivering any OnNext/OnError/OnComplete, and SetUpstream once the real
// upstream subscription disposable is known.
func New[T any](downstream streamx.Consumer[T]) *Guard[T] {
	return &Guard[T]{downstream: downstream, upstream: disposable.NewSerial()}
}

// Start delivers OnSubscribe(g) to the downstream, handing it this Guard as
// its cancellation handle.
func (g *Guard[T]) Start() { g.downstream.OnSubscribe(g) }

// SetUpstream records the disposable that actually cancels upstream work.
// If the Guard has already been disposed, d is disposed immediately instead
// of being held, so a synchronous completion racing with an early cancel
// never leaks.
func (g *Guard[T]) SetUpstream(d disposable.Disposable) { g.upstream.Set(d) }

// Dispose cancels the subscription: downstream stops receiving callbacks
// and the tracked upstream is disposed. Idempotent, and also called
// internally once Error or Complete has been delivered.
func (g *Guard[T]) Dispose() {
	g.cancelled.Store(true)
	g.upstream.Dispose()
}

// IsDisposed reports whether Dispose has run, either externally or as the
// side effect of a delivered terminal.
func (g *Guard[T]) IsDisposed() bool { return g.cancelled.Load() }

// Done reports whether further OnNext delivery must stop: either the
// subscription was cancelled, or a terminal has already been claimed (even
// if the matching OnError/OnComplete call is still in flight).
func (g *Guard[T]) Done() bool { return g.cancelled.Load() || g.terminated.Load() }

// Next delivers v downstream, unless the subscription is already done.
// Reports whether the value was actually delivered, so operators that track
// their own demand or state can short-circuit once it returns false.
func (g *Guard[T]) Next(v T) bool {
	if g.Done() {
		return false
	}
	g.downstream.OnNext(v)
	return true
}

// Error claims the terminal slot and delivers err downstream. If a terminal
// has already been claimed, err is routed to the undeliverable-error hook
// instead of being dropped silently.
func (g *Guard[T]) Error(err error) bool {
	if !g.terminated.CompareAndSwap(false, true) {
		hooks.OnUndeliverableError(err)
		return false
	}
	g.Dispose()
	g.downstream.OnError(err)
	return true
}

// Complete claims the terminal slot and delivers OnComplete downstream.
// A no-op if a terminal has already been claimed.
func (g *Guard[T]) Complete() bool {
	if !g.terminated.CompareAndSwap(false, true) {
		return false
	}
	g.Dispose()
	g.downstream.OnComplete()
	return true
}
