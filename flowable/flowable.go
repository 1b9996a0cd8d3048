// Package flowable is the demand-signalling counterpart to the unbounded
// engine in the root package: a Publisher only emits what its Subscriber
// has authorized via Subscription.Request, instead of pushing as fast as
// upstream can produce. Grounded directly on the teacher's rx/queue.go
// bQueue (a demand-tracking queue: ticket counter, breaker-channel wakeup,
// RequestN) generalized from its single fixed payload.Payload type to any
// T, on _examples/other_examples/xinjiayu-RxGo__flowable.go's
// FlowableSubscription (Request/Cancel/IsCancelled) and
// BackpressureOverflowStrategy enum, and on
// _examples/other_examples/7vars-gtor__rx.go's generic
// Publisher[T]/Subscriber[T]/Subscription shape for the Go-generics
// rendition of Reactive Streams.
package flowable

import (
	"math"
	"sync"

	"go.uber.org/atomic"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/disposable"
	"github.com/rsocket/streamx/internal/guard"
	"github.com/rsocket/streamx/xerrors"
)

// RequestMax signals unbounded demand to Request, generalizing the
// teacher's bQueue math.MaxInt32 sentinel to the int64 request counts
// Reactive Streams uses.
const RequestMax = math.MaxInt64

// Subscription is the demand handle a Publisher hands its Subscriber via
// OnSubscribe.
type Subscription interface {
	// Request authorizes up to n further OnNext calls. Cumulative:
	// successive calls add to whatever demand is still outstanding,
	// saturating at RequestMax. n <= 0 is a no-op.
	Request(n int64)
	Cancel()
	IsCancelled() bool
}

// Subscriber is the four-callback sink a Publisher delivers to, extending
// the plain Consumer handshake with demand signalling.
type Subscriber[T any] interface {
	OnSubscribe(s Subscription)
	OnNext(v T)
	OnError(err error)
	OnComplete()
}

// Publisher is anything that, given a Subscriber, begins delivering
// notifications no faster than the Subscriber's outstanding Request.
type Publisher[T any] interface {
	Subscribe(s Subscriber[T])
}

// PublisherFunc adapts a plain function to a Publisher.
type PublisherFunc[T any] func(s Subscriber[T])

// Subscribe implements Publisher.
func (f PublisherFunc[T]) Subscribe(s Subscriber[T]) { f(s) }

// OverflowStrategy decides what ToBackpressured does when upstream produces
// a value the downstream hasn't requested yet.
type OverflowStrategy int

const (
	// BUFFER retains every unrequested value, unbounded.
	BUFFER OverflowStrategy = iota
	// DROP discards the incoming value once outstanding demand runs out.
	DROP
	// LATEST keeps only the most recently produced value, overwriting
	// whatever was pending.
	LATEST
	// ERROR fails the subscription once produced-but-undelivered values
	// exceed outstanding demand.
	ERROR
)

// demandQueue is the bQueue-derived core: a slice-backed (or single-slot,
// for LATEST) buffer plus a request-count ticket, drained under a
// wip-counter loop so exactly one goroutine ever delivers to sub at a time
// (the same "one drainer at a time" invariant observeOn's queue upholds).
type demandQueue[T any] struct {
	sub      Subscriber[T]
	strategy OverflowStrategy

	mu        sync.Mutex
	items     []T
	hasLatest bool
	latest    T
	terminal  *streamx.Notification[T]
	requested int64
	wip       int

	cancelled    atomic.Bool
	upstreamSlot *disposable.Serial
}

func newDemandQueue[T any](sub Subscriber[T], strategy OverflowStrategy) *demandQueue[T] {
	return &demandQueue[T]{sub: sub, strategy: strategy, upstreamSlot: disposable.NewSerial()}
}

func (q *demandQueue[T]) Request(n int64) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	next := q.requested + n
	if next < q.requested || next > RequestMax {
		next = RequestMax
	}
	q.requested = next
	q.mu.Unlock()
	q.drain()
}

func (q *demandQueue[T]) Cancel() {
	if q.cancelled.CompareAndSwap(false, true) {
		q.upstreamSlot.Dispose()
	}
}

func (q *demandQueue[T]) IsCancelled() bool { return q.cancelled.Load() }

func (q *demandQueue[T]) emptyLocked() bool {
	if q.strategy == LATEST {
		return !q.hasLatest
	}
	return len(q.items) == 0
}

func (q *demandQueue[T]) popLocked() (v T, ok bool) {
	if q.strategy == LATEST {
		if !q.hasLatest {
			return v, false
		}
		v, q.hasLatest = q.latest, false
		var zero T
		q.latest = zero
		return v, true
	}
	if len(q.items) == 0 {
		return v, false
	}
	v, q.items = q.items[0], q.items[1:]
	return v, true
}

// push queues v per the configured overflow strategy. Called on whatever
// goroutine upstream delivers OnNext from; never invoked concurrently with
// itself since a Source only ever calls one Consumer callback at a time.
func (q *demandQueue[T]) push(v T) {
	if q.cancelled.Load() {
		return
	}
	overflow := false
	q.mu.Lock()
	switch q.strategy {
	case BUFFER:
		q.items = append(q.items, v)
	case DROP:
		if int64(len(q.items)) < q.requested {
			q.items = append(q.items, v)
		}
	case LATEST:
		q.latest, q.hasLatest = v, true
	case ERROR:
		if int64(len(q.items)) >= q.requested {
			overflow = true
		} else {
			q.items = append(q.items, v)
		}
	}
	q.mu.Unlock()
	if overflow {
		q.fail(xerrors.NewProtocolViolation("backpressure overflow: downstream did not request enough"))
		return
	}
	q.drain()
}

func (q *demandQueue[T]) fail(err error) {
	q.mu.Lock()
	if q.terminal == nil {
		n := streamx.Error[T](err)
		q.terminal = &n
	}
	q.mu.Unlock()
	q.drain()
}

func (q *demandQueue[T]) finish() {
	q.mu.Lock()
	if q.terminal == nil {
		n := streamx.Complete[T]()
		q.terminal = &n
	}
	q.mu.Unlock()
	q.drain()
}

// drain coalesces concurrent Request/push/fail/finish calls into a single
// active drainOnce loop: whichever caller's increment lands on 1 owns the
// loop, and every other caller's increment is picked up as one more pass
// once the owner finishes its current pass. wip is guarded by mu along with
// everything else this type touches, matching the rest of the queue's
// single-mutex discipline instead of adding a second synchronization
// primitive just for this counter.
func (q *demandQueue[T]) drain() {
	q.mu.Lock()
	q.wip++
	first := q.wip == 1
	q.mu.Unlock()
	if !first {
		return
	}
	for {
		q.drainOnce()
		q.mu.Lock()
		q.wip--
		done := q.wip == 0
		q.mu.Unlock()
		if done {
			return
		}
	}
}

func (q *demandQueue[T]) drainOnce() {
	for {
		q.mu.Lock()
		if q.requested > 0 {
			if v, ok := q.popLocked(); ok {
				q.requested--
				q.mu.Unlock()
				if q.cancelled.Load() {
					return
				}
				q.sub.OnNext(v)
				continue
			}
		}
		if q.emptyLocked() && q.terminal != nil {
			term := q.terminal
			q.terminal = nil
			q.mu.Unlock()
			if !q.cancelled.Load() {
				if term.Kind == streamx.KindError {
					q.sub.OnError(term.Err)
				} else {
					q.sub.OnComplete()
				}
			}
		} else {
			q.mu.Unlock()
		}
		return
	}
}

// ToBackpressured bridges an unbounded Source into a demand-based
// Publisher: upstream is subscribed eagerly and its output is queued per
// strategy until the downstream Subscriber authorizes delivery.
func ToBackpressured[T any](upstream streamx.Source[T], strategy OverflowStrategy) Publisher[T] {
	return PublisherFunc[T](func(sub Subscriber[T]) {
		q := newDemandQueue[T](sub, strategy)
		sub.OnSubscribe(q)
		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) { q.upstreamSlot.Set(d) },
			q.push,
			q.fail,
			q.finish,
		))
	})
}

// FromPublisher bridges the other direction: it requests RequestMax
// immediately, since a plain Consumer has no notion of demand, and forwards
// every notification through a Guard so the usual handshake invariants
// still hold.
func FromPublisher[T any](pub Publisher[T]) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		pub.Subscribe(subscriberAdapter[T]{g: g})
	})
}

type subscriberAdapter[T any] struct {
	g *guard.Guard[T]
}

func (a subscriberAdapter[T]) OnSubscribe(s Subscription) {
	a.g.SetUpstream(disposable.NewAction(func() { s.Cancel() }))
	s.Request(RequestMax)
}
func (a subscriberAdapter[T]) OnNext(v T)        { a.g.Next(v) }
func (a subscriberAdapter[T]) OnError(err error) { a.g.Error(err) }
func (a subscriberAdapter[T]) OnComplete()       { a.g.Complete() }
