// Package streamx implements a push-based reactive stream engine: sources
// emit a finite or infinite sequence of values ending in normal completion
// or an error, and consumers receive these notifications through the
// subscription handshake defined here.
package streamx

import "github.com/rsocket/streamx/disposable"

// Disposable is a cancellation handle. Dispose is idempotent.
type Disposable = disposable.Disposable

// Consumer is the four-callback sink a Source delivers notifications to.
//
// OnSubscribe is called exactly once, before any other callback. OnNext,
// OnError and OnComplete are never invoked concurrently on the same
// Consumer. After OnError or OnComplete, no further callback occurs.
type Consumer[T any] interface {
	OnSubscribe(d Disposable)
	OnNext(v T)
	OnError(err error)
	OnComplete()
}

// Source is anything that, given a Consumer, begins delivering
// notifications per the subscription handshake.
type Source[T any] interface {
	Subscribe(c Consumer[T])
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc[T any] func(c Consumer[T])

// Subscribe implements Source.
func (f SourceFunc[T]) Subscribe(c Consumer[T]) { f(c) }

// Kind tags the three notification variants a stream can carry.
type Kind int

const (
	KindNext Kind = iota
	KindError
	KindComplete
)

// Notification is a tagged value produced by Materialize: Next(v), Error(e)
// or Complete, never more than one terminal per stream.
type Notification[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

func Next[T any](v T) Notification[T]      { return Notification[T]{Kind: KindNext, Value: v} }
func Error[T any](err error) Notification[T] {
	return Notification[T]{Kind: KindError, Err: err}
}
func Complete[T any]() Notification[T] { return Notification[T]{Kind: KindComplete} }

// consumerFuncs adapts four plain functions into a Consumer. Operators build
// their downstream-facing half this way instead of a hand-rolled struct per
// operator, mirroring the teacher's rx.NewSubscriber option-function style.
type consumerFuncs[T any] struct {
	onSubscribe func(Disposable)
	onNext      func(T)
	onError     func(error)
	onComplete  func()
}

func (c *consumerFuncs[T]) OnSubscribe(d Disposable) {
	if c.onSubscribe != nil {
		c.onSubscribe(d)
	}
}
func (c *consumerFuncs[T]) OnNext(v T) {
	if c.onNext != nil {
		c.onNext(v)
	}
}
func (c *consumerFuncs[T]) OnError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}
func (c *consumerFuncs[T]) OnComplete() {
	if c.onComplete != nil {
		c.onComplete()
	}
}

// NewConsumer builds a Consumer from individual callbacks. Any nil callback
// is a no-op; OnSubscribe defaults to requesting nothing special (plain
// Sources ignore demand; see the flowable package for the backpressured
// variant).
func NewConsumer[T any](onSubscribe func(Disposable), onNext func(T), onError func(error), onComplete func()) Consumer[T] {
	return &consumerFuncs[T]{onSubscribe: onSubscribe, onNext: onNext, onError: onError, onComplete: onComplete}
}

// Subscribe is sugar for building a Consumer from callbacks and subscribing
// it to src in one call.
func Subscribe[T any](src Source[T], onNext func(T), onError func(error), onComplete func()) Disposable {
	var d Disposable
	c := NewConsumer[T](func(dd Disposable) { d = dd }, onNext, onError, onComplete)
	src.Subscribe(c)
	if d == nil {
		d = disposable.Empty()
	}
	return d
}
