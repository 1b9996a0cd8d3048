// Package blocking adapts a push-based Source into synchronous calls a
// plain goroutine can call without setting up its own Consumer: First,
// Single, Last, ForEach, and an Iterator that pulls one value at a time.
// Grounded on RxJava's BlockingObservable, which does the same thing over a
// SynchronousQueue: each blocking call subscribes, blocks the calling
// goroutine on a channel, and disposes the subscription once it has what it
// needs (or the Source terminates first).
package blocking

import (
	"errors"
	"sort"
	"sync"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/internal/guard"
	"github.com/rsocket/streamx/xerrors"
)

// ErrEmpty is returned by First/Single/Last when upstream completes without
// ever emitting a value. It is xerrors.ErrMissingElement under this
// package's own name, so callers can match either.
var ErrEmpty = xerrors.ErrMissingElement

// ErrMoreThanOne is returned by Single when upstream emits more than one
// value.
var ErrMoreThanOne = errors.New("streamx/blocking: stream emitted more than one value")

// BlockingSource is the synchronous view of a Source, obtained via
// ToBlocking.
type BlockingSource[T any] struct {
	src streamx.Source[T]
}

// ToBlocking wraps src for synchronous consumption.
func ToBlocking[T any](src streamx.Source[T]) BlockingSource[T] {
	return BlockingSource[T]{src: src}
}

// First blocks until the first value arrives, then disposes the
// subscription and returns it. Returns ErrEmpty if upstream completes
// without emitting.
func (b BlockingSource[T]) First() (T, error) {
	var zero T
	var result T
	var err error
	var got bool

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	var d streamx.Disposable
	b.src.Subscribe(newBlockingConsumer[T](
		func(dd streamx.Disposable) { d = dd },
		func(v T) {
			if got {
				return
			}
			result, got = v, true
			finish()
			// Dispose here, not after Subscribe returns: a synchronous
			// Source keeps calling OnNext in the same stack frame, and
			// without this the second and third values would still
			// overwrite result before Subscribe ever unwinds.
			if d != nil {
				d.Dispose()
			}
		},
		func(e error) {
			err = e
			finish()
		},
		finish,
	))
	<-done
	if d != nil {
		d.Dispose()
	}
	if err != nil {
		return zero, err
	}
	if !got {
		return zero, ErrEmpty
	}
	return result, nil
}

// Single blocks for exactly one value; ErrEmpty if none arrive, or
// ErrMoreThanOne if more than one does (the subscription is disposed as
// soon as the second value proves the stream isn't a singleton).
func (b BlockingSource[T]) Single() (T, error) {
	var zero T
	var result T
	var err error
	count := 0

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	var d streamx.Disposable
	b.src.Subscribe(newBlockingConsumer[T](
		func(dd streamx.Disposable) { d = dd },
		func(v T) {
			count++
			if count == 1 {
				result = v
				return
			}
			err = ErrMoreThanOne
			finish()
			if d != nil {
				d.Dispose()
			}
		},
		func(e error) {
			err = e
			finish()
		},
		finish,
	))
	<-done
	if d != nil {
		d.Dispose()
	}
	if err != nil {
		return zero, err
	}
	if count == 0 {
		return zero, ErrEmpty
	}
	return result, nil
}

// Last blocks until completion and returns the final value observed.
// ErrEmpty if upstream completes without ever emitting.
func (b BlockingSource[T]) Last() (T, error) {
	var zero T
	var result T
	var err error
	got := false

	done := make(chan struct{})
	b.src.Subscribe(newBlockingConsumer[T](
		nil,
		func(v T) { result, got = v, true },
		func(e error) { err = e; close(done) },
		func() { close(done) },
	))
	<-done
	if err != nil {
		return zero, err
	}
	if !got {
		return zero, ErrEmpty
	}
	return result, nil
}

// ForEach blocks until completion, invoking fn for every value in order. If
// fn returns an error, the subscription is disposed immediately and that
// error is returned instead of waiting for upstream to finish on its own.
func (b BlockingSource[T]) ForEach(fn func(T) error) error {
	var outerErr error
	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	var d streamx.Disposable
	b.src.Subscribe(newBlockingConsumer[T](
		func(dd streamx.Disposable) { d = dd },
		func(v T) {
			if outerErr != nil {
				return
			}
			if err := fn(v); err != nil {
				outerErr = err
				finish()
				if d != nil {
					d.Dispose()
				}
			}
		},
		func(e error) {
			if outerErr == nil {
				outerErr = e
			}
			finish()
		},
		finish,
	))
	<-done
	if d != nil {
		d.Dispose()
	}
	return outerErr
}

// pulledValue is what Iterator's background subscription hands across to
// the pulling goroutine: either a value, a terminal error, or completion.
type pulledValue[T any] struct {
	value T
	err   error
	done  bool
}

// Iterator drives upstream on its own goroutine and returns a next function
// the caller pulls from at its own pace: next() returns (zero, false, nil)
// on normal completion, (zero, false, err) on error, or (v, true, nil) for
// each value. Backpressure between the two goroutines is a one-slot
// unbuffered handoff, so upstream only ever runs one value ahead of the
// caller.
func (b BlockingSource[T]) Iterator() (next func() (T, bool, error)) {
	values := make(chan pulledValue[T])
	demand := make(chan struct{})
	var d streamx.Disposable

	go func() {
		<-demand
		b.src.Subscribe(newBlockingConsumer[T](
			func(dd streamx.Disposable) { d = dd },
			func(v T) {
				values <- pulledValue[T]{value: v}
				<-demand
			},
			func(e error) { values <- pulledValue[T]{err: e, done: true} },
			func() { values <- pulledValue[T]{done: true} },
		))
	}()

	return func() (T, bool, error) {
		var zero T
		demand <- struct{}{}
		pv := <-values
		if pv.done {
			if d != nil {
				d.Dispose()
			}
			return zero, false, pv.err
		}
		return pv.value, true, nil
	}
}

// blockingConsumer is a plain Consumer built from callbacks, used instead
// of streamx.NewConsumer so a nil onSubscribe callback (Last/Iterator don't
// need the disposable) is unambiguous.
type blockingConsumer[T any] struct {
	onSubscribe func(streamx.Disposable)
	onNext      func(T)
	onError     func(error)
	onComplete  func()
}

func newBlockingConsumer[T any](onSubscribe func(streamx.Disposable), onNext func(T), onError func(error), onComplete func()) streamx.Consumer[T] {
	return &blockingConsumer[T]{onSubscribe: onSubscribe, onNext: onNext, onError: onError, onComplete: onComplete}
}

func (c *blockingConsumer[T]) OnSubscribe(d streamx.Disposable) {
	if c.onSubscribe != nil {
		c.onSubscribe(d)
	}
}
func (c *blockingConsumer[T]) OnNext(v T)        { c.onNext(v) }
func (c *blockingConsumer[T]) OnError(err error) { c.onError(err) }
func (c *blockingConsumer[T]) OnComplete()       { c.onComplete() }

// ToList collects every value into a single slice, delivered as one item
// followed by completion: values accumulate until upstream completes, like
// RxJava's toList().
func ToList[T any](upstream streamx.Source[T]) streamx.Source[[]T] {
	return streamx.SourceFunc[[]T](func(c streamx.Consumer[[]T]) {
		g := guard.New[[]T](c)
		g.Start()
		var acc []T
		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) { acc = append(acc, v) },
			func(err error) { g.Error(err) },
			func() {
				g.Next(acc)
				g.Complete()
			},
		))
	})
}

// ToSortedList collects every value, sorts them with less, and delivers the
// sorted slice as a single item.
func ToSortedList[T any](upstream streamx.Source[T], less func(a, b T) bool) streamx.Source[[]T] {
	return streamx.SourceFunc[[]T](func(c streamx.Consumer[[]T]) {
		g := guard.New[[]T](c)
		g.Start()
		var acc []T
		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) { acc = append(acc, v) },
			func(err error) { g.Error(err) },
			func() {
				sort.Slice(acc, func(i, j int) bool { return less(acc[i], acc[j]) })
				g.Next(acc)
				g.Complete()
			},
		))
	})
}

// ToMap collects every value into a map keyed by keyFn, delivered as a
// single item. A later value with a key already present overwrites the
// earlier one, matching RxJava's toMap().
func ToMap[T any, K comparable](upstream streamx.Source[T], keyFn func(T) K) streamx.Source[map[K]T] {
	return streamx.SourceFunc[map[K]T](func(c streamx.Consumer[map[K]T]) {
		g := guard.New[map[K]T](c)
		g.Start()
		acc := make(map[K]T)
		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) { acc[keyFn(v)] = v },
			func(err error) { g.Error(err) },
			func() {
				g.Next(acc)
				g.Complete()
			},
		))
	})
}

// ToMultimap collects every value into a map of slices keyed by keyFn,
// preserving arrival order within each key's slice.
func ToMultimap[T any, K comparable](upstream streamx.Source[T], keyFn func(T) K) streamx.Source[map[K][]T] {
	return streamx.SourceFunc[map[K][]T](func(c streamx.Consumer[map[K][]T]) {
		g := guard.New[map[K][]T](c)
		g.Start()
		acc := make(map[K][]T)
		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) {
				k := keyFn(v)
				acc[k] = append(acc[k], v)
			},
			func(err error) { g.Error(err) },
			func() {
				g.Next(acc)
				g.Complete()
			},
		))
	})
}
