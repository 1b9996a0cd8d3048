// Package source provides the leaf Sources every pipeline starts from.
// Grounded on the teacher's rx/flux_just.go and rx/mono_just.go ("just"
// constructors driving a producer synchronously) and RxJava's
// ObservableCreate/ObservableFromArray/ObservableInterval/ObservableDefer
// family that spec.md §4.4 distills.
package source

import (
	"time"

	"go.uber.org/atomic"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/disposable"
	"github.com/rsocket/streamx/internal/guard"
	"github.com/rsocket/streamx/scheduler"
	"github.com/rsocket/streamx/xerrors"
)

// Just emits the given values, in order, then completes. A single value is
// the common case (spec.md's NbpObservableScalarSource fast path): there is
// no extra allocation beyond the slice already required to hold the
// arguments.
func Just[T any](values ...T) streamx.Source[T] {
	return FromSlice(values)
}

// FromSlice emits every element of values then completes.
func FromSlice[T any](values []T) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		for _, v := range values {
			if !g.Next(v) {
				return
			}
		}
		g.Complete()
	})
}

// Range emits the count integers starting at start, then completes.
func Range(start, count int) streamx.Source[int] {
	return streamx.SourceFunc[int](func(c streamx.Consumer[int]) {
		g := guard.New[int](c)
		g.Start()
		for i := 0; i < count; i++ {
			if !g.Next(start + i) {
				return
			}
		}
		g.Complete()
	})
}

// Empty completes immediately without emitting any value.
func Empty[T any]() streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		g.Complete()
	})
}

// Never never emits and never terminates; useful as a timeout/race partner
// in tests and as the identity element of amb-style composition.
func Never[T any]() streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
	})
}

// Err immediately terminates with err.
func Err[T any](err error) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		g.Error(err)
	})
}

// FromChan emits every value received from ch until it is closed, then
// completes. Does not drain ch on dispose; the sender is responsible for
// stopping if the consumer cancels.
func FromChan[T any](ch <-chan T) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		for v := range ch {
			if !g.Next(v) {
				return
			}
		}
		g.Complete()
	})
}

// FromFunc repeatedly calls next to produce values; next returns
// (zero, false, nil) to signal normal completion and a non-nil error to
// signal a terminal failure.
func FromFunc[T any](next func() (T, bool, error)) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		for {
			v, ok, err := next()
			if err != nil {
				g.Error(xerrors.NewUserFunctionError("fromFunc", err))
				return
			}
			if !ok {
				g.Complete()
				return
			}
			if !g.Next(v) {
				return
			}
		}
	})
}

// FromFuture subscribes once resolve returns, emitting its single value (or
// its error) and then completing. resolve runs on sch so a blocking future
// never ties up the subscribing goroutine.
func FromFuture[T any](resolve func() (T, error), sch scheduler.Scheduler) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		d := sch.Schedule(func() {
			v, err := resolve()
			if err != nil {
				g.Error(xerrors.NewUserFunctionError("fromFuture", err))
				return
			}
			if g.Next(v) {
				g.Complete()
			}
		})
		g.SetUpstream(d)
	})
}

// FromAsync bridges a callback-based async API: start is invoked once per
// subscription with a callback that the caller's async machinery should
// call at most once with the eventual (value, error); start's returned
// cancel function (nil-safe) is wired as the upstream disposable.
func FromAsync[T any](start func(deliver func(T, error)) func()) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		cancel := start(func(v T, err error) {
			if err != nil {
				g.Error(err)
				return
			}
			if g.Next(v) {
				g.Complete()
			}
		})
		if cancel != nil {
			g.SetUpstream(disposable.NewAction(cancel))
		}
	})
}

// Defer calls factory anew for every subscription, so each subscriber gets
// an independently constructed Source instead of sharing state.
func Defer[T any](factory func() streamx.Source[T]) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		factory().Subscribe(c)
	})
}

// Using ties a resource's lifetime to one subscription: resourceFactory
// builds the resource, sourceFactory builds the Source it drives, and
// dispose releases it. If eager is true the resource is released as soon as
// the inner Source reaches a terminal, before that terminal is forwarded
// downstream (matching RxJava's default); if false, release happens right
// after the terminal has been delivered downstream, or when the downstream
// disposes, whichever comes first.
func Using[T, R any](resourceFactory func() (R, error), sourceFactory func(R) streamx.Source[T], dispose func(R), eager bool) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		res, err := resourceFactory()
		if err != nil {
			g := guard.New[T](c)
			g.Start()
			g.Error(xerrors.NewUserFunctionError("using", err))
			return
		}

		var released atomic.Bool
		release := func() {
			if released.CompareAndSwap(false, true) {
				dispose(res)
			}
		}

		sourceFactory(res).Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				c.OnSubscribe(disposable.NewAction(func() {
					d.Dispose()
					release()
				}))
			},
			func(v T) { c.OnNext(v) },
			func(terminalErr error) {
				if eager {
					release()
				}
				c.OnError(terminalErr)
				if !eager {
					release()
				}
			},
			func() {
				if eager {
					release()
				}
				c.OnComplete()
				if !eager {
					release()
				}
			},
		))
	})
}

// Interval emits sequential longs (0, 1, 2, ...) spaced period apart,
// starting after the first period elapses, driven by sch.
func Interval(period time.Duration, sch scheduler.Scheduler) streamx.Source[int64] {
	return IntervalAfter(period, period, sch)
}

// IntervalAfter is Interval with an independent initial delay before the
// first emission; every emission after the first is still spaced period
// apart.
func IntervalAfter(initialDelay, period time.Duration, sch scheduler.Scheduler) streamx.Source[int64] {
	return streamx.SourceFunc[int64](func(c streamx.Consumer[int64]) {
		g := guard.New[int64](c)
		g.Start()
		w := sch.CreateWorker()
		var n int64
		d := w.SchedulePeriodic(func() {
			if !g.Next(n) {
				return
			}
			n++
		}, initialDelay, period)
		g.SetUpstream(disposable.NewAction(func() {
			d.Dispose()
			w.Dispose()
		}))
	})
}

// Timer emits the single value 0 after delay elapses, then completes. A
// single-shot contract: it is not legal to observe more than one emission.
func Timer(delay time.Duration, sch scheduler.Scheduler) streamx.Source[int64] {
	return streamx.SourceFunc[int64](func(c streamx.Consumer[int64]) {
		g := guard.New[int64](c)
		g.Start()
		w := sch.CreateWorker()
		d := w.ScheduleDelayed(func() {
			if g.Next(0) {
				g.Complete()
			}
		}, delay)
		g.SetUpstream(disposable.NewAction(func() {
			d.Dispose()
			w.Dispose()
		}))
	})
}
