// Package operators implements the stateless, concurrent and lifecycle
// operator families spec.md §4.4/§4.5/§4.8 describe, each as a plain
// function from one Source to another ("lift"). Grounded on RxJava's
// ObservableMap/ObservableFilter/ObservableScan/ObservableTake family
// (original_source, exception-to-onError conversion and upstream dispose on
// failure) and on the Go rendition of the same shape in
// _examples/other_examples/xinjiayu-RxGo__flowable_operators.go and
// __observable.go (a downstream-wrapping subscriber forwarding
// OnSubscribe/OnNext/OnError/OnComplete, generalized here onto
// internal/guard instead of a hand-rolled per-operator struct).
package operators

import (
	"reflect"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/internal/guard"
	"github.com/rsocket/streamx/xerrors"
)

// lift is the shared scaffolding every unary operator in this file builds
// on: deliver OnSubscribe to downstream first, then subscribe upstream,
// wiring its disposable as the guard's upstream.
func lift[T, R any](upstream streamx.Source[T], build func(g *guard.Guard[R]) streamx.Consumer[T]) streamx.Source[R] {
	return streamx.SourceFunc[R](func(c streamx.Consumer[R]) {
		g := guard.New[R](c)
		g.Start()
		upstream.Subscribe(build(g))
	})
}

// Map transforms every value with fn; an error returned by fn terminates the
// stream with that error as-is, and a panic in fn terminates it with a
// UserFunctionError, instead of propagating a bad value.
func Map[T, R any](upstream streamx.Source[T], fn func(T) (R, error)) streamx.Source[R] {
	return lift[T, R](upstream, func(g *guard.Guard[R]) streamx.Consumer[T] {
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) {
				r, err := xerrors.Call("map", func() (R, error) { return fn(v) })
				if err != nil {
					g.Error(err)
					return
				}
				g.Next(r)
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// Filter emits only the values for which predicate returns true.
func Filter[T any](upstream streamx.Source[T], predicate func(T) (bool, error)) streamx.Source[T] {
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) {
				ok, err := xerrors.Call("filter", func() (bool, error) { return predicate(v) })
				if err != nil {
					g.Error(err)
					return
				}
				if ok {
					g.Next(v)
				}
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// Scan emits every intermediate accumulation, starting from seed, applying
// accumulator to (running, next) for every value.
func Scan[T, R any](upstream streamx.Source[T], seed R, accumulator func(R, T) (R, error)) streamx.Source[R] {
	return lift[T, R](upstream, func(g *guard.Guard[R]) streamx.Consumer[T] {
		running := seed
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) {
				next, err := xerrors.Call("scan", func() (R, error) { return accumulator(running, v) })
				if err != nil {
					g.Error(err)
					return
				}
				running = next
				g.Next(running)
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// Take emits at most n values then completes and cancels the upstream.
func Take[T any](upstream streamx.Source[T], n int) streamx.Source[T] {
	if n <= 0 {
		return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
			g := guard.New[T](c)
			g.Start()
			g.Complete()
		})
	}
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		remaining := n
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) {
				if remaining <= 0 {
					return
				}
				remaining--
				if !g.Next(v) {
					return
				}
				if remaining == 0 {
					g.Complete()
				}
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// Skip drops the first n values, then emits everything after.
func Skip[T any](upstream streamx.Source[T], n int) streamx.Source[T] {
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		remaining := n
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) {
				if remaining > 0 {
					remaining--
					return
				}
				g.Next(v)
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// TakeWhile emits values while predicate holds, completing (without error)
// the first time it returns false.
func TakeWhile[T any](upstream streamx.Source[T], predicate func(T) bool) streamx.Source[T] {
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) {
				if !predicate(v) {
					g.Complete()
					return
				}
				g.Next(v)
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// SkipWhile drops values while predicate holds, then emits everything from
// (and including) the first value for which it returns false.
func SkipWhile[T any](upstream streamx.Source[T], predicate func(T) bool) streamx.Source[T] {
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		skipping := true
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) {
				if skipping {
					if predicate(v) {
						return
					}
					skipping = false
				}
				g.Next(v)
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// distinctConfig holds the equality DistinctUntilChanged compares
// consecutive values with.
type distinctConfig[T any] struct {
	equal func(a, b T) bool
}

// DistinctUntilChangedOption configures DistinctUntilChanged's comparison.
type DistinctUntilChangedOption[T any] func(*distinctConfig[T])

// WithComparer overrides DistinctUntilChanged's default reflect.DeepEqual
// comparison with a custom equality predicate.
func WithComparer[T any](equal func(a, b T) bool) DistinctUntilChangedOption[T] {
	return func(c *distinctConfig[T]) { c.equal = equal }
}

// DistinctUntilChanged drops a value that compares equal to the
// immediately preceding one, using reflect.DeepEqual by default (values
// need not be comparable with ==, matching RxJava's Object.equals-based
// default) or a custom comparer supplied via WithComparer.
func DistinctUntilChanged[T any](upstream streamx.Source[T], opts ...DistinctUntilChangedOption[T]) streamx.Source[T] {
	cfg := distinctConfig[T]{equal: func(a, b T) bool { return reflect.DeepEqual(a, b) }}
	for _, opt := range opts {
		opt(&cfg)
	}
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		var last T
		hasLast := false
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) {
				if hasLast && cfg.equal(last, v) {
					return
				}
				last = v
				hasLast = true
				g.Next(v)
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// DistinctUntilChangedBy drops a value whose key (computed by keySelector)
// compares equal to the immediately preceding value's key — RxJava's
// distinctUntilChanged(keySelector) overload, for comparing by a derived
// field instead of the whole value.
func DistinctUntilChangedBy[T any, K comparable](upstream streamx.Source[T], keySelector func(T) K) streamx.Source[T] {
	return DistinctUntilChanged(upstream, WithComparer(func(a, b T) bool { return keySelector(a) == keySelector(b) }))
}

// Cast converts every upstream value with fn, exactly like Map, but named
// separately because spec.md treats cast()/ofType() as a distinct
// combinator (a Map that may instead choose to drop non-matching values —
// pair with Filter for ofType()).
func Cast[T, R any](upstream streamx.Source[T], fn func(T) (R, error)) streamx.Source[R] {
	return Map(upstream, fn)
}

// StartWith emits values before anything from upstream.
func StartWith[T any](upstream streamx.Source[T], values ...T) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		for _, v := range values {
			if !g.Next(v) {
				return
			}
		}
		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) { g.Next(v) },
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		))
	})
}

// EndWith emits values after upstream completes normally; if upstream
// errors, values are never emitted.
func EndWith[T any](upstream streamx.Source[T], values ...T) streamx.Source[T] {
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) { g.Next(v) },
			func(err error) { g.Error(err) },
			func() {
				for _, v := range values {
					if !g.Next(v) {
						return
					}
				}
				g.Complete()
			},
		)
	})
}

// OnErrorReturn replaces a terminal error with one final value followed by
// normal completion.
func OnErrorReturn[T any](upstream streamx.Source[T], fallback func(error) T) streamx.Source[T] {
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) { g.Next(v) },
			func(err error) {
				if g.Next(fallback(err)) {
					g.Complete()
				}
			},
			func() { g.Complete() },
		)
	})
}

// OnErrorResumeNext switches to a fallback Source, chosen from the
// terminal error, instead of propagating it.
func OnErrorResumeNext[T any](upstream streamx.Source[T], fallback func(error) streamx.Source[T]) streamx.Source[T] {
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) { g.Next(v) },
			func(err error) {
				fallback(err).Subscribe(streamx.NewConsumer[T](
					func(d streamx.Disposable) { g.SetUpstream(d) },
					func(v T) { g.Next(v) },
					func(err2 error) { g.Error(err2) },
					func() { g.Complete() },
				))
			},
			func() { g.Complete() },
		)
	})
}

// Materialize converts a stream's notifications into values so errors and
// completion can be observed and manipulated like any other item; the
// resulting stream ends in a single Error or Complete notification
// (mirroring how upstream ended) followed by the outer OnComplete, never an
// outer OnError.
func Materialize[T any](upstream streamx.Source[T]) streamx.Source[streamx.Notification[T]] {
	return lift[T, streamx.Notification[T]](upstream, func(g *guard.Guard[streamx.Notification[T]]) streamx.Consumer[T] {
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) { g.Next(streamx.Next(v)) },
			func(err error) {
				if g.Next(streamx.Error[T](err)) {
					g.Complete()
				}
			},
			func() {
				if g.Next(streamx.Complete[T]()) {
					g.Complete()
				}
			},
		)
	})
}

// Dematerialize is Materialize's inverse: it unpacks each Notification back
// into the real OnNext/OnError/OnComplete it represents. Applying it to a
// stream not produced by Materialize is a protocol violation if a value
// arrives after a notification already claimed a terminal kind; such a
// value is dropped rather than emitted, and only a second Error
// notification reaches the undeliverable-error hook.
func Dematerialize[T any](upstream streamx.Source[streamx.Notification[T]]) streamx.Source[T] {
	return lift[streamx.Notification[T], T](upstream, func(g *guard.Guard[T]) streamx.Consumer[streamx.Notification[T]] {
		return streamx.NewConsumer[streamx.Notification[T]](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(n streamx.Notification[T]) {
				switch n.Kind {
				case streamx.KindNext:
					g.Next(n.Value)
				case streamx.KindError:
					g.Error(n.Err)
				case streamx.KindComplete:
					g.Complete()
				}
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// DoOnNext runs fn for every value before it is forwarded downstream.
func DoOnNext[T any](upstream streamx.Source[T], fn func(T)) streamx.Source[T] {
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) { fn(v); g.Next(v) },
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// DoOnError runs fn with the terminal error before it is forwarded.
func DoOnError[T any](upstream streamx.Source[T], fn func(error)) streamx.Source[T] {
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) { g.Next(v) },
			func(err error) { fn(err); g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// DoOnComplete runs fn just before normal completion is forwarded.
func DoOnComplete[T any](upstream streamx.Source[T], fn func()) streamx.Source[T] {
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) { g.Next(v) },
			func(err error) { g.Error(err) },
			func() { fn(); g.Complete() },
		)
	})
}

// DoOnSubscribe runs fn with the upstream Disposable as soon as the
// subscription is established, before any downstream callback.
func DoOnSubscribe[T any](upstream streamx.Source[T], fn func(streamx.Disposable)) streamx.Source[T] {
	return lift[T, T](upstream, func(g *guard.Guard[T]) streamx.Consumer[T] {
		return streamx.NewConsumer[T](
			func(d streamx.Disposable) { fn(d); g.SetUpstream(d) },
			func(v T) { g.Next(v) },
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
	})
}

// DoOnDispose runs fn once, the first time the subscription is disposed
// from outside (cancelled), but not as part of a normal terminal.
func DoOnDispose[T any](upstream streamx.Source[T], fn func()) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		var ran bool
		c2 := streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				c.OnSubscribe(guardedDispose(g, func() {
					if !ran {
						ran = true
						fn()
					}
				}))
				g.SetUpstream(d)
			},
			func(v T) { g.Next(v) },
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		)
		upstream.Subscribe(c2)
	})
}

// DoFinally runs fn exactly once, on whichever of normal completion, error
// termination or external dispose happens first.
func DoFinally[T any](upstream streamx.Source[T], fn func()) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		var ran bool
		runOnce := func() {
			if !ran {
				ran = true
				fn()
			}
		}
		g := guard.New[T](c)
		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				c.OnSubscribe(guardedDispose(g, runOnce))
				g.SetUpstream(d)
			},
			func(v T) { g.Next(v) },
			func(err error) { runOnce(); g.Error(err) },
			func() { runOnce(); g.Complete() },
		))
	})
}

// guardedDispose returns a Disposable that disposes g and then runs fn,
// used by DoOnDispose/DoFinally so the downstream-facing handle both
// cancels the subscription and fires the hook exactly once.
func guardedDispose[T any](g *guard.Guard[T], fn func()) streamx.Disposable {
	return disposableFunc{dispose: func() { g.Dispose(); fn() }, isDisposed: g.IsDisposed}
}

type disposableFunc struct {
	dispose    func()
	isDisposed func() bool
}

func (d disposableFunc) Dispose()       { d.dispose() }
func (d disposableFunc) IsDisposed() bool { return d.isDisposed() }
