// This file implements the concurrent operator family: merge/flatMap,
// concatMap, switchMap, zip, combineLatest, groupBy, window, buffer,
// sample/throttle/debounce and timeout (spec.md §4.5). Grounded on the
// teacher's rx/queue.go bQueue (CAS ticket counter driving a bounded
// channel) for the "bounded per-key buffer, drop or error on overflow"
// shape reused here by groupBy, and on RxJava's ObservableFlatMap/
// ObservableZip/ObservableCombineLatest/ObservableGroupBy/ObservableWindow/
// ObservableSample/ObservableDebounce/ObservableTimeout family
// (original_source) for the merge/ordering/termination semantics
// themselves.
package operators

import (
	"fmt"
	"sync"
	"time"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/disposable"
	"github.com/rsocket/streamx/internal/guard"
	"github.com/rsocket/streamx/scheduler"
	"github.com/rsocket/streamx/source"
	"github.com/rsocket/streamx/xerrors"
)

// serialGate runs submitted actions one at a time, in the order submitted,
// even when submitted concurrently from different goroutines: the caller
// whose submission finds the gate idle drains the queue itself instead of
// waiting on a dedicated worker, the same "wip counter, enter-if-zero,
// otherwise increment" discipline flowable's demandQueue.drain uses to
// coalesce concurrent producers into one draining owner. FlatMap/Zip2/
// ZipAll/CombineLatestAll each fan multiple concurrently-running inner or
// sibling sources into one downstream Consumer, and guard.Guard does not
// serialize OnNext/OnError/OnComplete itself — every g.Next/g.Error/
// g.Complete call these operators make on behalf of an inner/sibling
// source's own callback goroutine is routed through a serialGate so two of
// them never run at once, per the consumer contract's "never concurrent"
// rule.
type serialGate struct {
	mu    sync.Mutex
	queue []func()
	wip   int
}

func (s *serialGate) run(action func()) {
	s.mu.Lock()
	s.queue = append(s.queue, action)
	s.wip++
	first := s.wip == 1
	s.mu.Unlock()
	if !first {
		return
	}
	for {
		s.mu.Lock()
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		next()

		s.mu.Lock()
		s.wip--
		done := s.wip == 0
		s.mu.Unlock()
		if done {
			return
		}
	}
}

// flatMapConfig bounds FlatMap's queue of outer items awaiting a free
// concurrency slot; ConcatMap's prefetch buffer is the same knob under a
// different name (concurrency 1).
type flatMapConfig struct {
	bufferSize      int
	errorOnOverflow bool
}

// FlatMapOption configures FlatMap's pending-item buffer.
type FlatMapOption func(*flatMapConfig)

// WithFlatMapBufferSize overrides the default 128-item pending buffer that
// holds outer items while every concurrency slot is busy.
func WithFlatMapBufferSize(n int) FlatMapOption {
	return func(c *flatMapConfig) { c.bufferSize = n }
}

// WithFlatMapOverflowError makes a full pending buffer terminate the whole
// stream with an error instead of silently dropping the newest outer item.
func WithFlatMapOverflowError() FlatMapOption {
	return func(c *flatMapConfig) { c.errorOnOverflow = true }
}

// FlatMap subscribes to the Source produced for every upstream value,
// merging their outputs. maxConcurrency <= 0 means unbounded; otherwise at
// most maxConcurrency inner sources run at once and the rest queue, up to
// bufferSize (default 128, see FlatMapOption), in arrival order — which is
// what makes ConcatMap just FlatMap with maxConcurrency 1. delayErrors
// defers every failure (inner or outer) until everything still running has
// finished, then reports them combined.
func FlatMap[T, R any](upstream streamx.Source[T], mapper func(T) streamx.Source[R], maxConcurrency int, delayErrors bool, opts ...FlatMapOption) streamx.Source[R] {
	cfg := flatMapConfig{bufferSize: 128}
	for _, opt := range opts {
		opt(&cfg)
	}

	return streamx.SourceFunc[R](func(c streamx.Consumer[R]) {
		g := guard.New[R](c)
		g.Start()
		gate := &serialGate{}

		var mu sync.Mutex
		active := 0
		sourceDone := false
		var errs []error
		var pending []T
		children := disposable.NewContainer()

		var subscribeInner func(T)

		finishIfDone := func() {
			mu.Lock()
			done := sourceDone && active == 0 && len(pending) == 0
			var combined error
			if done && len(errs) > 0 {
				combined = xerrors.NewComposite(errs...)
			}
			mu.Unlock()
			if !done {
				return
			}
			if combined != nil {
				gate.run(func() { g.Error(combined) })
			} else {
				gate.run(func() { g.Complete() })
			}
		}

		startNext := func() {
			mu.Lock()
			active--
			var next T
			ok := false
			if (maxConcurrency <= 0 || active < maxConcurrency) && len(pending) > 0 {
				next = pending[0]
				pending = pending[1:]
				active++
				ok = true
			}
			mu.Unlock()
			if ok {
				subscribeInner(next)
			} else {
				finishIfDone()
			}
		}

		subscribeInner = func(v T) {
			src, err := xerrors.Call("flatMap", func() (streamx.Source[R], error) { return mapper(v), nil })
			if err != nil {
				if delayErrors {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					startNext()
				} else {
					gate.run(func() { g.Error(err) })
				}
				return
			}
			var innerDisposable streamx.Disposable
			src.Subscribe(streamx.NewConsumer[R](
				func(d streamx.Disposable) { innerDisposable = d; children.Add(d) },
				func(rv R) { gate.run(func() { g.Next(rv) }) },
				func(innerErr error) {
					children.Remove(innerDisposable)
					if delayErrors {
						mu.Lock()
						errs = append(errs, innerErr)
						mu.Unlock()
						startNext()
					} else {
						gate.run(func() { g.Error(innerErr) })
					}
				},
				func() {
					children.Remove(innerDisposable)
					startNext()
				},
			))
		}

		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				g.SetUpstream(disposable.NewAction(func() { d.Dispose(); children.Dispose() }))
			},
			func(v T) {
				mu.Lock()
				if maxConcurrency > 0 && active >= maxConcurrency {
					if len(pending) >= cfg.bufferSize {
						mu.Unlock()
						if cfg.errorOnOverflow {
							gate.run(func() {
								g.Error(fmt.Errorf("streamx: flatMap: pending buffer overflow (bufferSize=%d)", cfg.bufferSize))
							})
						}
						return
					}
					pending = append(pending, v)
					mu.Unlock()
					return
				}
				active++
				mu.Unlock()
				subscribeInner(v)
			},
			func(err error) {
				if delayErrors {
					mu.Lock()
					errs = append(errs, err)
					sourceDone = true
					mu.Unlock()
					finishIfDone()
				} else {
					gate.run(func() { g.Error(err) })
				}
			},
			func() {
				mu.Lock()
				sourceDone = true
				mu.Unlock()
				finishIfDone()
			},
		))
	})
}

func identitySource[T any](s streamx.Source[T]) streamx.Source[T] { return s }

// Merge interleaves every source's emissions as they arrive, completing
// once all have completed; the first error cancels every other source
// unless delayErrors is set.
func Merge[T any](delayErrors bool, sources ...streamx.Source[T]) streamx.Source[T] {
	return FlatMap[streamx.Source[T], T](source.FromSlice(sources), identitySource[T], 0, delayErrors)
}

// ConcatMap runs the inner sources strictly one at a time, in the order
// their upstream values arrived. prefetch (the same knob as FlatMap's
// bufferSize, default 128) bounds how many outer items may queue ahead of
// the inner source currently running; delayErrors defers an inner error
// until the outer and every already-queued inner has finished instead of
// cancelling immediately.
func ConcatMap[T, R any](upstream streamx.Source[T], mapper func(T) streamx.Source[R], delayErrors bool, opts ...FlatMapOption) streamx.Source[R] {
	return FlatMap(upstream, mapper, 1, delayErrors, opts...)
}

// Concat plays each source to completion before starting the next.
func Concat[T any](sources ...streamx.Source[T]) streamx.Source[T] {
	return ConcatMap[streamx.Source[T], T](source.FromSlice(sources), identitySource[T], false)
}

// SwitchMap subscribes to the Source produced for the latest upstream
// value only; a new upstream value cancels whatever inner source is still
// running and replaces it.
func SwitchMap[T, R any](upstream streamx.Source[T], mapper func(T) streamx.Source[R]) streamx.Source[R] {
	return streamx.SourceFunc[R](func(c streamx.Consumer[R]) {
		g := guard.New[R](c)
		g.Start()
		inner := disposable.NewSerial()

		var mu sync.Mutex
		sourceDone := false
		activeInner := false

		finishIfDone := func() {
			mu.Lock()
			done := sourceDone && !activeInner
			mu.Unlock()
			if done {
				g.Complete()
			}
		}

		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				g.SetUpstream(disposable.NewAction(func() { d.Dispose(); inner.Dispose() }))
			},
			func(v T) {
				src, err := xerrors.Call("switchMap", func() (streamx.Source[R], error) { return mapper(v), nil })
				if err != nil {
					g.Error(err)
					return
				}
				mu.Lock()
				activeInner = true
				mu.Unlock()
				src.Subscribe(streamx.NewConsumer[R](
					func(d streamx.Disposable) { inner.Set(d) },
					func(rv R) { g.Next(rv) },
					func(err error) { g.Error(err) },
					func() {
						mu.Lock()
						activeInner = false
						mu.Unlock()
						finishIfDone()
					},
				))
			},
			func(err error) { g.Error(err) },
			func() {
				mu.Lock()
				sourceDone = true
				mu.Unlock()
				finishIfDone()
			},
		))
	})
}

// SwitchMapFlattenLatest is the Source-valued counterpart RxJava calls
// switchOnNext: flattens a stream of Sources, always following only the
// most recently emitted one.
func SwitchMapFlattenLatest[T any](upstream streamx.Source[streamx.Source[T]]) streamx.Source[T] {
	return SwitchMap(upstream, identitySource[T])
}

// zipConfig bounds a zip operator's per-source queue.
type zipConfig struct {
	bufferSize int
}

// ZipOption configures a zip operator's per-source buffering.
type ZipOption func(*zipConfig)

// WithZipBufferSize overrides the default 128-item per-source queue. Zip
// pairs by index, so an overflowing queue errors the whole stream rather
// than dropping a value the way GroupBy does — dropping here would shift
// every pairing after it out of alignment.
func WithZipBufferSize(n int) ZipOption {
	return func(c *zipConfig) { c.bufferSize = n }
}

// Zip2 pairs the nth value of srcA with the nth value of srcB, in lockstep:
// it completes as soon as either source is exhausted and its queue drains.
// delayErrors defers a source error until the other source has drained its
// remaining queue instead of cancelling immediately.
func Zip2[A, B, R any](srcA streamx.Source[A], srcB streamx.Source[B], combiner func(A, B) (R, error), delayErrors bool, opts ...ZipOption) streamx.Source[R] {
	cfg := zipConfig{bufferSize: 128}
	for _, opt := range opts {
		opt(&cfg)
	}

	return streamx.SourceFunc[R](func(c streamx.Consumer[R]) {
		g := guard.New[R](c)
		g.Start()
		gate := &serialGate{}

		var mu sync.Mutex
		var qa []A
		var qb []B
		doneA, doneB := false, false
		var errs []error
		children := disposable.NewContainer()
		g.SetUpstream(children)

		// tryEmit is only ever run inside gate.run, so at most one
		// execution of its body is ever in flight: two sources' OnNext
		// callbacks can and do land on different goroutines, but both
		// route through the gate instead of calling tryEmit directly.
		var tryEmit func()
		tryEmit = func() {
			for {
				mu.Lock()
				if len(qa) == 0 || len(qb) == 0 {
					complete := (doneA && len(qa) == 0) || (doneB && len(qb) == 0)
					var combined error
					if complete && len(errs) > 0 {
						combined = xerrors.NewComposite(errs...)
					}
					mu.Unlock()
					if complete {
						if combined != nil {
							g.Error(combined)
						} else {
							g.Complete()
						}
					}
					return
				}
				a := qa[0]
				qa = qa[1:]
				b := qb[0]
				qb = qb[1:]
				mu.Unlock()

				r, err := xerrors.Call("zip", func() (R, error) { return combiner(a, b) })
				if err != nil {
					g.Error(err)
					return
				}
				if !g.Next(r) {
					return
				}
			}
		}

		fail := func(err error) {
			if !delayErrors {
				gate.run(func() { g.Error(err) })
				return
			}
			mu.Lock()
			errs = append(errs, err)
			doneA, doneB = true, true
			mu.Unlock()
			gate.run(tryEmit)
		}

		srcA.Subscribe(streamx.NewConsumer[A](
			func(d streamx.Disposable) { children.Add(d) },
			func(v A) {
				mu.Lock()
				if len(qa) >= cfg.bufferSize {
					mu.Unlock()
					fail(fmt.Errorf("streamx: zip: queue overflow on source A (bufferSize=%d)", cfg.bufferSize))
					return
				}
				qa = append(qa, v)
				mu.Unlock()
				gate.run(tryEmit)
			},
			func(err error) { fail(err) },
			func() {
				mu.Lock()
				doneA = true
				mu.Unlock()
				gate.run(tryEmit)
			},
		))
		srcB.Subscribe(streamx.NewConsumer[B](
			func(d streamx.Disposable) { children.Add(d) },
			func(v B) {
				mu.Lock()
				if len(qb) >= cfg.bufferSize {
					mu.Unlock()
					fail(fmt.Errorf("streamx: zip: queue overflow on source B (bufferSize=%d)", cfg.bufferSize))
					return
				}
				qb = append(qb, v)
				mu.Unlock()
				gate.run(tryEmit)
			},
			func(err error) { fail(err) },
			func() {
				mu.Lock()
				doneB = true
				mu.Unlock()
				gate.run(tryEmit)
			},
		))
	})
}

// ZipAll is the homogeneous N-ary zip: combiner receives one value from
// each of sources, in the same index order, only once every source has one
// buffered. delayErrors defers a source error until the other sources have
// drained their remaining queues instead of cancelling immediately.
func ZipAll[T, R any](sources []streamx.Source[T], combiner func([]T) (R, error), delayErrors bool, opts ...ZipOption) streamx.Source[R] {
	cfg := zipConfig{bufferSize: 128}
	for _, opt := range opts {
		opt(&cfg)
	}

	return streamx.SourceFunc[R](func(c streamx.Consumer[R]) {
		g := guard.New[R](c)
		g.Start()
		gate := &serialGate{}

		n := len(sources)
		queues := make([][]T, n)
		done := make([]bool, n)
		var errs []error
		var mu sync.Mutex
		children := disposable.NewContainer()
		g.SetUpstream(children)

		// tryEmit is only ever run inside gate.run — see Zip2's identical
		// comment above.
		var tryEmit func()
		tryEmit = func() {
			for {
				mu.Lock()
				ready := true
				for _, q := range queues {
					if len(q) == 0 {
						ready = false
						break
					}
				}
				if !ready {
					exhausted := false
					for i, q := range queues {
						if done[i] && len(q) == 0 {
							exhausted = true
						}
					}
					var combined error
					if exhausted && len(errs) > 0 {
						combined = xerrors.NewComposite(errs...)
					}
					mu.Unlock()
					if exhausted {
						if combined != nil {
							g.Error(combined)
						} else {
							g.Complete()
						}
					}
					return
				}
				row := make([]T, n)
				for i := range queues {
					row[i] = queues[i][0]
					queues[i] = queues[i][1:]
				}
				mu.Unlock()

				r, err := xerrors.Call("zip", func() (R, error) { return combiner(row) })
				if err != nil {
					g.Error(err)
					return
				}
				if !g.Next(r) {
					return
				}
			}
		}

		fail := func(i int, err error) {
			if !delayErrors {
				gate.run(func() { g.Error(err) })
				return
			}
			mu.Lock()
			errs = append(errs, err)
			for j := range done {
				done[j] = true
			}
			mu.Unlock()
			gate.run(tryEmit)
		}

		for i := range sources {
			i := i
			sources[i].Subscribe(streamx.NewConsumer[T](
				func(d streamx.Disposable) { children.Add(d) },
				func(v T) {
					mu.Lock()
					if len(queues[i]) >= cfg.bufferSize {
						mu.Unlock()
						fail(i, fmt.Errorf("streamx: zip: queue overflow on source %d (bufferSize=%d)", i, cfg.bufferSize))
						return
					}
					queues[i] = append(queues[i], v)
					mu.Unlock()
					gate.run(tryEmit)
				},
				func(err error) { fail(i, err) },
				func() {
					mu.Lock()
					done[i] = true
					mu.Unlock()
					gate.run(tryEmit)
				},
			))
		}
	})
}

// CombineLatestAll re-combines every source's most recent value each time
// any one of them emits, once every source has produced at least one
// value. A source that completes without ever emitting makes the whole
// stream complete immediately, since no combination could ever occur.
// delayErrors defers a source error until every other source has finished
// instead of cancelling immediately; only a "latest" cell is kept per
// source (spec's combineLatest has no queue to bound), so unlike zip there
// is nothing here for a bufferSize knob to bound.
func CombineLatestAll[T, R any](sources []streamx.Source[T], combiner func([]T) (R, error), delayErrors bool) streamx.Source[R] {
	return streamx.SourceFunc[R](func(c streamx.Consumer[R]) {
		g := guard.New[R](c)
		g.Start()
		gate := &serialGate{}

		n := len(sources)
		latest := make([]T, n)
		hasValue := make([]bool, n)
		doneFlags := make([]bool, n)
		var errs []error
		var mu sync.Mutex
		children := disposable.NewContainer()
		g.SetUpstream(children)

		allHaveValue := func() bool {
			for _, ok := range hasValue {
				if !ok {
					return false
				}
			}
			return true
		}
		allDone := func() bool {
			for _, d := range doneFlags {
				if !d {
					return false
				}
			}
			return true
		}

		emit := func() {
			mu.Lock()
			if !allHaveValue() {
				mu.Unlock()
				return
			}
			snapshot := append([]T(nil), latest...)
			mu.Unlock()
			r, err := xerrors.Call("combineLatest", func() (R, error) { return combiner(snapshot) })
			if err != nil {
				g.Error(err)
				return
			}
			g.Next(r)
		}

		finish := func(i int) {
			mu.Lock()
			doneFlags[i] = true
			completeNow := allDone() || !hasValue[i]
			var combined error
			if completeNow && len(errs) > 0 {
				combined = xerrors.NewComposite(errs...)
			}
			mu.Unlock()
			if !completeNow {
				return
			}
			if combined != nil {
				g.Error(combined)
			} else {
				g.Complete()
			}
		}

		for i := range sources {
			i := i
			sources[i].Subscribe(streamx.NewConsumer[T](
				func(d streamx.Disposable) { children.Add(d) },
				func(v T) {
					mu.Lock()
					latest[i] = v
					hasValue[i] = true
					mu.Unlock()
					gate.run(emit)
				},
				func(err error) {
					if !delayErrors {
						gate.run(func() { g.Error(err) })
						return
					}
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					gate.run(func() { finish(i) })
				},
				func() { gate.run(func() { finish(i) }) },
			))
		}
	})
}

// GroupedSource pairs a key with the Source of every upstream value that
// hashed to it.
type GroupedSource[K comparable, T any] struct {
	Key    K
	Source streamx.Source[T]
}

// newGroupSource builds the per-key Source handed out by GroupBy. It behaves
// like source.FromChan(ch), except its upstream disposable also unregisters
// key from channels: cancelling a group marks it abandoned, so a later
// upstream item for the same key starts a fresh group instead of feeding a
// group nobody is draining anymore. Once ch is drained and closed, the group
// errors with *failure if GroupBy recorded one, and completes otherwise.
// Mirrors hub.subscribe's disposable.NewAction unregister pattern in the
// multicast package.
func newGroupSource[T any, K comparable](key K, ch chan T, mu *sync.Mutex, channels map[K]chan T, failure *error) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		g.SetUpstream(disposable.NewAction(func() {
			mu.Lock()
			if channels[key] == ch {
				delete(channels, key)
			}
			mu.Unlock()
		}))
		for v := range ch {
			if !g.Next(v) {
				return
			}
		}
		mu.Lock()
		err := *failure
		mu.Unlock()
		if err != nil {
			g.Error(err)
			return
		}
		g.Complete()
	})
}

type groupByConfig struct {
	bufferSize      int
	errorOnOverflow bool
}

// GroupByOption configures GroupBy's per-key buffering.
type GroupByOption func(*groupByConfig)

// WithGroupBufferSize overrides the default 128-item per-group buffer.
func WithGroupBufferSize(n int) GroupByOption {
	return func(c *groupByConfig) { c.bufferSize = n }
}

// WithGroupOverflowError makes a full group buffer terminate the whole
// stream with an error instead of silently dropping the newest item.
func WithGroupOverflowError() GroupByOption {
	return func(c *groupByConfig) { c.errorOnOverflow = true }
}

// GroupBy partitions upstream by keySelector, emitting a GroupedSource the
// first time a key is seen. Per spec.md §9's open question on the
// per-group queue bound: each group buffers up to bufferSize items
// (default 128) and, by default, drops the newest item once full; opt into
// WithGroupOverflowError to fail the whole stream instead.
func GroupBy[T any, K comparable](upstream streamx.Source[T], keySelector func(T) K, opts ...GroupByOption) streamx.Source[GroupedSource[K, T]] {
	cfg := groupByConfig{bufferSize: 128}
	for _, opt := range opts {
		opt(&cfg)
	}

	return streamx.SourceFunc[GroupedSource[K, T]](func(c streamx.Consumer[GroupedSource[K, T]]) {
		g := guard.New[GroupedSource[K, T]](c)
		g.Start()

		var mu sync.Mutex
		channels := map[K]chan T{}
		var failure error

		closeAll := func(err error) {
			mu.Lock()
			failure = err
			for k, ch := range channels {
				close(ch)
				delete(channels, k)
			}
			mu.Unlock()
		}

		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) {
				if g.Done() {
					return
				}
				key := keySelector(v)
				mu.Lock()
				ch, ok := channels[key]
				if !ok {
					ch = make(chan T, cfg.bufferSize)
					channels[key] = ch
					mu.Unlock()
					if !g.Next(GroupedSource[K, T]{Key: key, Source: newGroupSource(key, ch, &mu, channels, &failure)}) {
						return
					}
				} else {
					mu.Unlock()
				}
				select {
				case ch <- v:
				default:
					if cfg.errorOnOverflow {
						err := fmt.Errorf("streamx: groupBy: buffer overflow for key %v", key)
						closeAll(err)
						g.Error(err)
					}
				}
			},
			func(err error) {
				closeAll(err)
				g.Error(err)
			},
			func() {
				closeAll(nil)
				g.Complete()
			},
		))
	})
}

// Buffer collects upstream values into slices of at most size, emitting a
// full slice as soon as it fills and whatever remains when upstream
// completes.
func Buffer[T any](upstream streamx.Source[T], size int) streamx.Source[[]T] {
	return streamx.SourceFunc[[]T](func(c streamx.Consumer[[]T]) {
		g := guard.New[[]T](c)
		g.Start()
		buf := make([]T, 0, size)
		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) { g.SetUpstream(d) },
			func(v T) {
				buf = append(buf, v)
				if len(buf) == size {
					batch := buf
					buf = make([]T, 0, size)
					g.Next(batch)
				}
			},
			func(err error) { g.Error(err) },
			func() {
				if len(buf) > 0 {
					if !g.Next(buf) {
						return
					}
				}
				g.Complete()
			},
		))
	})
}

// BufferByTime collects values into a slice and emits it every span,
// regardless of how many values (possibly zero) arrived during it.
func BufferByTime[T any](upstream streamx.Source[T], span time.Duration, sch scheduler.Scheduler) streamx.Source[[]T] {
	return streamx.SourceFunc[[]T](func(c streamx.Consumer[[]T]) {
		g := guard.New[[]T](c)
		g.Start()

		var mu sync.Mutex
		buf := make([]T, 0)
		w := sch.CreateWorker()

		flush := func() {
			mu.Lock()
			batch := buf
			buf = make([]T, 0)
			mu.Unlock()
			g.Next(batch)
		}
		ticker := w.SchedulePeriodic(flush, span, span)

		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				g.SetUpstream(disposable.NewAction(func() {
					d.Dispose()
					ticker.Dispose()
					w.Dispose()
				}))
			},
			func(v T) {
				mu.Lock()
				buf = append(buf, v)
				mu.Unlock()
			},
			func(err error) { g.Error(err) },
			func() {
				mu.Lock()
				rest := buf
				mu.Unlock()
				if len(rest) > 0 {
					if !g.Next(rest) {
						return
					}
				}
				g.Complete()
			},
		))
	})
}

// Window is Buffer's Source-valued counterpart: each group of size values
// is delivered as its own completed Source rather than a slice.
func Window[T any](upstream streamx.Source[T], size int) streamx.Source[streamx.Source[T]] {
	return Map[[]T, streamx.Source[T]](Buffer(upstream, size), func(batch []T) (streamx.Source[T], error) {
		return source.FromSlice(batch), nil
	})
}

// Sample re-emits only the most recent upstream value once per tick of
// sampler; values that arrive between ticks without a following tick are
// dropped.
func Sample[T any](upstream streamx.Source[T], sampler streamx.Source[time.Time]) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()

		var mu sync.Mutex
		var latest T
		hasLatest := false
		children := disposable.NewContainer()
		g.SetUpstream(children)

		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) { children.Add(d) },
			func(v T) {
				mu.Lock()
				latest = v
				hasLatest = true
				mu.Unlock()
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		))
		sampler.Subscribe(streamx.NewConsumer[time.Time](
			func(d streamx.Disposable) { children.Add(d) },
			func(time.Time) {
				mu.Lock()
				v := latest
				ok := hasLatest
				hasLatest = false
				mu.Unlock()
				if ok {
					g.Next(v)
				}
			},
			func(error) {},
			func() {},
		))
	})
}

// ThrottleFirst emits the first value in every window of span, then
// ignores everything else until the window elapses.
func ThrottleFirst[T any](upstream streamx.Source[T], span time.Duration, sch scheduler.Scheduler) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		var mu sync.Mutex
		silent := false
		w := sch.CreateWorker()

		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				g.SetUpstream(disposable.NewAction(func() { d.Dispose(); w.Dispose() }))
			},
			func(v T) {
				mu.Lock()
				if silent {
					mu.Unlock()
					return
				}
				silent = true
				mu.Unlock()
				w.ScheduleDelayed(func() {
					mu.Lock()
					silent = false
					mu.Unlock()
				}, span)
				g.Next(v)
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		))
	})
}

// ThrottleLast emits the most recent value seen in every span-long window,
// dropping windows in which nothing arrived; equivalent to Sample driven by
// an internal Interval.
func ThrottleLast[T any](upstream streamx.Source[T], span time.Duration, sch scheduler.Scheduler) streamx.Source[T] {
	return Sample(upstream, source.Interval(span, sch))
}

// Debounce emits a value only once quiet has elapsed since it arrived
// without a newer value superseding it — the classic "wait for the user to
// stop typing" operator.
func Debounce[T any](upstream streamx.Source[T], quiet time.Duration, sch scheduler.Scheduler) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		w := sch.CreateWorker()
		pending := disposable.NewSerial()

		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				g.SetUpstream(disposable.NewAction(func() { d.Dispose(); pending.Dispose(); w.Dispose() }))
			},
			func(v T) {
				pending.Set(w.ScheduleDelayed(func() { g.Next(v) }, quiet))
			},
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		))
	})
}

// Timeout errors (or, if fallback is non-nil, switches to fallback)
// whenever more than quiet elapses between upstream values (measured from
// subscription time for the first one).
func Timeout[T any](upstream streamx.Source[T], quiet time.Duration, sch scheduler.Scheduler, fallback streamx.Source[T]) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		w := sch.CreateWorker()
		watchdog := disposable.NewSerial()

		var armWatchdog func()
		fire := func() {
			if fallback != nil {
				fallback.Subscribe(streamx.NewConsumer[T](
					func(d streamx.Disposable) { g.SetUpstream(d) },
					func(v T) { g.Next(v) },
					func(err error) { g.Error(err) },
					func() { g.Complete() },
				))
				return
			}
			g.Error(xerrors.ErrTimeout)
		}
		armWatchdog = func() {
			watchdog.Set(w.ScheduleDelayed(fire, quiet))
		}
		armWatchdog()

		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				g.SetUpstream(disposable.NewAction(func() { d.Dispose(); watchdog.Dispose(); w.Dispose() }))
			},
			func(v T) {
				armWatchdog()
				g.Next(v)
			},
			func(err error) {
				watchdog.Dispose()
				g.Error(err)
			},
			func() {
				watchdog.Dispose()
				g.Complete()
			},
		))
	})
}
