// This file implements the lifecycle operator family spec.md §4.8 names:
// thread placement (observeOn/subscribeOn/unsubscribeOn) and the
// redo-loop operators (retry/repeat, in their When/count/until forms).
// Grounded on the teacher's rx/rx_scheduler.go Do-dispatch shape for thread
// placement, and on RxJava's ObservableSubscribeOn/ObserveOn/
// ObservableRetryWhen/ObservableRepeatWhen (original_source) for the redo
// semantics; the redo loop itself is driven by disposable.Serial exactly
// like switchMap's "replace the live subscription" need.
package operators

import (
	"time"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/disposable"
	"github.com/rsocket/streamx/internal/guard"
	"github.com/rsocket/streamx/scheduler"
)

// SubscribeOn moves the act of subscribing to upstream onto sch, instead of
// running it on whatever goroutine calls Subscribe.
func SubscribeOn[T any](upstream streamx.Source[T], sch scheduler.Scheduler) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		d := sch.Schedule(func() {
			upstream.Subscribe(streamx.NewConsumer[T](
				func(d streamx.Disposable) { g.SetUpstream(d) },
				func(v T) { g.Next(v) },
				func(err error) { g.Error(err) },
				func() { g.Complete() },
			))
		})
		g.SetUpstream(d)
	})
}

// ObserveOn moves every downstream callback onto a worker drawn from sch,
// preserving arrival order (a Worker is itself a serialized FIFO queue).
func ObserveOn[T any](upstream streamx.Source[T], sch scheduler.Scheduler) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		w := sch.CreateWorker()
		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				g.SetUpstream(disposable.NewAction(func() { d.Dispose(); w.Dispose() }))
			},
			func(v T) { w.Schedule(func() { g.Next(v) }) },
			func(err error) { w.Schedule(func() { g.Error(err) }) },
			func() { w.Schedule(func() { g.Complete() }) },
		))
	})
}

// UnsubscribeOn runs the actual upstream Dispose call on sch instead of on
// whichever goroutine cancels the subscription — useful when tearing down
// the upstream resource blocks (closing a socket, joining a goroutine).
func UnsubscribeOn[T any](upstream streamx.Source[T], sch scheduler.Scheduler) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				g.SetUpstream(disposable.NewAction(func() { sch.Schedule(func() { d.Dispose() }) }))
			},
			func(v T) { g.Next(v) },
			func(err error) { g.Error(err) },
			func() { g.Complete() },
		))
	})
}

// redo drives the shared retry/repeat resubscribe loop: subscribeOnce
// re-invokes upstream.Subscribe, and onError/onComplete decide (from the
// attempt number, 1-based, and for onError the error seen) whether to loop
// again and after what delay. Either one returning false ends the loop by
// forwarding the just-seen terminal to g.
func redo[T any](g *guard.Guard[T], upstream streamx.Source[T], sch scheduler.Scheduler, onError func(attempt int, err error) (retry bool, delay time.Duration), onComplete func(attempt int) (again bool, delay time.Duration)) {
	slot := disposable.NewSerial()
	w := sch.CreateWorker()
	g.SetUpstream(disposable.NewAction(func() { slot.Dispose(); w.Dispose() }))

	attempt := 0
	var subscribeOnce func()
	subscribeOnce = func() {
		attempt++
		thisAttempt := attempt
		upstream.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) { slot.Set(d) },
			func(v T) { g.Next(v) },
			func(err error) {
				retry, delay := onError(thisAttempt, err)
				if !retry {
					w.Dispose()
					g.Error(err)
					return
				}
				if delay <= 0 {
					subscribeOnce()
					return
				}
				slot.Set(w.ScheduleDelayed(subscribeOnce, delay))
			},
			func() {
				again, delay := onComplete(thisAttempt)
				if !again {
					w.Dispose()
					g.Complete()
					return
				}
				if delay <= 0 {
					subscribeOnce()
					return
				}
				slot.Set(w.ScheduleDelayed(subscribeOnce, delay))
			},
		))
	}
	subscribeOnce()
}

// RetryWhen resubscribes to upstream after an error, asking decide (given
// the 1-based attempt number and the error just seen) whether to retry and
// after what delay.
func RetryWhen[T any](upstream streamx.Source[T], sch scheduler.Scheduler, decide func(attempt int, err error) (retry bool, delay time.Duration)) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		redo(g, upstream, sch, decide, func(int) (bool, time.Duration) { return false, 0 })
	})
}

// Retry resubscribes immediately up to maxAttempts times total before
// giving up and forwarding the last error.
func Retry[T any](upstream streamx.Source[T], sch scheduler.Scheduler, maxAttempts int) streamx.Source[T] {
	return RetryWhen(upstream, sch, func(attempt int, err error) (bool, time.Duration) {
		return attempt < maxAttempts, 0
	})
}

// RetryUntil resubscribes immediately until stop returns true for the
// error just seen, at which point that error is forwarded.
func RetryUntil[T any](upstream streamx.Source[T], sch scheduler.Scheduler, stop func(err error) bool) streamx.Source[T] {
	return RetryWhen(upstream, sch, func(attempt int, err error) (bool, time.Duration) {
		return !stop(err), 0
	})
}

// RepeatWhen resubscribes to upstream after it completes normally, asking
// decide (given the 1-based attempt number) whether to go again and after
// what delay.
func RepeatWhen[T any](upstream streamx.Source[T], sch scheduler.Scheduler, decide func(attempt int) (again bool, delay time.Duration)) streamx.Source[T] {
	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		g := guard.New[T](c)
		g.Start()
		redo(g, upstream, sch, func(int, error) (bool, time.Duration) { return false, 0 }, decide)
	})
}

// Repeat resubscribes immediately until upstream has run times times total.
func Repeat[T any](upstream streamx.Source[T], sch scheduler.Scheduler, times int) streamx.Source[T] {
	return RepeatWhen(upstream, sch, func(attempt int) (bool, time.Duration) {
		return attempt < times, 0
	})
}

// RepeatUntil resubscribes immediately until stop returns true.
func RepeatUntil[T any](upstream streamx.Source[T], sch scheduler.Scheduler, stop func() bool) streamx.Source[T] {
	return RepeatWhen(upstream, sch, func(attempt int) (bool, time.Duration) {
		return !stop(), 0
	})
}
