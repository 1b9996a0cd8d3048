package scheduler

import (
	"time"

	"go.uber.org/atomic"

	"github.com/rsocket/streamx/disposable"
)

// immediateScheduler runs every task synchronously on the calling goroutine.
// Schedule is truly recursive: a task that schedules another immediate task
// runs it nested, growing the call stack (contrast with Trampoline, which
// flattens re-entrant schedules into a queue). Per spec, delay on an
// immediate worker is driven by the caller's real clock (a blocking sleep).
// SchedulePeriodic is the exception: its loop runs on a goroutine of its own.
type immediateScheduler struct{ clock Clock }

func (s *immediateScheduler) Now() time.Time { return s.clock.Now() }

func (s *immediateScheduler) Schedule(task Task) disposable.Disposable {
	var cancelled atomic.Bool
	if !cancelled.Load() {
		task()
	}
	return disposable.NewAction(func() { cancelled.Store(true) })
}

func (s *immediateScheduler) ScheduleDelayed(task Task, delay time.Duration) disposable.Disposable {
	var cancelled atomic.Bool
	d := disposable.NewAction(func() { cancelled.Store(true) })
	if delay > 0 {
		<-s.clock.After(delay)
	}
	if !cancelled.Load() {
		task()
	}
	return d
}

func (s *immediateScheduler) SchedulePeriodic(task Task, initial, period time.Duration) disposable.Disposable {
	var cancelled atomic.Bool
	d := disposable.NewAction(func() { cancelled.Store(true) })
	go func() {
		if initial > 0 {
			<-s.clock.After(initial)
		}
		for !cancelled.Load() {
			task()
			if cancelled.Load() {
				return
			}
			<-s.clock.After(period)
		}
	}()
	return d
}

func (s *immediateScheduler) CreateWorker() Worker {
	return &immediateWorker{scheduler: s, Container: *disposable.NewContainer()}
}

type immediateWorker struct {
	scheduler *immediateScheduler
	disposable.Container
}

func (w *immediateWorker) Now() time.Time { return w.scheduler.Now() }
func (w *immediateWorker) Schedule(task Task) disposable.Disposable {
	return w.scheduler.Schedule(task)
}
func (w *immediateWorker) ScheduleDelayed(task Task, delay time.Duration) disposable.Disposable {
	return w.scheduler.ScheduleDelayed(task, delay)
}
func (w *immediateWorker) SchedulePeriodic(task Task, initial, period time.Duration) disposable.Disposable {
	d := w.scheduler.SchedulePeriodic(task, initial, period)
	w.Container.Add(d)
	return d
}

// Immediate returns the built-in immediate scheduler: caller-thread,
// recursive.
func Immediate() Scheduler { return &immediateScheduler{clock: defaultClock} }
