package scheduler

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/rsocket/streamx/disposable"
)

// trampolineScheduler runs tasks on the caller's goroutine like Immediate,
// but re-entrant schedules are queued onto an outer drain loop instead of
// recursing, so a task that keeps rescheduling itself cannot blow the stack.
type trampolineScheduler struct{ clock Clock }

func (s *trampolineScheduler) Now() time.Time { return s.clock.Now() }

func (s *trampolineScheduler) Schedule(task Task) disposable.Disposable {
	return s.CreateWorker().Schedule(task)
}

func (s *trampolineScheduler) ScheduleDelayed(task Task, delay time.Duration) disposable.Disposable {
	return s.CreateWorker().ScheduleDelayed(task, delay)
}

func (s *trampolineScheduler) SchedulePeriodic(task Task, initial, period time.Duration) disposable.Disposable {
	return s.CreateWorker().SchedulePeriodic(task, initial, period)
}

func (s *trampolineScheduler) CreateWorker() Worker {
	return &trampolineWorker{clock: s.clock, children: disposable.NewContainer()}
}

type trampolineWorker struct {
	clock Clock

	mu       sync.Mutex
	q        []func()
	draining bool
	disposed bool
	children *disposable.Container
}

func (w *trampolineWorker) Now() time.Time { return w.clock.Now() }

func (w *trampolineWorker) Schedule(task Task) disposable.Disposable {
	var cancelled atomic.Bool
	wrapped := func() {
		if !cancelled.Load() {
			task()
		}
	}
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return disposable.Empty()
	}
	w.q = append(w.q, wrapped)
	alreadyDraining := w.draining
	w.draining = true
	w.mu.Unlock()

	if !alreadyDraining {
		w.drain()
	}
	return disposable.NewAction(func() { cancelled.Store(true) })
}

func (w *trampolineWorker) drain() {
	for {
		w.mu.Lock()
		if len(w.q) == 0 {
			w.draining = false
			w.mu.Unlock()
			return
		}
		fn := w.q[0]
		w.q = w.q[1:]
		w.mu.Unlock()
		fn()
	}
}

func (w *trampolineWorker) ScheduleDelayed(task Task, delay time.Duration) disposable.Disposable {
	var cancelled atomic.Bool
	d := disposable.NewAction(func() { cancelled.Store(true) })
	w.children.Add(d)
	timer := w.clock.AfterFunc(delay, func() {
		if !cancelled.Load() {
			w.Schedule(task)
		}
	})
	w.children.Remove(d)
	d = disposable.NewAction(func() {
		cancelled.Store(true)
		timer.Stop()
	})
	w.children.Add(d)
	return d
}

func (w *trampolineWorker) SchedulePeriodic(task Task, initial, period time.Duration) disposable.Disposable {
	serial := disposable.NewSerial()
	var cancelled atomic.Bool

	var scheduleNext func(time.Duration)
	scheduleNext = func(d time.Duration) {
		t := w.clock.AfterFunc(d, func() {
			if cancelled.Load() {
				return
			}
			w.Schedule(task)
			if !cancelled.Load() {
				scheduleNext(period)
			}
		})
		serial.Set(timerDisposable{t})
	}
	scheduleNext(initial)

	return disposable.NewAction(func() {
		cancelled.Store(true)
		serial.Dispose()
	})
}

func (w *trampolineWorker) Dispose() {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.disposed = true
	w.q = nil
	w.mu.Unlock()
	w.children.Dispose()
}

func (w *trampolineWorker) IsDisposed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disposed
}

// Trampoline returns the built-in trampoline scheduler: caller-thread,
// queue-drained.
func Trampoline() Scheduler { return &trampolineScheduler{clock: defaultClock} }
