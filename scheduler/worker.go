package scheduler

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/rsocket/streamx/disposable"
)

// timerDisposable adapts a clockz.Timer into a Disposable so SchedulePeriodic
// can hold it in a disposable.Serial.
type timerDisposable struct{ t Timer }

func (d timerDisposable) Dispose()         { d.t.Stop() }
func (d timerDisposable) IsDisposed() bool { return false }

// pooledWorker is the serialized-drain-loop shape shared by the single,
// newThread, computation and io scheduler kinds: a task queue drained by
// exactly one in-flight "drain" dispatch at a time, submitted through a
// pluggable executor. Grounded on the teacher's worker.go fixedWorkerPool
// and rx/rx_scheduler.go ElasticScheduler.
type pooledWorker struct {
	clock  Clock
	submit func(func())

	mu       sync.Mutex
	q        []func()
	running  bool
	disposed bool
	children *disposable.Container
}

func newPooledWorker(clock Clock, submit func(func())) *pooledWorker {
	return &pooledWorker{clock: clock, submit: submit, children: disposable.NewContainer()}
}

func (w *pooledWorker) Now() time.Time { return w.clock.Now() }

func (w *pooledWorker) enqueue(fn func()) {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.q = append(w.q, fn)
	start := !w.running
	w.running = true
	w.mu.Unlock()
	if start {
		w.submit(w.drain)
	}
}

func (w *pooledWorker) drain() {
	for {
		w.mu.Lock()
		if len(w.q) == 0 {
			w.running = false
			w.mu.Unlock()
			return
		}
		fn := w.q[0]
		w.q = w.q[1:]
		w.mu.Unlock()
		fn()
	}
}

func (w *pooledWorker) Schedule(task Task) disposable.Disposable {
	var cancelled atomic.Bool
	d := disposable.NewAction(func() { cancelled.Store(true) })
	w.children.Add(d)
	w.enqueue(func() {
		defer w.children.Remove(d)
		if !cancelled.Load() {
			task()
		}
	})
	return d
}

func (w *pooledWorker) ScheduleDelayed(task Task, delay time.Duration) disposable.Disposable {
	var cancelled atomic.Bool
	d := disposable.NewAction(func() { cancelled.Store(true) })
	w.children.Add(d)
	timer := w.clock.AfterFunc(delay, func() {
		if cancelled.Load() {
			return
		}
		w.enqueue(func() {
			defer w.children.Remove(d)
			if !cancelled.Load() {
				task()
			}
		})
	})
	w.children.Remove(d)
	d = disposable.NewAction(func() {
		cancelled.Store(true)
		timer.Stop()
	})
	w.children.Add(d)
	return d
}

func (w *pooledWorker) SchedulePeriodic(task Task, initial, period time.Duration) disposable.Disposable {
	serial := disposable.NewSerial()
	var cancelled atomic.Bool

	var scheduleNext func(time.Duration)
	scheduleNext = func(d time.Duration) {
		t := w.clock.AfterFunc(d, func() {
			if cancelled.Load() {
				return
			}
			w.enqueue(func() {
				if cancelled.Load() {
					return
				}
				task()
			})
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

func (w *pooledWorker) Dispose() {
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

func (w *pooledWorker) IsDisposed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disposed
}

// pooledScheduler builds ephemeral pooledWorkers that share a dispatch
// function (how a drain loop gets run: inline, goroutine-per-drain, or
// pool.Submit). Single, NewThread, Computation and IO are all instances of
// this with different submit/close pairs.
type pooledScheduler struct {
	clock  Clock
	submit func(func())
	closeFn func() error
}

func (s *pooledScheduler) Now() time.Time { return s.clock.Now() }

func (s *pooledScheduler) CreateWorker() Worker {
	return newPooledWorker(s.clock, s.submit)
}

func (s *pooledScheduler) Schedule(task Task) disposable.Disposable {
	return newPooledWorker(s.clock, s.submit).Schedule(task)
}

func (s *pooledScheduler) ScheduleDelayed(task Task, delay time.Duration) disposable.Disposable {
	return newPooledWorker(s.clock, s.submit).ScheduleDelayed(task, delay)
}

func (s *pooledScheduler) SchedulePeriodic(task Task, initial, period time.Duration) disposable.Disposable {
	return newPooledWorker(s.clock, s.submit).SchedulePeriodic(task, initial, period)
}

// Close releases the backing executor, if it owns one (ants pools do).
func (s *pooledScheduler) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}
