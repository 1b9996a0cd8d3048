// Package scheduler supplies the Scheduler/Worker abstraction that drives
// time-based operators and thread placement. Workers are themselves
// Disposables: disposing one cancels every task it scheduled.
//
// Execution is grounded on the teacher's rx/rx_scheduler.go (ants.Pool-backed
// ElasticScheduler) and worker.go (fixedWorkerPool); time is read through
// github.com/zoobzio/clockz so tests can drive a fake clock instead of
// sleeping on the wall clock (see NewVirtual).
package scheduler

import (
	"time"

	"github.com/zoobzio/clockz"

	"github.com/rsocket/streamx/disposable"
)

// Task is a unit of work submitted to a Worker.
type Task func()

// Scheduler is a factory for Workers.
type Scheduler interface {
	// Now returns the scheduler's current monotonic time.
	Now() time.Time
	// Schedule runs task as soon as possible on some worker.
	Schedule(task Task) disposable.Disposable
	// ScheduleDelayed runs task once after at least delay has elapsed.
	ScheduleDelayed(task Task, delay time.Duration) disposable.Disposable
	// SchedulePeriodic runs task repeatedly: first after initial, then every
	// period, until disposed.
	SchedulePeriodic(task Task, initial, period time.Duration) disposable.Disposable
	// CreateWorker returns a new sequential executor drawn from this
	// scheduler. Disposing the worker cancels every task it scheduled.
	CreateWorker() Worker
}

// Worker is a per-worker sequential executor: no two tasks scheduled on the
// same Worker ever run concurrently, and equal-time schedules run in
// submission order. A Worker is itself a Disposable.
type Worker interface {
	disposable.Disposable
	Now() time.Time
	Schedule(task Task) disposable.Disposable
	ScheduleDelayed(task Task, delay time.Duration) disposable.Disposable
	SchedulePeriodic(task Task, initial, period time.Duration) disposable.Disposable
}

// Clock is the time source schedulers read from. Production schedulers use
// clockz.RealClock; NewVirtual wires a fake clock instead (see virtual.go).
type Clock = clockz.Clock

// Timer and Ticker are the handle types clockz.Clock hands back from
// AfterFunc/NewTimer/NewTicker.
type Timer = clockz.Timer
type Ticker = clockz.Ticker

// defaultClock is the real wall clock every built-in scheduler reads from
// unless constructed via NewVirtual.
var defaultClock Clock = clockz.RealClock
