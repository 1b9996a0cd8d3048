package scheduler

import (
	"runtime"
	"sync"

	"github.com/panjf2000/ants"
)

// Single returns a scheduler backed by one dedicated background goroutine —
// every worker drawn from it still serializes independently, but all of
// them funnel through the same goroutine, matching the teacher's
// worker.go fixedWorkerPool(1).
func Single() *PooledScheduler {
	jobs := make(chan func(), 64)
	once := &sync.Once{}
	start := func() {
		once.Do(func() {
			go func() {
				for fn := range jobs {
					fn()
				}
			}()
		})
	}
	start()
	return &PooledScheduler{pooledScheduler: pooledScheduler{
		clock:  defaultClock,
		submit: func(fn func()) { jobs <- fn },
		closeFn: func() error {
			close(jobs)
			return nil
		},
	}}
}

// NewThread returns a scheduler that spins up a fresh goroutine for every
// drain dispatch. Grounded on the teacher's worker.go infiniteWorkerPool
// ("go fn()" per job).
func NewThread() *PooledScheduler {
	return &PooledScheduler{pooledScheduler: pooledScheduler{
		clock:  defaultClock,
		submit: func(fn func()) { go fn() },
	}}
}

// Computation returns a scheduler backed by an ants.Pool sized to the
// number of logical CPUs, for CPU-bound work. Grounded on the teacher's
// rx/rx_scheduler.go ElasticScheduler, which wraps ants.Pool the same way.
func Computation() *PooledScheduler {
	return newAntsScheduler(runtime.NumCPU())
}

// IO returns a scheduler backed by an elastically-sized ants.Pool, for
// blocking or I/O-bound work. Grounded on the teacher's ElasticScheduler,
// which defaults to ants.DefaultAntsPoolSize.
func IO() *PooledScheduler {
	return newAntsScheduler(ants.DefaultAntsPoolSize)
}

func newAntsScheduler(size int) *PooledScheduler {
	pool, err := ants.NewPool(size)
	if err != nil {
		panic(err)
	}
	return &PooledScheduler{pooledScheduler: pooledScheduler{
		clock: defaultClock,
		submit: func(fn func()) {
			if err := pool.Submit(fn); err != nil {
				// pool exhausted or released: run inline rather than drop the task,
				// matching the teacher's "panic on submit error" being too strict
				// for a library used outside a long-lived server process.
				fn()
			}
		},
		closeFn: func() error {
			pool.Release()
			return nil
		},
	}}
}

// PooledScheduler is the Scheduler returned by Single, NewThread,
// Computation and IO. It additionally exposes Close to release pooled
// resources (ants pools, the single background goroutine).
type PooledScheduler struct {
	pooledScheduler
}

// FromFunc adapts an arbitrary "run this function somehow" executor (e.g. a
// custom worker pool, an http.Handler's request goroutine, anything) into a
// Scheduler, mirroring the teacher's factory.go style of wrapping external
// executors.
func FromFunc(run func(func())) Scheduler {
	return &pooledScheduler{clock: defaultClock, submit: run}
}
