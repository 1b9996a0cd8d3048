package scheduler

import (
	"time"

	"github.com/zoobzio/clockz"
)

// Virtual wraps a clockz fake clock as a Scheduler whose every worker
// dispatches inline (on whatever goroutine fires the waiter), giving fully
// deterministic ordering under Advance. This is the testScheduler of
// spec.md's S3 scenario, grounded on _examples/zoobzio-streamz's
// batcher_test.go use of clockz.NewFakeClock() paired with .Advance()/
// .BlockUntilReady().
type Virtual struct {
	pooledScheduler
	Clock *clockz.FakeClock
}

// NewVirtual returns a Virtual scheduler whose clock starts at t.
func NewVirtual(t time.Time) *Virtual {
	clock := clockz.NewFakeClock()
	if d := t.Sub(clock.Now()); d > 0 {
		clock.Advance(d)
		clock.BlockUntilReady()
	}
	return &Virtual{
		pooledScheduler: pooledScheduler{clock: clock, submit: func(fn func()) { fn() }},
		Clock:           clock,
	}
}

// Advance moves the underlying fake clock forward by d and waits for every
// task that fires as a result to finish running.
func (v *Virtual) Advance(d time.Duration) {
	v.Clock.Advance(d)
	v.Clock.BlockUntilReady()
}
