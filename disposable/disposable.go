// Package disposable provides the composable cancellation primitives that
// back every operator's lifecycle: a single action, a container of
// children, and a serially-replaceable slot. The action uses a CAS flag and
// the container and slot use a mutex, so dispose is idempotent and races
// between "dispose" and "assign" always resolve
// towards disposing whichever value loses the race.
package disposable

import (
	"sync"

	"go.uber.org/atomic"
)

// Disposable is an ownership-transferable cancellation token.
type Disposable interface {
	// Dispose cancels the resource. Safe to call more than once; only the
	// first call has effect.
	Dispose()
	// IsDisposed reports whether Dispose has run.
	IsDisposed() bool
}

type empty struct{}

func (empty) Dispose()       {}
func (empty) IsDisposed() bool { return true }

var emptyInstance Disposable = empty{}

// Empty returns the disposed no-op constant.
func Empty() Disposable { return emptyInstance }

// action runs fn at most once, on first Dispose.
type action struct {
	done atomic.Bool
	fn   func()
}

func (a *action) Dispose() {
	if a.done.CompareAndSwap(false, true) {
		a.fn()
	}
}

func (a *action) IsDisposed() bool { return a.done.Load() }

// NewAction returns a Disposable that runs fn exactly once, on the first
// call to Dispose. Grounded on RxJava's Disposables.from(Runnable).
func NewAction(fn func()) Disposable {
	return &action{fn: fn}
}

// container owns a set of children. Dispose disposes all of them and
// forbids further adds; an Add after dispose disposes its argument
// immediately and reports failure, matching spec.md's CompositeDisposable.
type container struct {
	mu       sync.Mutex
	disposed bool
	children map[Disposable]struct{}
}

// NewContainer returns an empty Container.
func NewContainer() *Container {
	return &Container{impl: &container{children: make(map[Disposable]struct{})}}
}

// Container is a disposable that owns a dynamic set of children.
type Container struct {
	impl *container
}

// Add registers d as a child. Returns false if the container has already
// been disposed, in which case d is disposed immediately instead.
func (c *Container) Add(d Disposable) bool {
	c.impl.mu.Lock()
	if c.impl.disposed {
		c.impl.mu.Unlock()
		d.Dispose()
		return false
	}
	c.impl.children[d] = struct{}{}
	c.impl.mu.Unlock()
	return true
}

// Remove drops d from the set without disposing it.
func (c *Container) Remove(d Disposable) {
	c.impl.mu.Lock()
	delete(c.impl.children, d)
	c.impl.mu.Unlock()
}

// Len reports the number of live children.
func (c *Container) Len() int {
	c.impl.mu.Lock()
	defer c.impl.mu.Unlock()
	return len(c.impl.children)
}

// Dispose disposes every child exactly once and marks the container closed.
func (c *Container) Dispose() {
	c.impl.mu.Lock()
	if c.impl.disposed {
		c.impl.mu.Unlock()
		return
	}
	c.impl.disposed = true
	children := c.impl.children
	c.impl.children = nil
	c.impl.mu.Unlock()
	for d := range children {
		d.Dispose()
	}
}

// IsDisposed reports whether Dispose has run.
func (c *Container) IsDisposed() bool {
	c.impl.mu.Lock()
	defer c.impl.mu.Unlock()
	return c.impl.disposed
}

// Serial holds at most one child at a time; Set replaces and disposes the
// previous holder, and Dispose rejects all future Sets. This is the
// primitive behind subscribeOn/switchMap/retry's "replace the live upstream
// subscription" need.
type Serial struct {
	mu       sync.Mutex
	disposed bool
	current  Disposable
}

// NewSerial returns an empty Serial slot.
func NewSerial() *Serial {
	return &Serial{}
}

// Set replaces the held disposable, disposing the one being replaced.
// Returns false if the slot is already disposed, in which case d is
// disposed immediately instead of being held.
func (s *Serial) Set(d Disposable) bool {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		if d != nil {
			d.Dispose()
		}
		return false
	}
	prev := s.current
	s.current = d
	s.mu.Unlock()
	if prev != nil {
		prev.Dispose()
	}
	return true
}

// Dispose disposes the currently held child and rejects future Sets.
func (s *Serial) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	prev := s.current
	s.current = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Dispose()
	}
}

// IsDisposed reports whether Dispose has run.
func (s *Serial) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Get returns the currently held child, or nil.
func (s *Serial) Get() Disposable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
