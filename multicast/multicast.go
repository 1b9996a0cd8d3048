// Package multicast implements the ConnectableSource family: publish/replay/
// share/cache, the operators that let one upstream subscription fan out to
// many downstream consumers instead of each Subscribe call re-running the
// whole pipeline. Grounded on the teacher's rx_basic.go subscriber-set
// fan-out (a slice guarded by a lock, snapshotted for lock-free delivery)
// generalized to a mutex-guarded subscriber map that is mutated in place
// (no copy-on-write array) and snapshotted before each delivery, plus the
// bounded replay buffers this needs, and on RxJava's ObservablePublish/ObservableReplay/
// Observable.cache() for the exact multicast contract.
package multicast

import (
	"sync"
	"time"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/disposable"
	"github.com/rsocket/streamx/internal/guard"
	"github.com/rsocket/streamx/scheduler"

	"go.uber.org/atomic"
)

// ConnectableSource is a Source that holds its subscribers without touching
// upstream until Connect is called. At most one upstream subscription is
// ever active at a time; calling Connect again while already connected
// returns the existing connection instead of subscribing twice.
type ConnectableSource[T any] interface {
	streamx.Source[T]
	// Connect subscribes to upstream and starts fanning out to whatever
	// subscribers are already registered. A no-op returning a disposed
	// handle once upstream has already reached a terminal.
	Connect() streamx.Disposable
}

type historyEntry[T any] struct {
	value T
	at    time.Time
}

// hub is the shared multicast core: a subscriber set plus, for replay
// variants, a bounded history. All mutation goes through mu; onNext/onError/
// onComplete take a snapshot of the subscriber set under the lock and then
// deliver outside it, so a slow subscriber never blocks the others.
type hub[T any] struct {
	mu        sync.Mutex
	buffering bool
	sizeBound int
	timeBound time.Duration
	clock     scheduler.Scheduler

	history     []historyEntry[T]
	terminal    *streamx.Notification[T]
	subscribers map[int]*guard.Guard[T]
	nextID      int
}

func newHub[T any](buffering bool, sizeBound int, timeBound time.Duration, clock scheduler.Scheduler) *hub[T] {
	return &hub[T]{
		buffering:   buffering,
		sizeBound:   sizeBound,
		timeBound:   timeBound,
		clock:       clock,
		subscribers: make(map[int]*guard.Guard[T]),
	}
}

func (h *hub[T]) now() time.Time {
	if h.clock != nil {
		return h.clock.Now()
	}
	return time.Time{}
}

// evictLocked drops history entries older than timeBound. Called before
// every read and every write of the history so both a fresh subscriber and
// a fresh append see an up-to-date window.
func (h *hub[T]) evictLocked() {
	if h.timeBound <= 0 || len(h.history) == 0 {
		return
	}
	cutoff := h.now().Add(-h.timeBound)
	i := 0
	for i < len(h.history) && h.history[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		h.history = append([]historyEntry[T]{}, h.history[i:]...)
	}
}

func (h *hub[T]) appendLocked(v T) {
	if !h.buffering {
		return
	}
	h.history = append(h.history, historyEntry[T]{value: v, at: h.now()})
	h.evictLocked()
	if h.sizeBound > 0 && len(h.history) > h.sizeBound {
		h.history = append([]historyEntry[T]{}, h.history[len(h.history)-h.sizeBound:]...)
	}
}

func (h *hub[T]) snapshotLocked() []*guard.Guard[T] {
	out := make([]*guard.Guard[T], 0, len(h.subscribers))
	for _, g := range h.subscribers {
		out = append(out, g)
	}
	return out
}

func (h *hub[T]) hasTerminal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminal != nil
}

// subscribe delivers the retained history (if any) synchronously, then
// either latches the subscriber into the live set or, if upstream has
// already terminated, replays that terminal immediately. A subscriber can
// never observe a gap between the replayed prefix and the first live value:
// the lock is held across "read history" and "join the live set".
func (h *hub[T]) subscribe(c streamx.Consumer[T]) streamx.Disposable {
	g := guard.New[T](c)
	g.Start()

	h.mu.Lock()
	h.evictLocked()
	for _, e := range h.history {
		g.Next(e.value)
	}
	term := h.terminal
	if term == nil {
		id := h.nextID
		h.nextID++
		h.subscribers[id] = g
		g.SetUpstream(disposable.NewAction(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
		}))
	}
	h.mu.Unlock()

	if term != nil {
		if term.Kind == streamx.KindError {
			g.Error(term.Err)
		} else {
			g.Complete()
		}
	}
	return g
}

func (h *hub[T]) onNext(v T) {
	h.mu.Lock()
	h.appendLocked(v)
	subs := h.snapshotLocked()
	h.mu.Unlock()
	for _, g := range subs {
		g.Next(v)
	}
}

func (h *hub[T]) onError(err error) {
	h.mu.Lock()
	if h.terminal != nil {
		h.mu.Unlock()
		return
	}
	n := streamx.Error[T](err)
	h.terminal = &n
	subs := h.snapshotLocked()
	h.subscribers = make(map[int]*guard.Guard[T])
	h.mu.Unlock()
	for _, g := range subs {
		g.Error(err)
	}
}

func (h *hub[T]) onComplete() {
	h.mu.Lock()
	if h.terminal != nil {
		h.mu.Unlock()
		return
	}
	n := streamx.Complete[T]()
	h.terminal = &n
	subs := h.snapshotLocked()
	h.subscribers = make(map[int]*guard.Guard[T])
	h.mu.Unlock()
	for _, g := range subs {
		g.Complete()
	}
}

type connectable[T any] struct {
	upstream streamx.Source[T]
	hub      *hub[T]

	mu   sync.Mutex
	live streamx.Disposable
}

func (c *connectable[T]) Subscribe(consumer streamx.Consumer[T]) {
	c.hub.subscribe(consumer)
}

func (c *connectable[T]) Connect() streamx.Disposable {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hub.hasTerminal() {
		return disposable.Empty()
	}
	if c.live != nil && !c.live.IsDisposed() {
		return c.live
	}

	slot := disposable.NewSerial()
	c.upstream.Subscribe(streamx.NewConsumer[T](
		func(d streamx.Disposable) { slot.Set(d) },
		func(v T) { c.hub.onNext(v) },
		func(err error) { c.hub.onError(err) },
		func() { c.hub.onComplete() },
	))
	c.live = slot
	return c.live
}

// Publish creates a ConnectableSource with no buffering: a subscriber only
// sees values emitted after it joins. Upstream's terminal is still latched
// and replayed to subscribers that join afterward.
func Publish[T any](upstream streamx.Source[T]) ConnectableSource[T] {
	return &connectable[T]{upstream: upstream, hub: newHub[T](false, 0, 0, nil)}
}

// ReplayUnbounded creates a ConnectableSource that retains every value ever
// emitted and replays it in order to any subscriber that joins, however
// late.
func ReplayUnbounded[T any](upstream streamx.Source[T]) ConnectableSource[T] {
	return &connectable[T]{upstream: upstream, hub: newHub[T](true, 0, 0, nil)}
}

// ReplaySizeBound retains only the most recent n values, dropping the
// oldest on overflow.
func ReplaySizeBound[T any](upstream streamx.Source[T], n int) ConnectableSource[T] {
	return &connectable[T]{upstream: upstream, hub: newHub[T](true, n, 0, nil)}
}

// ReplayTimeBound retains only values emitted within the last span of the
// scheduler's clock.
func ReplayTimeBound[T any](upstream streamx.Source[T], span time.Duration, sch scheduler.Scheduler) ConnectableSource[T] {
	return &connectable[T]{upstream: upstream, hub: newHub[T](true, 0, span, sch)}
}

// ReplaySizeAndTimeBound combines both bounds: at most n values, and none
// older than span.
func ReplaySizeAndTimeBound[T any](upstream streamx.Source[T], n int, span time.Duration, sch scheduler.Scheduler) ConnectableSource[T] {
	return &connectable[T]{upstream: upstream, hub: newHub[T](true, n, span, sch)}
}

type disposableFunc struct {
	dispose    func()
	isDisposed func() bool
}

func (d disposableFunc) Dispose()         { d.dispose() }
func (d disposableFunc) IsDisposed() bool { return d.isDisposed() }

// Share auto-connects on the first subscriber and disposes the upstream
// connection on the transition back to zero subscribers, per spec's
// publish().refCount() definition. A later subscriber after that transition
// triggers a fresh Connect, unless upstream has already reached a terminal
// (Publish latches that and every subscriber sees it immediately).
func Share[T any](upstream streamx.Source[T]) streamx.Source[T] {
	cs := Publish(upstream)

	var mu sync.Mutex
	count := 0
	var connection streamx.Disposable

	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		connectNow := false
		cs.Subscribe(streamx.NewConsumer[T](
			func(d streamx.Disposable) {
				mu.Lock()
				count++
				connectNow = count == 1
				mu.Unlock()

				c.OnSubscribe(disposableFunc{
					dispose: func() {
						d.Dispose()
						mu.Lock()
						count--
						if count == 0 && connection != nil {
							connection.Dispose()
							connection = nil
						}
						mu.Unlock()
					},
					isDisposed: d.IsDisposed,
				})
			},
			c.OnNext,
			c.OnError,
			c.OnComplete,
		))
		// Connect only once the first subscriber has joined the hub, so it
		// sees the values upstream emits synchronously on connect.
		if connectNow {
			conn := cs.Connect()
			mu.Lock()
			if count == 0 {
				mu.Unlock()
				conn.Dispose()
				return
			}
			connection = conn
			mu.Unlock()
		}
	})
}

// Cache auto-connects on the first subscriber, retains every value seen
// like ReplayUnbounded, and never disconnects — matching RxJava's own
// documented cache() == publish().replay().autoConnect(1) definition with
// no refCount teardown.
func Cache[T any](upstream streamx.Source[T]) streamx.Source[T] {
	cs := ReplayUnbounded(upstream)
	var connected atomic.Bool

	return streamx.SourceFunc[T](func(c streamx.Consumer[T]) {
		cs.Subscribe(c)
		if connected.CompareAndSwap(false, true) {
			cs.Connect()
		}
	})
}
