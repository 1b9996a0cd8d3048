package source

import (
	"github.com/valyala/bytebufferpool"
	"go.uber.org/atomic"

	"github.com/rsocket/streamx"
	"github.com/rsocket/streamx/disposable"
	"github.com/rsocket/streamx/internal/guard"
)

// FromBytes emits a single []byte value copied out of a pooled buffer, then
// completes. The pooled copy is returned to the pool as soon as the
// subscription reaches a terminal state or is disposed, so callers that push
// many short-lived byte payloads through a pipeline (the common case this
// module was pulled out of RSocket for) don't force a fresh allocation per
// value the way a bare append([]byte(nil), data...) would.
//
// The returned slice must not be retained past the subscription's lifetime:
// once the buffer goes back to the pool it may be reused and overwritten by
// an unrelated FromBytes call.
func FromBytes(data []byte) streamx.Source[[]byte] {
	return streamx.SourceFunc[[]byte](func(c streamx.Consumer[[]byte]) {
		g := guard.New[[]byte](c)
		g.Start()

		buf := bytebufferpool.Get()
		buf.B = append(buf.B[:0], data...)
		var released atomic.Bool
		release := func() {
			if released.CompareAndSwap(false, true) {
				bytebufferpool.Put(buf)
			}
		}

		g.SetUpstream(disposable.NewAction(release))
		if g.Next(buf.B) {
			g.Complete()
		}
		release()
	})
}
