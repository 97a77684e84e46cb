package runtime

import (
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/stagestats/internal/runtime/clock"
	"github.com/drblury/stagestats/internal/runtime/stats"
	"github.com/drblury/stagestats/internal/runtime/stream"
)

// recorder is the timing side effect shared by the wrappers of one stage.
type recorder struct {
	clock clock.Clock
	stats *stats.Stats
	hooks StageHooks
	ctx   StageContext
}

func (r *recorder) record(start clock.Instant) {
	value := r.clock.Since(start)
	r.stats.Add(value)
	if r.hooks.OnSample != nil {
		r.hooks.OnSample(r.ctx, value)
	}
}

func (r *recorder) complete() {
	r.stats.Calc()
	if r.hooks.OnComplete != nil {
		r.hooks.OnComplete(r.ctx, r.stats.Snapshot())
	}
}

// instrument decorates the node's stage with a timing wrapper of the same
// capability and finalises the accumulator on the node's completion event.
// It reports false for stages of unknown capability, which are left as is.
func instrument(n *stream.Node, rec *recorder) bool {
	var (
		wrap func(stream.Stage) stream.Stage
		ev   stream.Event
	)
	switch n.Kind() {
	case stream.KindTransformer:
		wrap = func(s stream.Stage) stream.Stage {
			return &timedTransformer{inner: s.(stream.Transformer), rec: rec}
		}
		ev = stream.EventEnd
	case stream.KindConsumer:
		wrap = func(s stream.Stage) stream.Stage {
			return &timedConsumer{inner: s.(stream.Consumer), rec: rec}
		}
		ev = stream.EventFinish
	case stream.KindProducer:
		wrap = func(s stream.Stage) stream.Stage {
			return &timedProducer{inner: s.(stream.Producer), rec: rec}
		}
		ev = stream.EventEnd
	default:
		return false
	}

	n.Decorate(wrap)
	n.PrependOnce(ev, rec.complete)
	return true
}

type timedTransformer struct {
	inner stream.Transformer
	rec   *recorder
}

// Transform records one sample per input item, however often the wrapped
// stage invokes its completion callback.
func (t *timedTransformer) Transform(msg *message.Message, done stream.TransformDoneFunc) {
	start := t.rec.clock.Now()
	var recorded atomic.Bool
	t.inner.Transform(msg, func(err error, out ...*message.Message) {
		if recorded.CompareAndSwap(false, true) {
			t.rec.record(start)
		}
		done(err, out...)
	})
}

type timedConsumer struct {
	inner stream.Consumer
	rec   *recorder
}

func (c *timedConsumer) Write(msg *message.Message, done stream.WriteDoneFunc) {
	start := c.rec.clock.Now()
	var recorded atomic.Bool
	c.inner.Write(msg, func(err error) {
		if recorded.CompareAndSwap(false, true) {
			c.rec.record(start)
		}
		done(err)
	})
}

type timedProducer struct {
	inner stream.Producer
	rec   *recorder
	ended atomic.Bool
}

// Read times every item pushed during this pull against the instant the pull
// was requested. Each pull gets its own push closure, so overlapping pulls
// never share a start instant. Items pushed after the end of stream are
// dropped by the runtime and never timed.
func (p *timedProducer) Read(push stream.PushFunc) {
	start := p.rec.clock.Now()
	p.inner.Read(func(msg *message.Message) {
		if msg == nil {
			p.ended.Store(true)
		} else if !p.ended.Load() {
			p.rec.record(start)
		}
		push(msg)
	})
}
