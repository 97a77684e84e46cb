// Package stages provides ready-made pipeline stages: fixed sources, function
// adapters and bridges to watermill publishers and subscribers.
package stages

import (
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/stagestats/internal/runtime/stream"
)

// SliceProducer emits a fixed list of messages, one per read.
type SliceProducer struct {
	mu    sync.Mutex
	items []*message.Message
}

// NewSliceProducer returns a producer emitting msgs in order.
func NewSliceProducer(msgs ...*message.Message) *SliceProducer {
	items := make([]*message.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg != nil {
			items = append(items, msg)
		}
	}
	return &SliceProducer{items: items}
}

func (p *SliceProducer) Read(push stream.PushFunc) {
	p.mu.Lock()
	if len(p.items) == 0 {
		p.mu.Unlock()
		push(nil)
		return
	}
	next := p.items[0]
	p.items = p.items[1:]
	p.mu.Unlock()

	push(next)
}

// Remaining reports how many messages have not been emitted yet.
func (p *SliceProducer) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// TransformFunc adapts a watermill-style handler function into a Transformer.
// Returning no messages drops the input.
type TransformFunc func(msg *message.Message) ([]*message.Message, error)

func (f TransformFunc) Transform(msg *message.Message, done stream.TransformDoneFunc) {
	out, err := f(msg)
	done(err, out...)
}

// FromHandler wraps an existing watermill handler as a Transformer.
func FromHandler(h message.HandlerFunc) TransformFunc {
	return TransformFunc(h)
}

// ConsumeFunc adapts a function into a Consumer.
type ConsumeFunc func(msg *message.Message) error

func (f ConsumeFunc) Write(msg *message.Message, done stream.WriteDoneFunc) {
	done(f(msg))
}

// FromNoPublishHandler wraps a watermill no-publish handler as a Consumer.
func FromNoPublishHandler(h message.NoPublishHandlerFunc) ConsumeFunc {
	return ConsumeFunc(h)
}
