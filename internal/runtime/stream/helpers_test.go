package stream

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

func newItem(i int) *message.Message {
	return message.NewMessage(fmt.Sprintf("item-%d", i), []byte(fmt.Sprintf("payload-%d", i)))
}

type listSource struct {
	items []*message.Message
	async bool
	reads int
}

func newListSource(n int, async bool) *listSource {
	items := make([]*message.Message, n)
	for i := range items {
		items[i] = newItem(i)
	}
	return &listSource{items: items, async: async}
}

func (s *listSource) Read(push PushFunc) {
	s.reads++
	var next *message.Message
	if len(s.items) > 0 {
		next, s.items = s.items[0], s.items[1:]
	}
	if !s.async {
		push(next)
		return
	}
	time.AfterFunc(randomDelay(), func() { push(next) })
}

type upperTransform struct {
	async bool
}

func (u *upperTransform) Transform(msg *message.Message, done TransformDoneFunc) {
	out := message.NewMessage(msg.UUID, append([]byte("T:"), msg.Payload...))
	if !u.async {
		done(nil, out)
		return
	}
	time.AfterFunc(randomDelay(), func() { done(nil, out) })
}

type splitTransform struct{}

func (splitTransform) Transform(msg *message.Message, done TransformDoneFunc) {
	done(nil, msg, msg.Copy())
}

type dropTransform struct{}

func (dropTransform) Transform(_ *message.Message, done TransformDoneFunc) {
	done(nil)
}

type failingTransform struct {
	err   error
	after int
	seen  int
}

func (f *failingTransform) Transform(msg *message.Message, done TransformDoneFunc) {
	f.seen++
	if f.seen > f.after {
		done(f.err)
		return
	}
	done(nil, msg)
}

type collectSink struct {
	mu    sync.Mutex
	async bool
	got   []string
}

func (c *collectSink) Write(msg *message.Message, done WriteDoneFunc) {
	record := func() {
		c.mu.Lock()
		c.got = append(c.got, string(msg.Payload))
		c.mu.Unlock()
		done(nil)
	}
	if !c.async {
		record()
		return
	}
	time.AfterFunc(randomDelay(), record)
}

func (c *collectSink) payloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := make([]string, len(c.got))
	copy(clone, c.got)
	return clone
}

type inert struct{}

type stalledSource struct{}

func (stalledSource) Read(PushFunc) {}

func randomDelay() time.Duration {
	return time.Duration(rand.IntN(3)) * time.Millisecond
}
