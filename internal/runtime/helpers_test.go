package runtime

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/stagestats/internal/runtime/stream"
)

const itemCount = 100

func randomDelay() time.Duration {
	return time.Duration(rand.IntN(2000)) * time.Microsecond
}

func newItems(n int) []*message.Message {
	items := make([]*message.Message, n)
	for i := range items {
		items[i] = message.NewMessage(watermill.NewUUID(), make([]byte, 10))
	}
	return items
}

type SyncRead struct {
	list []*message.Message
}

func newSyncRead(n int) *SyncRead {
	return &SyncRead{list: newItems(n)}
}

func (r *SyncRead) Read(push stream.PushFunc) {
	if len(r.list) == 0 {
		push(nil)
		return
	}
	v := r.list[0]
	r.list = r.list[1:]
	push(v)
}

type AsyncRead struct {
	list []*message.Message
}

func newAsyncRead(n int) *AsyncRead {
	return &AsyncRead{list: newItems(n)}
}

func (r *AsyncRead) Read(push stream.PushFunc) {
	var v *message.Message
	if len(r.list) > 0 {
		v = r.list[0]
		r.list = r.list[1:]
	}
	time.AfterFunc(randomDelay(), func() { push(v) })
}

type SyncTransform struct{}

func (SyncTransform) Transform(msg *message.Message, done stream.TransformDoneFunc) {
	done(nil, msg)
}

type AsyncTransform struct{}

func (AsyncTransform) Transform(msg *message.Message, done stream.TransformDoneFunc) {
	time.AfterFunc(randomDelay(), func() { done(nil, msg) })
}

type SyncWrite struct{}

func (SyncWrite) Write(_ *message.Message, done stream.WriteDoneFunc) {
	done(nil)
}

type AsyncWrite struct{}

func (AsyncWrite) Write(_ *message.Message, done stream.WriteDoneFunc) {
	time.AfterFunc(randomDelay(), func() { done(nil) })
}

// countingWrite records how many items reached it.
type countingWrite struct {
	mu    sync.Mutex
	count int
}

func (w *countingWrite) Write(_ *message.Message, done stream.WriteDoneFunc) {
	w.mu.Lock()
	w.count++
	w.mu.Unlock()
	done(nil)
}

func (w *countingWrite) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// repeatingTransform completes every item twice.
type repeatingTransform struct{}

func (repeatingTransform) Transform(msg *message.Message, done stream.TransformDoneFunc) {
	done(nil, msg)
	done(nil, msg)
}

// trailingRead emits n items and pushes one more item after the end of stream.
type trailingRead struct {
	list []*message.Message
}

func newTrailingRead(n int) *trailingRead {
	return &trailingRead{list: newItems(n)}
}

func (r *trailingRead) Read(push stream.PushFunc) {
	if len(r.list) == 0 {
		push(nil)
		push(newItems(1)[0])
		return
	}
	next := r.list[0]
	r.list = r.list[1:]
	push(next)
}

var errStageFailed = errors.New("stage failed")

// failingTransform fails the item at position failAt, passing its input
// through as output so callers can check nothing is dropped.
type failingTransform struct {
	seen   int
	failAt int
}

func (f *failingTransform) Transform(msg *message.Message, done stream.TransformDoneFunc) {
	f.seen++
	if f.seen == f.failAt {
		done(errStageFailed, msg)
		return
	}
	done(nil, msg)
}

type panickingTransform struct{}

func (panickingTransform) Transform(*message.Message, stream.TransformDoneFunc) {
	panic("transform exploded")
}

// heldRead keeps every push it is handed so tests can fire them later.
type heldRead struct {
	pushes []stream.PushFunc
}

func (h *heldRead) Read(push stream.PushFunc) {
	h.pushes = append(h.pushes, push)
}

// inertStage implements no stage capability.
type inertStage struct{}

// manualTime is a time source advanced explicitly by tests.
type manualTime struct {
	mu  sync.Mutex
	now time.Time
}

func newManualTime() *manualTime {
	return &manualTime{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *manualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// linearPipeline builds producer -> 3 transforms -> consumer.
func linearPipeline(async bool) (root, leaf *stream.Node) {
	if async {
		root = stream.New(newAsyncRead(itemCount))
		leaf = root.Pipe(stream.New(AsyncTransform{})).
			Pipe(stream.New(AsyncTransform{})).
			Pipe(stream.New(AsyncTransform{})).
			Pipe(stream.New(AsyncWrite{}))
		return root, leaf
	}
	root = stream.New(newSyncRead(itemCount))
	leaf = root.Pipe(stream.New(SyncTransform{})).
		Pipe(stream.New(SyncTransform{})).
		Pipe(stream.New(SyncTransform{})).
		Pipe(stream.New(SyncWrite{}))
	return root, leaf
}

// branchPipeline builds a producer feeding two transform -> consumer branches.
func branchPipeline(async bool) (root *stream.Node, leaves []*stream.Node) {
	if async {
		root = stream.New(newAsyncRead(itemCount))
		for range 2 {
			leaves = append(leaves, root.Pipe(stream.New(AsyncTransform{})).Pipe(stream.New(AsyncWrite{})))
		}
		return root, leaves
	}
	root = stream.New(newSyncRead(itemCount))
	for range 2 {
		leaves = append(leaves, root.Pipe(stream.New(SyncTransform{})).Pipe(stream.New(SyncWrite{})))
	}
	return root, leaves
}
