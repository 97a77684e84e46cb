// Package stream is the host runtime for item pipelines: stage capabilities,
// graph nodes with ordered pipe connections, completion events and the Run
// driver that moves watermill messages between nodes.
package stream

import (
	"reflect"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Stage is any value implementing Producer, Transformer or Consumer. Values
// implementing none of them are run as inert pass-throughs.
type Stage any

// PushFunc hands an item to the runtime. A nil message ends the stream.
type PushFunc func(msg *message.Message)

// Producer emits items on demand. Read is called again only after the previous
// call pushed at least once; pushing may happen inline or later from another
// goroutine.
type Producer interface {
	Read(push PushFunc)
}

// TransformDoneFunc completes one Transform call with zero or more outputs.
type TransformDoneFunc func(err error, out ...*message.Message)

// Transformer derives outputs from each input item.
type Transformer interface {
	Transform(msg *message.Message, done TransformDoneFunc)
}

// WriteDoneFunc completes one Write call.
type WriteDoneFunc func(err error)

// Consumer accepts items and emits none.
type Consumer interface {
	Write(msg *message.Message, done WriteDoneFunc)
}

// Kind is the capability a stage is driven through.
type Kind int

const (
	KindUnknown Kind = iota
	KindProducer
	KindTransformer
	KindConsumer
)

func (k Kind) String() string {
	switch k {
	case KindProducer:
		return "producer"
	case KindTransformer:
		return "transformer"
	case KindConsumer:
		return "consumer"
	default:
		return "unknown"
	}
}

// KindOf resolves the capability of stage. Transformer wins over Consumer,
// which wins over Producer.
func KindOf(stage Stage) Kind {
	switch stage.(type) {
	case Transformer:
		return KindTransformer
	case Consumer:
		return KindConsumer
	case Producer:
		return KindProducer
	default:
		return KindUnknown
	}
}

// TypeName returns the declared type name of stage with pointers stripped.
func TypeName(stage Stage) string {
	t := reflect.TypeOf(stage)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

// Event names a node lifecycle signal.
type Event string

const (
	// EventEnd fires once a producer or transformer has emitted its last item.
	EventEnd Event = "end"
	// EventFinish fires once a consumer or transformer has processed its last input.
	EventFinish Event = "finish"
)

type listener struct {
	fn   func()
	once bool
}

// Node places one stage in a pipeline graph. Configure nodes (Pipe, Decorate,
// listeners) before handing the root to Run.
type Node struct {
	mu        sync.Mutex
	name      string
	stage     Stage
	pipes     []*Node
	listeners map[Event][]listener
}

// New wraps stage in a graph node.
func New(stage Stage) *Node {
	return &Node{
		name:      TypeName(stage),
		stage:     stage,
		listeners: make(map[Event][]listener),
	}
}

// Pipe connects dst downstream of n and returns dst so calls can be chained.
func (n *Node) Pipe(dst *Node) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pipes = append(n.pipes, dst)
	return dst
}

// Pipes returns the downstream connections in the order they were made.
func (n *Node) Pipes() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	clone := make([]*Node, len(n.pipes))
	copy(clone, n.pipes)
	return clone
}

// Stage returns the current, possibly decorated, stage.
func (n *Node) Stage() Stage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stage
}

// Name is the type name of the stage the node was created with. Decorating
// the node does not change it.
func (n *Node) Name() string {
	return n.name
}

// Kind reports the capability of the current stage.
func (n *Node) Kind() Kind {
	return KindOf(n.Stage())
}

// Decorate replaces the stage with wrap(stage). A nil result is ignored.
func (n *Node) Decorate(wrap func(Stage) Stage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if wrapped := wrap(n.stage); wrapped != nil {
		n.stage = wrapped
	}
}

// On registers fn for ev.
func (n *Node) On(ev Event, fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[ev] = append(n.listeners[ev], listener{fn: fn})
}

// PrependOnce registers fn to run once, ahead of every listener already
// registered for ev.
func (n *Node) PrependOnce(ev Event, fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[ev] = append([]listener{{fn: fn, once: true}}, n.listeners[ev]...)
}

func (n *Node) emit(ev Event) {
	n.mu.Lock()
	current := n.listeners[ev]
	kept := current[:0:0]
	for _, l := range current {
		if !l.once {
			kept = append(kept, l)
		}
	}
	n.listeners[ev] = kept
	n.mu.Unlock()

	for _, l := range current {
		l.fn()
	}
}
