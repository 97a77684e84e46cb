package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/sync/errgroup"

	errspkg "github.com/drblury/stagestats/internal/runtime/errors"
)

const defaultBufferSize = 16

// Options tunes a pipeline run.
type Options struct {
	// BufferSize bounds the number of items queued in front of each node.
	// Zero uses the default of 16.
	BufferSize int
	Logger     watermill.LoggerAdapter
}

// StageError reports the failure of a single stage. The stage's own error is
// available through errors.Is / errors.As.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Run drives the pipeline rooted at root until every node has completed, the
// first stage fails or ctx is cancelled.
func Run(ctx context.Context, root *Node) error {
	return RunWithOptions(ctx, root, Options{})
}

// RunWithOptions is Run with explicit options.
func RunWithOptions(ctx context.Context, root *Node, opts Options) error {
	if root == nil {
		return errspkg.ErrRootRequired
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = watermill.NopLogger{}
	}

	plan, err := compile(root)
	if err != nil {
		return err
	}

	r := &runner{
		logger:  opts.Logger,
		pipes:   plan.pipes,
		pending: plan.inbound,
		inputs:  make(map[*Node]chan *message.Message, len(plan.nodes)),
	}
	for _, n := range plan.nodes {
		if plan.inbound[n] > 0 {
			r.inputs[n] = make(chan *message.Message, opts.BufferSize)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range plan.nodes {
		g.Go(func() error {
			return r.runNode(gctx, n)
		})
	}
	return g.Wait()
}

type plan struct {
	nodes   []*Node
	pipes   map[*Node][]*Node
	inbound map[*Node]int
}

// compile snapshots the graph reachable from root and validates its shape.
func compile(root *Node) (*plan, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	p := &plan{
		pipes:   make(map[*Node][]*Node),
		inbound: make(map[*Node]int),
	}
	state := make(map[*Node]int)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		switch state[n] {
		case visiting:
			return errspkg.ErrCycleDetected
		case done:
			return nil
		}
		state[n] = visiting
		p.nodes = append(p.nodes, n)
		pipes := n.Pipes()
		p.pipes[n] = pipes
		for _, child := range pipes {
			if child == nil {
				return fmt.Errorf("%s: %w", n.Name(), errspkg.ErrStageRequired)
			}
			p.inbound[child]++
			if err := visit(child); err != nil {
				return err
			}
		}
		state[n] = done
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}

	if root.Kind() != KindProducer {
		return nil, errspkg.ErrRootNotProducer
	}
	for _, n := range p.nodes {
		switch n.Kind() {
		case KindProducer:
			if p.inbound[n] > 0 {
				return nil, fmt.Errorf("%s: %w", n.Name(), errspkg.ErrProducerHasUpstream)
			}
		case KindConsumer:
			if len(p.pipes[n]) > 0 {
				return nil, fmt.Errorf("%s: %w", n.Name(), errspkg.ErrConsumerHasPipes)
			}
		}
	}
	return p, nil
}

type runner struct {
	logger watermill.LoggerAdapter
	pipes  map[*Node][]*Node
	inputs map[*Node]chan *message.Message

	mu      sync.Mutex
	pending map[*Node]int
}

func (r *runner) runNode(ctx context.Context, n *Node) error {
	fields := watermill.LogFields{"stage": n.Name(), "kind": n.Kind().String()}
	r.logger.Debug("Stage started", fields)

	var err error
	switch stage := n.Stage().(type) {
	case Transformer:
		err = r.runTransformer(ctx, n, stage)
	case Consumer:
		err = r.runConsumer(ctx, n, stage)
	case Producer:
		err = r.runProducer(ctx, n, stage)
	default:
		err = r.runPassThrough(ctx, n)
	}
	if err != nil {
		r.logger.Error("Stage stopped", err, fields)
		return err
	}
	r.logger.Debug("Stage completed", fields)
	return nil
}

func (r *runner) runProducer(ctx context.Context, n *Node, p Producer) error {
	q := newPullQueue()
	for {
		p.Read(q.push)
		items, ended, err := q.wait(ctx)
		if err != nil {
			return err
		}
		if err := r.deliver(ctx, n, items); err != nil {
			return err
		}
		if ended {
			n.emit(EventEnd)
			r.closeDownstream(n)
			return nil
		}
	}
}

type transformResult struct {
	err error
	out []*message.Message
}

func (r *runner) runTransformer(ctx context.Context, n *Node, t Transformer) error {
	for {
		msg, ok, err := r.next(ctx, n)
		if err != nil {
			return err
		}
		if !ok {
			n.emit(EventFinish)
			n.emit(EventEnd)
			r.closeDownstream(n)
			return nil
		}

		res := make(chan transformResult, 1)
		var once sync.Once
		t.Transform(msg, func(err error, out ...*message.Message) {
			once.Do(func() { res <- transformResult{err: err, out: out} })
		})

		select {
		case result := <-res:
			if result.err != nil {
				return &StageError{Stage: n.Name(), Err: result.err}
			}
			if err := r.deliver(ctx, n, result.out); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *runner) runConsumer(ctx context.Context, n *Node, c Consumer) error {
	for {
		msg, ok, err := r.next(ctx, n)
		if err != nil {
			return err
		}
		if !ok {
			n.emit(EventFinish)
			return nil
		}

		res := make(chan error, 1)
		var once sync.Once
		c.Write(msg, func(err error) {
			once.Do(func() { res <- err })
		})

		select {
		case err := <-res:
			if err != nil {
				return &StageError{Stage: n.Name(), Err: err}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *runner) runPassThrough(ctx context.Context, n *Node) error {
	for {
		msg, ok, err := r.next(ctx, n)
		if err != nil {
			return err
		}
		if !ok {
			n.emit(EventFinish)
			n.emit(EventEnd)
			r.closeDownstream(n)
			return nil
		}
		if err := r.deliver(ctx, n, []*message.Message{msg}); err != nil {
			return err
		}
	}
}

// next receives the following input item. ok is false once every upstream
// has ended.
func (r *runner) next(ctx context.Context, n *Node) (*message.Message, bool, error) {
	in := r.inputs[n]
	if in == nil {
		return nil, false, nil
	}
	select {
	case msg, ok := <-in:
		return msg, ok, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// deliver fans items out to every downstream node. The first pipe receives
// the original message, the others a copy.
func (r *runner) deliver(ctx context.Context, n *Node, items []*message.Message) error {
	pipes := r.pipes[n]
	for _, msg := range items {
		if msg == nil {
			continue
		}
		for i, child := range pipes {
			out := msg
			if i > 0 {
				out = msg.Copy()
			}
			select {
			case r.inputs[child] <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (r *runner) closeDownstream(n *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, child := range r.pipes[n] {
		r.pending[child]--
		if r.pending[child] == 0 {
			close(r.inputs[child])
		}
	}
}

// pullQueue collects items pushed by a producer between reads.
type pullQueue struct {
	mu     sync.Mutex
	items  []*message.Message
	ended  bool
	notify chan struct{}
}

func newPullQueue() *pullQueue {
	return &pullQueue{notify: make(chan struct{}, 1)}
}

func (q *pullQueue) push(msg *message.Message) {
	q.mu.Lock()
	if q.ended {
		q.mu.Unlock()
		return
	}
	if msg == nil {
		q.ended = true
	} else {
		q.items = append(q.items, msg)
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *pullQueue) wait(ctx context.Context) ([]*message.Message, bool, error) {
	for {
		q.mu.Lock()
		items, ended := q.items, q.ended
		q.items = nil
		q.mu.Unlock()

		if len(items) > 0 || ended {
			return items, ended, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}
