package stages

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/stagestats/internal/runtime/errors"
	"github.com/drblury/stagestats/internal/runtime/stream"
)

// SubscriberProducer emits the messages of a watermill subscription. Each
// message is acked once it has been handed to the pipeline.
type SubscriberProducer struct {
	ctx      context.Context
	topic    string
	messages <-chan *message.Message
	limit    int
	emitted  int
}

// NewSubscriberProducer subscribes to topic right away so that no message
// published after construction is missed. A positive limit ends the stream
// after that many messages; otherwise it ends when the subscription is closed
// or ctx is done.
func NewSubscriberProducer(ctx context.Context, sub message.Subscriber, topic string, limit int) (*SubscriberProducer, error) {
	if sub == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}

	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	return &SubscriberProducer{
		ctx:      ctx,
		topic:    topic,
		messages: messages,
		limit:    limit,
	}, nil
}

// Read waits for the next message in the background and pushes a copy of it,
// since the subscriber may cancel the delivered message's context on ack.
func (p *SubscriberProducer) Read(push stream.PushFunc) {
	if p.limit > 0 && p.emitted >= p.limit {
		push(nil)
		return
	}
	p.emitted++

	go func() {
		select {
		case msg, ok := <-p.messages:
			if !ok {
				push(nil)
				return
			}
			push(msg.Copy())
			msg.Ack()
		case <-p.ctx.Done():
			push(nil)
		}
	}()
}

// Topic returns the subscribed topic.
func (p *SubscriberProducer) Topic() string {
	return p.topic
}

// PublisherConsumer publishes every item to a watermill topic.
type PublisherConsumer struct {
	publisher message.Publisher
	topic     string
}

// NewPublisherConsumer returns a consumer publishing to topic.
func NewPublisherConsumer(publisher message.Publisher, topic string) (*PublisherConsumer, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	return &PublisherConsumer{publisher: publisher, topic: topic}, nil
}

func (c *PublisherConsumer) Write(msg *message.Message, done stream.WriteDoneFunc) {
	if err := c.publisher.Publish(c.topic, msg); err != nil {
		done(fmt.Errorf("publish to %s: %w", c.topic, err))
		return
	}
	done(nil)
}

// Topic returns the target topic.
func (c *PublisherConsumer) Topic() string {
	return c.topic
}
