package stages

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/stagestats/internal/runtime/errors"
	"github.com/drblury/stagestats/internal/runtime/stream"
)

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

func TestNewSubscriberProducerValidates(t *testing.T) {
	_, err := NewSubscriberProducer(t.Context(), nil, "in", 0)
	assert.ErrorIs(t, err, errspkg.ErrSubscriberRequired)

	_, err = NewSubscriberProducer(t.Context(), newPubSub(t), "", 0)
	assert.ErrorIs(t, err, errspkg.ErrTopicRequired)
}

func TestNewPublisherConsumerValidates(t *testing.T) {
	_, err := NewPublisherConsumer(nil, "out")
	assert.ErrorIs(t, err, errspkg.ErrPublisherRequired)

	_, err = NewPublisherConsumer(newPubSub(t), "")
	assert.ErrorIs(t, err, errspkg.ErrTopicRequired)
}

func TestSubscriberToPublisherPipeline(t *testing.T) {
	const total = 20
	ps := newPubSub(t)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	source, err := NewSubscriberProducer(ctx, ps, "in", total)
	require.NoError(t, err)
	assert.Equal(t, "in", source.Topic())
	sink, err := NewPublisherConsumer(ps, "out")
	require.NoError(t, err)
	assert.Equal(t, "out", sink.Topic())

	out, err := ps.Subscribe(ctx, "out")
	require.NoError(t, err)

	root := stream.New(source)
	root.Pipe(stream.New(sink))

	for i := range total {
		require.NoError(t, ps.Publish("in", message.NewMessage(watermill.NewUUID(), []byte(strconv.Itoa(i)))))
	}

	runErr := make(chan error, 1)
	go func() { runErr <- stream.Run(ctx, root) }()

	var received []int
	for len(received) < total {
		select {
		case msg := <-out:
			n, err := strconv.Atoi(string(msg.Payload))
			require.NoError(t, err)
			received = append(received, n)
			msg.Ack()
		case <-ctx.Done():
			t.Fatalf("timed out after %d messages", len(received))
		}
	}
	require.NoError(t, <-runErr)

	sort.Ints(received)
	for i, n := range received {
		assert.Equal(t, i, n)
	}
}

func TestSubscriberProducerEndsOnCancel(t *testing.T) {
	ps := newPubSub(t)
	ctx, cancel := context.WithCancel(t.Context())

	source, err := NewSubscriberProducer(ctx, ps, "idle", 0)
	require.NoError(t, err)

	pushed := make(chan *message.Message, 1)
	source.Read(func(msg *message.Message) { pushed <- msg })
	cancel()

	select {
	case msg := <-pushed:
		assert.Nil(t, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not end after cancellation")
	}
}

func TestSubscriberProducerLimitEndsWithoutWaiting(t *testing.T) {
	source, err := NewSubscriberProducer(t.Context(), newPubSub(t), "in", 1)
	require.NoError(t, err)
	source.emitted = 1

	var ended bool
	source.Read(func(msg *message.Message) { ended = msg == nil })
	assert.True(t, ended)
}

type failingPublisher struct{ err error }

func (p failingPublisher) Publish(string, ...*message.Message) error { return p.err }
func (p failingPublisher) Close() error                              { return nil }

func TestPublisherConsumerWrapsError(t *testing.T) {
	boom := errors.New("broker down")
	sink, err := NewPublisherConsumer(failingPublisher{err: boom}, "out")
	require.NoError(t, err)

	var gotErr error
	sink.Write(newMessage("x"), func(err error) { gotErr = err })
	assert.ErrorIs(t, gotErr, boom)
	assert.Contains(t, gotErr.Error(), "publish to out")
}
