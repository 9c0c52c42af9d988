package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/inventory/internal/core/pubsub"
)

func receive(t *testing.T, ch <-chan pubsub.Message) pubsub.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestEngine_Lifecycle(t *testing.T) {
	engine := New()
	assert.False(t, engine.IsClosed())
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())
	assert.True(t, engine.IsClosed())

	_, err := engine.NewPublisher(pubsub.PublisherOptions{})
	assert.ErrorIs(t, err, ErrEngineClosed)
	_, err = engine.NewConsumer(pubsub.ConsumerOptions{})
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngine_PublishSubscribe(t *testing.T) {
	engine := New()
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cons, err := engine.NewConsumer(pubsub.ConsumerOptions{StreamName: "INVENTORY"})
	require.NoError(t, err)
	ch, err := cons.Subscribe(ctx)
	require.NoError(t, err)

	var published []string
	pub, err := engine.NewPublisher(pubsub.PublisherOptions{
		StreamName: "INVENTORY",
		OnPublish: func(subject string, err error, _ time.Duration) {
			published = append(published, subject)
		},
	})
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, "MO:created", []byte(`[{"id":1}]`)))
	msg := receive(t, ch)
	assert.Equal(t, "MO:created", msg.Key())
	assert.Equal(t, "INVENTORY.MO.created", msg.Subject())
	assert.Equal(t, `[{"id":1}]`, string(msg.Data()))
	require.NoError(t, msg.Ack())
	assert.Equal(t, []string{"INVENTORY.MO.created"}, published)

	assert.Error(t, pub.Publish(ctx, "invalid", nil))
	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish(ctx, "MO:created", nil), ErrEngineClosed)
}

func TestEngine_FilterByKind(t *testing.T) {
	engine := New()
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cons, err := engine.NewConsumer(pubsub.ConsumerOptions{StreamName: "INV", FilterSubject: "INV.TPRM.*"})
	require.NoError(t, err)
	ch, err := cons.Subscribe(ctx)
	require.NoError(t, err)

	pub, err := engine.NewPublisher(pubsub.PublisherOptions{StreamName: "INV"})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, "MO:created", nil))
	require.NoError(t, pub.Publish(ctx, "TPRM:deleted", nil))

	msg := receive(t, ch)
	assert.Equal(t, "TPRM:deleted", msg.Key())
	select {
	case extra := <-ch:
		t.Fatalf("unexpected message %s", extra.Key())
	default:
	}
}

func TestEngine_DuplicateFilter(t *testing.T) {
	engine := New()
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, _ := engine.NewConsumer(pubsub.ConsumerOptions{StreamName: "S"})
	_, err := first.Subscribe(ctx)
	require.NoError(t, err)

	second, _ := engine.NewConsumer(pubsub.ConsumerOptions{StreamName: "S"})
	_, err = second.Subscribe(ctx)
	assert.ErrorIs(t, err, ErrPatternSubscribed)
}

func TestMessage_NakRedelivers(t *testing.T) {
	engine := New()
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cons, _ := engine.NewConsumer(pubsub.ConsumerOptions{StreamName: "S", MaxDeliver: 2})
	ch, err := cons.Subscribe(ctx)
	require.NoError(t, err)
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{StreamName: "S"})
	require.NoError(t, pub.Publish(ctx, "PRM:updated", nil))

	msg := receive(t, ch)
	md, _ := msg.Metadata()
	assert.Equal(t, uint64(1), md.NumDelivered)
	require.NoError(t, msg.Nak())

	again := receive(t, ch)
	md, _ = again.Metadata()
	assert.Equal(t, uint64(2), md.NumDelivered)

	// Delivery limit reached.
	require.NoError(t, again.Nak())
	select {
	case extra := <-ch:
		t.Fatalf("unexpected redelivery of %s", extra.Key())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMessage_NakWithDelay(t *testing.T) {
	engine := New()
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cons, _ := engine.NewConsumer(pubsub.ConsumerOptions{StreamName: "S"})
	ch, err := cons.Subscribe(ctx)
	require.NoError(t, err)
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{StreamName: "S"})
	require.NoError(t, pub.Publish(ctx, "TMO:updated", nil))

	msg := receive(t, ch)
	require.NoError(t, msg.NakWithDelay(10*time.Millisecond))
	again := receive(t, ch)
	assert.Equal(t, "TMO:updated", again.Key())
	require.NoError(t, again.Term())
	require.NoError(t, again.Nak())
}

func TestConsumer_ClosesOnCancel(t *testing.T) {
	engine := New()
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cons, _ := engine.NewConsumer(pubsub.ConsumerOptions{})
	ch, err := cons.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestEngine_CloseEndsSubscriptions(t *testing.T) {
	engine := New()
	cons, _ := engine.NewConsumer(pubsub.ConsumerOptions{StreamName: "S"})
	ch, err := cons.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, engine.Close())
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestMatchSubject(t *testing.T) {
	assert.True(t, matchSubject("INV.MO.created", "INV.MO.created"))
	assert.True(t, matchSubject("INV.*.created", "INV.PRM.created"))
	assert.True(t, matchSubject("INV.>", "INV.MO.deleted"))
	assert.True(t, matchSubject(">", "INV"))
	assert.False(t, matchSubject("INV.>", "INV"))
	assert.False(t, matchSubject("INV.*", "INV.MO.created"))
	assert.False(t, matchSubject("INV.MO.created", "INV.MO"))
	assert.False(t, matchSubject("", "INV"))
	assert.False(t, matchSubject("INV", ""))
}
