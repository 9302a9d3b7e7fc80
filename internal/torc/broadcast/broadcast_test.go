package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_DeliversToSubscriber(t *testing.T) {
	b := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := b.Subscribe(ctx)

	b.Publish(1, "job.status_changed", SeverityInfo, map[string]any{"job_id": int64(7)})

	select {
	case evt := <-sub.Events:
		assert.Equal(t, int64(1), evt.WorkflowID)
		assert.Equal(t, "job.status_changed", evt.EventType)
		assert.Equal(t, SeverityInfo, evt.Severity)
		assert.Equal(t, uint64(1), evt.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublish_NeverBlocksOnFullSubscriber(t *testing.T) {
	b := New(1)
	sub := b.Subscribe(context.Background())

	// Fill the one-slot buffer, then publish again: Publish must return
	// immediately rather than blocking on the full channel.
	done := make(chan struct{})
	go func() {
		b.Publish(1, "e1", SeverityInfo, nil)
		b.Publish(1, "e2", SeverityInfo, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}

	select {
	case <-sub.Lagged:
	default:
		t.Fatal("expected Lagged to be closed after a dropped event")
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		return b.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestSubscriberCount(t *testing.T) {
	b := New(4)
	assert.Equal(t, 0, b.SubscriberCount())
	sub1 := b.Subscribe(context.Background())
	sub2 := b.Subscribe(context.Background())
	assert.Equal(t, 2, b.SubscriberCount())
	sub1.Unsubscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	sub2.Unsubscribe()
}
