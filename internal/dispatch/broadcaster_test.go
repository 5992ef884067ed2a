// ABOUTME: Tests for the room-keyed event broadcaster.
// ABOUTME: Verifies room routing, dashboard fan-in, slow-subscriber drops, and cleanup.

package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func messageEvent(conversationID string) *store.Event {
	return &store.Event{
		Type:           store.EventNewMessage,
		ConversationID: conversationID,
		Message:        &store.Message{ID: "m1", ConversationID: conversationID},
	}
}

func TestBroadcaster_RoomRouting(t *testing.T) {
	b := NewBroadcaster(testLogger())
	defer b.Close()
	ctx := context.Background()

	convCh, _ := b.Subscribe(ctx, ConversationRoom("c1"))
	otherCh, _ := b.Subscribe(ctx, ConversationRoom("c2"))
	dashCh, _ := b.Subscribe(ctx, DashboardRoom)

	b.Publish(messageEvent("c1"))

	select {
	case ev := <-convCh:
		assert.Equal(t, store.EventNewMessage, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("conversation room did not receive event")
	}

	select {
	case ev := <-dashCh:
		assert.Equal(t, "c1", ev.ConversationID, "dashboard sees every conversation")
	case <-time.After(time.Second):
		t.Fatal("dashboard room did not receive event")
	}

	select {
	case <-otherCh:
		t.Fatal("unrelated conversation room received event")
	default:
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(testLogger())
	defer b.Close()

	ch, subID := b.Subscribe(context.Background(), DashboardRoom)
	b.Unsubscribe(DashboardRoom, subID)

	_, open := <-ch
	assert.False(t, open, "unsubscribed channel is closed")

	// Idempotent
	b.Unsubscribe(DashboardRoom, subID)
}

func TestBroadcaster_ContextCancelCleansUp(t *testing.T) {
	b := NewBroadcaster(testLogger())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, DashboardRoom)
	cancel()

	// Channel closes once the cleanup goroutine runs.
	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(testLogger())
	defer b.Close()

	ch, _ := b.Subscribe(context.Background(), DashboardRoom)

	// Fill the buffer and then some; publishes must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(messageEvent("c1"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, ch, subscriberBufferSize, "overflow events are dropped, not queued")
}

func TestBroadcaster_PublishDuringUnsubscribe(t *testing.T) {
	b := NewBroadcaster(testLogger())
	defer b.Close()

	// Publishes racing subscriber teardown must never send on a closed
	// channel. Churn subscriptions while publishing from another goroutine.
	stop := make(chan struct{})
	published := make(chan struct{})
	go func() {
		defer close(published)
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(messageEvent("c1"))
			}
		}
	}()

	for i := 0; i < 500; i++ {
		ch, subID := b.Subscribe(context.Background(), ConversationRoom("c1"))
		// Leave some events in flight before tearing down.
		select {
		case <-ch:
		default:
		}
		b.Unsubscribe(ConversationRoom("c1"), subID)
	}

	close(stop)
	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not finish")
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(testLogger())

	ch1, _ := b.Subscribe(context.Background(), DashboardRoom)
	ch2, _ := b.Subscribe(context.Background(), ConversationRoom("c1"))
	b.Close()

	_, open := <-ch1
	assert.False(t, open)
	_, open = <-ch2
	assert.False(t, open)

	// Publishing after close is a no-op.
	b.Publish(messageEvent("c1"))
}
