// ABOUTME: In-memory fan-out broadcaster for store events, keyed by room
// ABOUTME: Conversation rooms carry one conversation's events; the dashboard room carries all

package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// DashboardRoom receives every event regardless of conversation.
	DashboardRoom = "dashboard"
)

// ConversationRoom returns the room name for one conversation's events.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// Broadcaster provides in-memory pub/sub for store events. Subscribers
// register for a room and receive events as they are published. This enables
// cross-client awareness without polling.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.Event // room -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *store.Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events in the given room. Returns a
// channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, room string) (<-chan *store.Event, string) {
	subID := uuid.New().String()
	ch := make(chan *store.Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[room]; !ok {
		b.subscribers[room] = make(map[string]chan *store.Event)
	}
	b.subscribers[room][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "room", room, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(room, subID)
	}()

	return ch, subID
}

// Publish routes a store event to its conversation room and to the dashboard
// room. Events without a conversation ID go to the dashboard only.
func (b *Broadcaster) Publish(event *store.Event) {
	if event.ConversationID != "" {
		b.publishRoom(ConversationRoom(event.ConversationID), event)
	}
	b.publishRoom(DashboardRoom, event)
}

// publishRoom sends an event to all subscribers of one room.
// Non-blocking: events are dropped for subscribers whose channels are full.
// Sends happen under the read lock so an Unsubscribe (which closes the
// channel under the write lock) can never interleave with a send.
func (b *Broadcaster) publishRoom(room string, event *store.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[room] {
		select {
		case ch <- event:
			// Sent
		default:
			// Subscriber channel full, drop event for this subscriber
			b.logger.Debug("dropped event for slow subscriber",
				"room", room,
				"event_type", string(event.Type))
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(room, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[room]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty room entries
	if len(subs) == 0 {
		delete(b.subscribers, room)
	}

	b.logger.Debug("subscriber removed", "room", room, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for room, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, room)
	}

	b.logger.Debug("broadcaster closed")
}
