// ABOUTME: Store mutation events and the observer contract
// ABOUTME: Event names match the broadcast wire contract consumed by dashboards

package store

// EventType names a store mutation. The values are the wire-level event names
// pushed to conversation rooms and the dashboard room, so dashboards built
// against this contract interoperate regardless of transport.
type EventType string

const (
	EventNewMessage          EventType = "new_message"
	EventConversationCreated EventType = "conversation_created"
	EventConversationUpdated EventType = "conversation_updated"
	EventParticipantAdded    EventType = "conversation_participant_added"
	EventParticipantRemoved  EventType = "conversation_participant_removed"
)

// Event describes one store mutation. Exactly the fields relevant to the
// event type are populated.
type Event struct {
	Type           EventType     `json:"type"`
	ConversationID string        `json:"conversation_id"`
	Message        *Message      `json:"message,omitempty"`      // new_message
	Conversation   *Conversation `json:"conversation,omitempty"` // conversation_created / conversation_updated
	Participant    *Participant  `json:"participant,omitempty"`  // participant added / removed
}

// Observer receives store mutation events. Notification is synchronous and
// happens after the mutation commits; observers must not call back into the
// store from the callback.
type Observer interface {
	OnStoreEvent(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event Event)

// OnStoreEvent implements Observer.
func (f ObserverFunc) OnStoreEvent(event Event) {
	f(event)
}
