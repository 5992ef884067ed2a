// ABOUTME: Store interface and errors for parley conversation persistence
// ABOUTME: All mutation flows through this narrow interface (single-writer discipline)

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidDraft is returned when a message draft fails validation.
var ErrInvalidDraft = errors.New("invalid message draft")

// Store defines the interface for conversation and message persistence.
// The in-memory MemoryStore is the reference implementation; a durable
// backend can be substituted without touching protocol logic.
type Store interface {
	// AddMessage appends a message. Appending an identical draft (same
	// content, conversation, author, roles, kind) is idempotent: the
	// previously accepted message is returned unchanged and the
	// conversation's counters do not move.
	AddMessage(ctx context.Context, draft MessageDraft) (*Message, error)
	GetMessage(ctx context.Context, id string) (*Message, error)

	// GetMessages returns a conversation's messages in ascending creation order.
	GetMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// GetOrCreateConversation returns an existing conversation verbatim, or
	// creates one with the creator as sole participant.
	GetOrCreateConversation(ctx context.Context, id, creatorID string, role Role) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// SetConversationActive toggles visibility. Conversations are never
	// hard-deleted.
	SetConversationActive(ctx context.Context, id string, active bool) error

	// JoinConversation is idempotent per user: rejoin returns the existing
	// participant record. Fails with ErrNotFound on unknown conversations.
	JoinConversation(ctx context.Context, conversationID, userID string, role Role) (*Participant, error)

	// LeaveConversation returns false (not an error) when the user was not
	// a participant.
	LeaveConversation(ctx context.Context, conversationID, userID string) (bool, error)
	Participants(ctx context.Context, conversationID string) ([]*Participant, error)

	DashboardStats(ctx context.Context) (*DashboardStats, error)

	// Subscribe registers an observer for store mutation events.
	Subscribe(obs Observer)

	// Close releases any resources held by the store.
	Close() error
}
