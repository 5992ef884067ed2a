// ABOUTME: Core data types for parley conversations, messages, and participants
// ABOUTME: Defines Role/Kind enums, the Content union, and the dashboard stats shape

package store

import (
	"encoding/json"
	"time"
)

// Role identifies a participant's position in a conversation exchange.
type Role string

const (
	RoleCustomer    Role = "customer"
	RoleAgent       Role = "agent"
	RoleSupervisor  Role = "supervisor"
	RoleRobot       Role = "robot"
	RoleSystemDebug Role = "system_debug"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleSupervisor, RoleRobot, RoleSystemDebug:
		return true
	}
	return false
}

// Kind classifies a message.
type Kind string

const (
	KindText   Kind = "text"   // Regular conversational message
	KindSystem Kind = "system" // System-generated notice
	KindRobot  Kind = "robot"  // Robot-authored content (hidden from customers)
)

// Kinds lists every message kind. Callers that build per-kind maps use this
// to guarantee a fixed key set.
var Kinds = []Kind{KindText, KindSystem, KindRobot}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindSystem, KindRobot:
		return true
	}
	return false
}

// Content is a message payload: plain text or a structured payload.
// Exactly one of Text/Data is expected to be set.
type Content struct {
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// TextContent builds a plain-text payload.
func TextContent(s string) Content {
	return Content{Text: s}
}

// StructuredContent builds a structured payload.
func StructuredContent(data map[string]any) Content {
	return Content{Data: data}
}

// IsStructured reports whether the payload carries structured data.
func (c Content) IsStructured() bool {
	return c.Data != nil
}

// String renders the payload for transcripts: the text itself, or compact
// JSON for structured payloads.
func (c Content) String() string {
	if c.Data == nil {
		return c.Text
	}
	b, err := json.Marshal(c.Data)
	if err != nil {
		return c.Text
	}
	return string(b)
}

// Message is a single entry in a conversation. Content, FromRole, and ToRole
// are immutable after creation; only UpdatedAt may change on sanctioned updates.
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	Content           Content   `json:"content"`
	AuthorID          *string   `json:"author_id,omitempty"` // nil for system messages
	FromRole          Role      `json:"from_role"`
	ToRole            Role      `json:"to_role"`
	Kind              Kind      `json:"kind"`
	ThreadID          *string   `json:"thread_id,omitempty"`
	OriginalMessageID *string   `json:"original_message_id,omitempty"` // for reshared/robot-forwarded content
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Author returns the author ID, or "" for system messages.
func (m *Message) Author() string {
	if m.AuthorID == nil {
		return ""
	}
	return *m.AuthorID
}

// MessageDraft is the input to Store.AddMessage. The store assigns ID and
// timestamps; the draft carries only the semantic fields.
type MessageDraft struct {
	ConversationID    string
	Content           Content
	AuthorID          *string
	FromRole          Role
	ToRole            Role
	Kind              Kind
	ThreadID          *string
	OriginalMessageID *string
}

// Conversation tracks participants and activity for one support exchange.
// ParticipantIDs and ParticipantRoles are parallel slices in join order.
// MessageCount counts every message ever appended and never decreases.
type Conversation struct {
	ID               string    `json:"id"`
	ParticipantIDs   []string  `json:"participant_ids"`
	ParticipantRoles []Role    `json:"participant_roles"`
	MessageCount     int       `json:"message_count"`
	LastMessageAt    time.Time `json:"last_message_at"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasRole reports whether any participant holds the given role.
func (c *Conversation) HasRole(role Role) bool {
	for _, r := range c.ParticipantRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Participant is one user's membership record in a conversation.
// A user holds at most one active record per conversation.
type Participant struct {
	UserID   string    `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// DashboardStats is the aggregate view pushed to the dashboard room.
// ActiveUsers counts distinct senders within a trailing window; it is a cheap
// approximation, not a presence signal.
type DashboardStats struct {
	ActiveConversations int `json:"active_conversations"`
	TotalMessages       int `json:"total_messages"`
	ActiveUsers         int `json:"active_users"`
	QueuedConversations int `json:"queued_conversations"`
}
