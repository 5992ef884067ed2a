// ABOUTME: Conversation snapshots: point-in-time captures for offline inspection.
// ABOUTME: The sink is an optional collaborator; its absence never affects correctness.

package snapshot

import (
	"context"
	"time"

	"github.com/2389/parley/internal/store"
)

// ConversationSnapshot is a point-in-time capture of one conversation:
// every message, every participant, and a recomputed dedup-key report so
// stored keys can be audited offline.
type ConversationSnapshot struct {
	TakenAt      time.Time            `json:"taken_at"`
	Conversation *store.Conversation  `json:"conversation"`
	Messages     []*store.Message     `json:"messages"`
	Participants []*store.Participant `json:"participants"`
	DedupReport  []DedupEntry         `json:"dedup_report"`
}

// DedupEntry pairs a message with its recomputed content-hash key.
type DedupEntry struct {
	MessageID string `json:"message_id"`
	Key       string `json:"key"`
}

// Sink receives conversation snapshots. Implementations must tolerate
// concurrent calls.
type Sink interface {
	RecordSnapshot(ctx context.Context, snap *ConversationSnapshot) error
	Close() error
}

// Capture builds a snapshot of one conversation from the store.
func Capture(ctx context.Context, st store.Store, conversationID string) (*ConversationSnapshot, error) {
	conv, err := st.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := st.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	participants, err := st.Participants(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	report := make([]DedupEntry, 0, len(msgs))
	for _, m := range msgs {
		report = append(report, DedupEntry{
			MessageID: m.ID,
			Key: store.DedupKey(store.MessageDraft{
				ConversationID: m.ConversationID,
				AuthorID:       m.AuthorID,
				FromRole:       m.FromRole,
				ToRole:         m.ToRole,
				Kind:           m.Kind,
				Content:        m.Content,
			}),
		})
	}

	return &ConversationSnapshot{
		TakenAt:      time.Now().UTC(),
		Conversation: conv,
		Messages:     msgs,
		Participants: participants,
		DedupReport:  report,
	}, nil
}
