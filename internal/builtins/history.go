// ABOUTME: History pack lets robots read a conversation's recent messages.
// ABOUTME: Reads go through the store's visibility-safe robot view, never raw messages.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/parley/internal/catalog"
	"github.com/2389/parley/internal/history"
	"github.com/2389/parley/internal/store"
)

const defaultHistoryLimit = 20

// HistoryPack creates the catalog of conversation history tools.
func HistoryPack(st store.Store) *catalog.Registry {
	h := &historyHandlers{store: st}
	r := catalog.NewRegistry()
	r.MustRegister(catalog.Definition{
		Name:            "conversation_history",
		Description:     "Fetch the most recent messages of a conversation",
		InputSchemaJSON: `{"type":"object","properties":{"conversation_id":{"type":"string"},"limit":{"type":"integer"}},"required":["conversation_id"]}`,
	}, h.Recent)
	return r
}

type historyHandlers struct {
	store store.Store
}

type historyInput struct {
	ConversationID string `json:"conversation_id"`
	Limit          int    `json:"limit"`
}

type historyEntry struct {
	Author    string     `json:"author,omitempty"`
	FromRole  store.Role `json:"from_role"`
	Kind      store.Kind `json:"kind"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
}

func (h *historyHandlers) Recent(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in historyInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.ConversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}
	if in.Limit <= 0 {
		in.Limit = defaultHistoryLimit
	}

	ix, err := history.ForConversation(ctx, h.store, in.ConversationID)
	if err != nil {
		return nil, err
	}

	// Robot context only: customer and system-debug chatter stays out
	msgs := ix.ForRobotProcessing()
	if len(msgs) > in.Limit {
		msgs = msgs[len(msgs)-in.Limit:]
	}

	entries := make([]historyEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, historyEntry{
			Author:    m.Author(),
			FromRole:  m.FromRole,
			Kind:      m.Kind,
			Text:      m.Content.String(),
			CreatedAt: m.CreatedAt,
		})
	}

	return json.Marshal(entries)
}
