// ABOUTME: Deterministic content-hash dedup key for message drafts
// ABOUTME: Hashes the semantic fields so redelivered messages map to one key

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// dedupFields is the canonical encoding of the fields that make a message
// semantically identical. Field order is fixed by the struct; map values
// inside Content are marshaled with sorted keys by encoding/json, so the
// encoding is deterministic.
type dedupFields struct {
	ConversationID string  `json:"conversation_id"`
	AuthorID       string  `json:"author_id"`
	FromRole       Role    `json:"from_role"`
	ToRole         Role    `json:"to_role"`
	Kind           Kind    `json:"kind"`
	Content        Content `json:"content"`
}

// DedupKey derives the content-hash key for a draft. Two drafts with the same
// content, conversation, author, roles, and kind always produce the same key;
// the key is scoped to the conversation because the conversation ID is part
// of the hashed fields.
func DedupKey(draft MessageDraft) string {
	fields := dedupFields{
		ConversationID: draft.ConversationID,
		FromRole:       draft.FromRole,
		ToRole:         draft.ToRole,
		Kind:           draft.Kind,
		Content:        draft.Content,
	}
	if draft.AuthorID != nil {
		fields.AuthorID = *draft.AuthorID
	}

	// Content.Data only holds JSON-compatible values, so Marshal cannot fail
	// for drafts that passed validation.
	b, err := json.Marshal(fields)
	if err != nil {
		b = []byte(draft.ConversationID + "|" + fields.AuthorID + "|" + draft.Content.String())
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
