// ABOUTME: Tests for snapshot capture, the SQLite sink, and transcript rendering.
// ABOUTME: The sink round-trips through a temp database file; no mocks.

package snapshot

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func strPtr(s string) *string { return &s }

func seededStore(t *testing.T) store.Store {
	t.Helper()
	st := store.NewMemoryStore(store.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	_, err := st.GetOrCreateConversation(ctx, "c1", "customer-1", store.RoleCustomer)
	require.NoError(t, err)
	_, err = st.JoinConversation(ctx, "c1", "agent-1", store.RoleAgent)
	require.NoError(t, err)

	drafts := []store.MessageDraft{
		{ConversationID: "c1", Content: store.TextContent("my order is **late**"), AuthorID: strPtr("customer-1"), FromRole: store.RoleCustomer, ToRole: store.RoleAgent, Kind: store.KindText},
		{ConversationID: "c1", Content: store.TextContent("checking now"), AuthorID: strPtr("agent-1"), FromRole: store.RoleAgent, ToRole: store.RoleCustomer, Kind: store.KindText},
	}
	for _, d := range drafts {
		_, err = st.AddMessage(ctx, d)
		require.NoError(t, err)
	}
	return st
}

func TestCapture(t *testing.T) {
	st := seededStore(t)

	snap, err := Capture(context.Background(), st, "c1")
	require.NoError(t, err)

	assert.Equal(t, "c1", snap.Conversation.ID)
	assert.Len(t, snap.Messages, 2)
	assert.Len(t, snap.Participants, 2)
	require.Len(t, snap.DedupReport, 2)

	// Recomputed keys match what the store deduped on.
	for i, m := range snap.Messages {
		assert.Equal(t, m.ID, snap.DedupReport[i].MessageID)
		assert.Len(t, snap.DedupReport[i].Key, 64, "hex-encoded SHA-256")
	}
	assert.NotEqual(t, snap.DedupReport[0].Key, snap.DedupReport[1].Key)
}

func TestCapture_UnknownConversation(t *testing.T) {
	st := seededStore(t)

	_, err := Capture(context.Background(), st, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteSink_RoundTrip(t *testing.T) {
	st := seededStore(t)
	path := filepath.Join(t.TempDir(), "snapshots.db")

	sink, err := NewSQLiteSink(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	ctx := context.Background()
	snap, err := Capture(ctx, st, "c1")
	require.NoError(t, err)
	require.NoError(t, sink.RecordSnapshot(ctx, snap))
	require.NoError(t, sink.RecordSnapshot(ctx, snap))

	stored, err := sink.Snapshots(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, stored, 2, "snapshots are append-only")
	assert.Equal(t, "c1", stored[0].Conversation.ID)
	assert.Len(t, stored[0].Messages, 2)
	assert.Equal(t, snap.DedupReport, stored[0].DedupReport)

	none, err := sink.Snapshots(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTranscriptRenderer(t *testing.T) {
	st := seededStore(t)
	ctx := context.Background()

	conv, err := st.GetConversation(ctx, "c1")
	require.NoError(t, err)
	msgs, err := st.GetMessages(ctx, "c1")
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, NewTranscriptRenderer().Render(&buf, conv, msgs))

	out := buf.String()
	assert.Contains(t, out, "Conversation c1")
	assert.Contains(t, out, "<strong>late</strong>", "markdown bodies render to HTML")
	assert.Contains(t, out, "customer-1")
	assert.Contains(t, out, "checking now")
	assert.Contains(t, out, "</html>")
}
