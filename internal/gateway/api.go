// ABOUTME: HTTP API handlers for messages, conversations, stats, and transcripts.
// ABOUTME: Routes are mounted on chi; store errors map onto 404/400 responses.

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/parley/internal/history"
	"github.com/2389/parley/internal/snapshot"
	"github.com/2389/parley/internal/store"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Handlers holds the API's collaborators.
type Handlers struct {
	Store      store.Store
	Transcript *snapshot.TranscriptRenderer
	Logger     *slog.Logger
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", h.PostMessage)
		r.Get("/messages/{id}", h.GetMessage)

		r.Get("/conversations", h.ListConversations)
		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations/{id}", h.GetConversation)
		r.Post("/conversations/{id}/active", h.SetConversationActive)
		r.Post("/conversations/{id}/join", h.JoinConversation)
		r.Post("/conversations/{id}/leave", h.LeaveConversation)
		r.Get("/conversations/{id}/participants", h.ListParticipants)
		r.Get("/conversations/{id}/messages", h.ListMessages)
		r.Get("/conversations/{id}/transcript", h.GetTranscript)

		r.Get("/stats", h.GetStats)
	})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors onto HTTP statuses.
func (h *Handlers) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidDraft):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.Logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// readJSON decodes a JSON request body with a size limit.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// PostMessageRequest is the JSON request body for POST /api/messages.
type PostMessageRequest struct {
	ConversationID string         `json:"conversation_id"`
	AuthorID       *string        `json:"author_id,omitempty"`
	FromRole       string         `json:"from_role"`
	ToRole         string         `json:"to_role"`
	Kind           string         `json:"kind,omitempty"`
	Text           string         `json:"text,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	ThreadID       *string        `json:"thread_id,omitempty"`
}

// PostMessage handles POST /api/messages. Appends are idempotent: resending
// the same payload returns the previously accepted message.
func (h *Handlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if !readJSON(w, r, &req) {
		return
	}

	content := store.TextContent(req.Text)
	if req.Data != nil {
		content = store.StructuredContent(req.Data)
	}

	msg, err := h.Store.AddMessage(r.Context(), store.MessageDraft{
		ConversationID: req.ConversationID,
		Content:        content,
		AuthorID:       req.AuthorID,
		FromRole:       store.Role(req.FromRole),
		ToRole:         store.Role(req.ToRole),
		Kind:           store.Kind(req.Kind),
		ThreadID:       req.ThreadID,
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// GetMessage handles GET /api/messages/{id}.
func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.Store.GetMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// CreateConversationRequest is the JSON request body for POST /api/conversations.
type CreateConversationRequest struct {
	ID        string `json:"id,omitempty"` // empty means generate
	CreatorID string `json:"creator_id"`
	Role      string `json:"role"`
}

// CreateConversation handles POST /api/conversations. Get-or-create: posting
// an existing ID returns that conversation unchanged.
func (h *Handlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.CreatorID == "" {
		writeError(w, http.StatusBadRequest, "creator_id is required")
		return
	}
	role := store.Role(req.Role)
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "role is invalid")
		return
	}

	conv, err := h.Store.GetOrCreateConversation(r.Context(), req.ID, req.CreatorID, role)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListConversations handles GET /api/conversations.
func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.Store.ListConversations(r.Context())
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// GetConversation handles GET /api/conversations/{id}.
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.Store.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// SetActiveRequest is the JSON request body for POST /api/conversations/{id}/active.
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// SetConversationActive handles POST /api/conversations/{id}/active.
// Conversations are never hard-deleted; this toggles visibility.
func (h *Handlers) SetConversationActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.Store.SetConversationActive(r.Context(), chi.URLParam(r, "id"), req.Active); err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

// JoinRequest is the JSON request body for POST /api/conversations/{id}/join.
type JoinRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// JoinConversation handles POST /api/conversations/{id}/join. Idempotent per
// user: rejoining returns the existing participant record.
func (h *Handlers) JoinConversation(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	role := store.Role(req.Role)
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "role is invalid")
		return
	}

	p, err := h.Store.JoinConversation(r.Context(), chi.URLParam(r, "id"), req.UserID, role)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// LeaveRequest is the JSON request body for POST /api/conversations/{id}/leave.
type LeaveRequest struct {
	UserID string `json:"user_id"`
}

// LeaveConversation handles POST /api/conversations/{id}/leave. Leaving a
// conversation you are not in is not an error; the response says so.
func (h *Handlers) LeaveConversation(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequest
	if !readJSON(w, r, &req) {
		return
	}

	left, err := h.Store.LeaveConversation(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"left": left})
}

// ListParticipants handles GET /api/conversations/{id}/participants.
func (h *Handlers) ListParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.Store.Participants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

// ListMessages handles GET /api/conversations/{id}/messages.
//
// Query parameters:
//   - viewer: role the results are filtered for (default supervisor)
//   - kind:   only messages of this kind
//   - user:   only messages authored by this user
//   - since/until: RFC 3339 bounds, inclusive
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	ix, err := history.ForConversation(r.Context(), h.Store, chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	viewer := store.RoleSupervisor
	if v := r.URL.Query().Get("viewer"); v != "" {
		viewer = store.Role(v)
		if !viewer.Valid() {
			writeError(w, http.StatusBadRequest, "viewer role is invalid")
			return
		}
	}
	msgs := ix.VisibleToRole(viewer)

	if kind := r.URL.Query().Get("kind"); kind != "" {
		if !store.Kind(kind).Valid() {
			writeError(w, http.StatusBadRequest, "kind is invalid")
			return
		}
		msgs = filterMessages(msgs, func(m *store.Message) bool { return m.Kind == store.Kind(kind) })
	}
	if user := r.URL.Query().Get("user"); user != "" {
		msgs = filterMessages(msgs, func(m *store.Message) bool { return m.Author() == user })
	}

	if sinceRaw := r.URL.Query().Get("since"); sinceRaw != "" {
		since, err := time.Parse(time.RFC3339, sinceRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		msgs = filterMessages(msgs, func(m *store.Message) bool { return !m.CreatedAt.Before(since) })
	}
	if untilRaw := r.URL.Query().Get("until"); untilRaw != "" {
		until, err := time.Parse(time.RFC3339, untilRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be RFC 3339")
			return
		}
		msgs = filterMessages(msgs, func(m *store.Message) bool { return !m.CreatedAt.After(until) })
	}

	writeJSON(w, http.StatusOK, msgs)
}

func filterMessages(msgs []*store.Message, keep func(*store.Message) bool) []*store.Message {
	out := make([]*store.Message, 0, len(msgs))
	for _, m := range msgs {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// GetTranscript handles GET /api/conversations/{id}/transcript, rendering the
// conversation as a standalone HTML document.
func (h *Handlers) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := h.Store.GetConversation(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	msgs, err := h.Store.GetMessages(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.Transcript.Render(w, conv, msgs); err != nil {
		h.Logger.Error("transcript render failed", "conversation_id", id, "error", err)
	}
}

// GetStats handles GET /api/stats, the dashboard aggregate view.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.DashboardStats(r.Context())
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
