// ABOUTME: WebSocket transport for room event feeds: dashboard and per-conversation.
// ABOUTME: Each connection subscribes to one broadcaster room and receives JSON envelopes.

package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/2389/parley/internal/dispatch"
	"github.com/2389/parley/internal/store"
)

// envelope is the wire shape of every pushed event.
type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// eventPayload carries the event body without repeating the event name.
type eventPayload struct {
	ConversationID string              `json:"conversation_id,omitempty"`
	Message        *store.Message      `json:"message,omitempty"`
	Conversation   *store.Conversation `json:"conversation,omitempty"`
	Participant    *store.Participant  `json:"participant,omitempty"`
}

// Hub upgrades HTTP requests to WebSocket connections attached to one
// broadcaster room. Slow or dead connections are dropped; they never block
// publishing.
type Hub struct {
	broadcaster *dispatch.Broadcaster
	logger      *slog.Logger
	connections atomic.Int64
}

// NewHub creates a hub over the given broadcaster. Pass nil logger for default.
func NewHub(b *dispatch.Broadcaster, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		broadcaster: b,
		logger:      logger.With("component", "ws"),
	}
}

// ConnectionCount returns the number of attached connections.
func (h *Hub) ConnectionCount() int {
	return int(h.connections.Load())
}

// HandleWS upgrades the request and streams the requested room. The room
// query parameter selects "dashboard" (the default) or "conversation:<id>".
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = dispatch.DashboardRoom
	}
	if !validRoom(room) {
		http.Error(w, "unknown room", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, subID := h.broadcaster.Subscribe(ctx, room)
	defer h.broadcaster.Unsubscribe(room, subID)

	h.connections.Add(1)
	defer h.connections.Add(-1)
	h.logger.Info("websocket connected", "room", room, "remote", r.RemoteAddr)

	// Read loop only detects disconnects and consumes pings.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	h.writePump(ctx, conn, events)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Info("websocket disconnected", "room", room)
}

// writePump forwards room events to the connection until it dies or the
// subscription closes.
func (h *Hub) writePump(ctx context.Context, conn *websocket.Conn, events <-chan *store.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(envelope{
				Event: string(ev.Type),
				Payload: eventPayload{
					ConversationID: ev.ConversationID,
					Message:        ev.Message,
					Conversation:   ev.Conversation,
					Participant:    ev.Participant,
				},
			})
			if err != nil {
				h.logger.Error("websocket marshal failed", "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// validRoom accepts the dashboard room and any conversation room with a
// non-empty ID.
func validRoom(room string) bool {
	if room == dispatch.DashboardRoom {
		return true
	}
	id, ok := strings.CutPrefix(room, "conversation:")
	return ok && id != ""
}
