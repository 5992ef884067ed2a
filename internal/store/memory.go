// ABOUTME: In-memory reference implementation of the Store interface
// ABOUTME: Maps guarded by one RWMutex; dedup via content-hash index; observers notified after commit

package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/dedupe"
)

const (
	// DefaultActiveUserWindow is the trailing window for the dashboard
	// active-user count. Configurable because the window is an
	// approximation, not a presence signal.
	DefaultActiveUserWindow = time.Hour

	// DefaultDedupTTL bounds how long a content-hash key absorbs redelivery.
	DefaultDedupTTL = 24 * time.Hour

	// DefaultDedupMaxSize bounds the dedup index size.
	DefaultDedupMaxSize = 100_000
)

// Options configures a MemoryStore. Zero values select the defaults above.
type Options struct {
	ActiveUserWindow time.Duration
	DedupTTL         time.Duration
	DedupMaxSize     int
	Logger           *slog.Logger
}

// MemoryStore is the reference Store implementation. All long-lived mutable
// state lives behind its mutex; callers only reach it through the Store
// methods.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]*Message // conversation ID -> ascending creation order
	byID          map[string]*Message
	participants  map[string]map[string]*Participant // conversation ID -> user ID
	observers     []Observer

	index  *dedupe.Index
	window time.Duration
	logger *slog.Logger
	now    func() time.Time // overridable in tests
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	if opts.ActiveUserWindow <= 0 {
		opts.ActiveUserWindow = DefaultActiveUserWindow
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = DefaultDedupTTL
	}
	if opts.DedupMaxSize <= 0 {
		opts.DedupMaxSize = DefaultDedupMaxSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		byID:          make(map[string]*Message),
		participants:  make(map[string]map[string]*Participant),
		index:         dedupe.New(opts.DedupTTL, opts.DedupMaxSize),
		window:        opts.ActiveUserWindow,
		logger:        opts.Logger.With("component", "store"),
		now:           time.Now,
	}
}

// AddMessage appends a message with at-most-once semantics. A draft whose
// dedup key matches a previously accepted message in the same conversation
// returns that message unchanged: no duplicate, no counter movement, no event.
// An unknown conversation is created implicitly with the draft's author as
// sole participant.
func (s *MemoryStore) AddMessage(ctx context.Context, draft MessageDraft) (*Message, error) {
	if draft.Kind == "" {
		draft.Kind = KindText
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	key := DedupKey(draft)

	s.mu.Lock()
	var events []Event
	conv, ok := s.conversations[draft.ConversationID]
	if !ok {
		now := s.now()
		conv = &Conversation{
			ID:        draft.ConversationID,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.participants[conv.ID] = make(map[string]*Participant)
		if draft.AuthorID != nil {
			conv.ParticipantIDs = []string{*draft.AuthorID}
			conv.ParticipantRoles = []Role{draft.FromRole}
			s.participants[conv.ID][*draft.AuthorID] = &Participant{
				UserID:   *draft.AuthorID,
				Role:     draft.FromRole,
				JoinedAt: now,
			}
		}
		s.conversations[conv.ID] = conv
		events = append(events, Event{Type: EventConversationCreated, ConversationID: conv.ID, Conversation: conv})

		author := ""
		if draft.AuthorID != nil {
			author = *draft.AuthorID
		}
		s.logger.Debug("conversation created implicitly",
			"conversation_id", conv.ID,
			"author", author,
			"from_role", draft.FromRole)
	}

	id := uuid.New().String()
	resolvedID, existed := s.index.LookupOrRemember(key, id)
	if existed {
		if existing := s.byID[resolvedID]; existing != nil {
			s.mu.Unlock()
			s.logger.Debug("duplicate message absorbed",
				"conversation_id", draft.ConversationID,
				"message_id", existing.ID)
			return existing, nil
		}
		// Stale index entry whose message is gone; record the fresh ID.
		s.index.Remember(key, id)
	}

	now := s.now()
	msg := &Message{
		ID:                id,
		ConversationID:    draft.ConversationID,
		Content:           draft.Content,
		AuthorID:          draft.AuthorID,
		FromRole:          draft.FromRole,
		ToRole:            draft.ToRole,
		Kind:              draft.Kind,
		ThreadID:          draft.ThreadID,
		OriginalMessageID: draft.OriginalMessageID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	s.messages[conv.ID] = append(s.messages[conv.ID], msg)
	s.byID[id] = msg
	conv.MessageCount++
	conv.LastMessageAt = now
	conv.UpdatedAt = now

	events = append(events,
		Event{Type: EventNewMessage, ConversationID: conv.ID, Message: msg},
		Event{Type: EventConversationUpdated, ConversationID: conv.ID, Conversation: conv},
	)
	observers := s.observerSnapshot()
	s.mu.Unlock()

	s.logger.Debug("message recorded",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"from_role", msg.FromRole,
		"kind", msg.Kind)

	notify(observers, events)
	return msg, nil
}

// GetMessage returns a message by ID.
func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return msg, nil
}

// GetMessages returns a conversation's messages in ascending creation order.
func (s *MemoryStore) GetMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	msgs := s.messages[conversationID]
	out := make([]*Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// GetOrCreateConversation returns an existing conversation verbatim, or
// creates one with the creator as sole participant and emits a
// conversation-created event.
func (s *MemoryStore) GetOrCreateConversation(ctx context.Context, id, creatorID string, role Role) (*Conversation, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidDraft, role)
	}
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	if conv, ok := s.conversations[id]; ok {
		s.mu.Unlock()
		return conv, nil
	}

	now := s.now()
	conv := &Conversation{
		ID:               id,
		ParticipantIDs:   []string{creatorID},
		ParticipantRoles: []Role{role},
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.conversations[id] = conv
	s.participants[id] = map[string]*Participant{
		creatorID: {UserID: creatorID, Role: role, JoinedAt: now},
	}

	events := []Event{{Type: EventConversationCreated, ConversationID: id, Conversation: conv}}
	observers := s.observerSnapshot()
	s.mu.Unlock()

	s.logger.Debug("conversation created", "conversation_id", id, "creator", creatorID, "role", role)

	notify(observers, events)
	return conv, nil
}

// GetConversation returns a conversation by ID.
func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return conv, nil
}

// ListConversations returns all conversations ordered by creation time.
func (s *MemoryStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SetConversationActive toggles a conversation's visibility flag.
func (s *MemoryStore) SetConversationActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}

	conv.IsActive = active
	conv.UpdatedAt = s.now()

	events := []Event{{Type: EventConversationUpdated, ConversationID: id, Conversation: conv}}
	observers := s.observerSnapshot()
	s.mu.Unlock()

	notify(observers, events)
	return nil
}

// JoinConversation adds a user to a conversation. Rejoin is idempotent and
// returns the existing participant record without duplicating slice entries.
func (s *MemoryStore) JoinConversation(ctx context.Context, conversationID, userID string, role Role) (*Participant, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidDraft, role)
	}

	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	if existing, ok := s.participants[conversationID][userID]; ok {
		s.mu.Unlock()
		return existing, nil
	}

	now := s.now()
	p := &Participant{UserID: userID, Role: role, JoinedAt: now}
	s.participants[conversationID][userID] = p
	conv.ParticipantIDs = append(conv.ParticipantIDs, userID)
	conv.ParticipantRoles = append(conv.ParticipantRoles, role)
	conv.UpdatedAt = now

	events := []Event{{Type: EventParticipantAdded, ConversationID: conversationID, Participant: p}}
	observers := s.observerSnapshot()
	s.mu.Unlock()

	s.logger.Debug("participant joined", "conversation_id", conversationID, "user_id", userID, "role", role)

	notify(observers, events)
	return p, nil
}

// LeaveConversation removes a participant. Returns false (not an error) when
// the user was not a participant.
func (s *MemoryStore) LeaveConversation(ctx context.Context, conversationID, userID string) (bool, error) {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	p, ok := s.participants[conversationID][userID]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}

	delete(s.participants[conversationID], userID)
	for i, id := range conv.ParticipantIDs {
		if id == userID {
			conv.ParticipantIDs = append(conv.ParticipantIDs[:i], conv.ParticipantIDs[i+1:]...)
			conv.ParticipantRoles = append(conv.ParticipantRoles[:i], conv.ParticipantRoles[i+1:]...)
			break
		}
	}
	conv.UpdatedAt = s.now()

	events := []Event{{Type: EventParticipantRemoved, ConversationID: conversationID, Participant: p}}
	observers := s.observerSnapshot()
	s.mu.Unlock()

	s.logger.Debug("participant left", "conversation_id", conversationID, "user_id", userID)

	notify(observers, events)
	return true, nil
}

// Participants returns a conversation's participants in join order.
func (s *MemoryStore) Participants(ctx context.Context, conversationID string) ([]*Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	out := make([]*Participant, 0, len(conv.ParticipantIDs))
	for _, userID := range conv.ParticipantIDs {
		if p, ok := s.participants[conversationID][userID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// DashboardStats computes the aggregate dashboard view. ActiveUsers counts
// distinct senders within the trailing window by scanning messages; this is
// deliberately an approximation.
func (s *MemoryStore) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &DashboardStats{}
	cutoff := s.now().Add(-s.window)

	for _, conv := range s.conversations {
		stats.TotalMessages += conv.MessageCount
		if !conv.IsActive {
			continue
		}
		stats.ActiveConversations++
		if !conv.HasRole(RoleAgent) && !conv.HasRole(RoleSupervisor) {
			stats.QueuedConversations++
		}
	}

	seen := make(map[string]struct{})
	for _, msgs := range s.messages {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].CreatedAt.Before(cutoff) {
				break // ascending order: everything earlier is out of window
			}
			if author := msgs[i].Author(); author != "" {
				seen[author] = struct{}{}
			}
		}
	}
	stats.ActiveUsers = len(seen)

	return stats, nil
}

// Subscribe registers an observer for store mutation events.
func (s *MemoryStore) Subscribe(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

// Close stops the dedup index's background cleanup.
func (s *MemoryStore) Close() error {
	s.index.Close()
	return nil
}

// observerSnapshot copies the observer list. Must be called with mu held.
func (s *MemoryStore) observerSnapshot() []Observer {
	out := make([]Observer, len(s.observers))
	copy(out, s.observers)
	return out
}

// notify delivers events to observers outside the store lock so observers
// may read from the store.
func notify(observers []Observer, events []Event) {
	for _, ev := range events {
		for _, obs := range observers {
			obs.OnStoreEvent(ev)
		}
	}
}

// validateDraft checks the semantic fields of a draft.
func validateDraft(draft MessageDraft) error {
	if draft.ConversationID == "" {
		return fmt.Errorf("%w: conversation_id is required", ErrInvalidDraft)
	}
	if !draft.FromRole.Valid() {
		return fmt.Errorf("%w: unknown from_role %q", ErrInvalidDraft, draft.FromRole)
	}
	if !draft.ToRole.Valid() {
		return fmt.Errorf("%w: unknown to_role %q", ErrInvalidDraft, draft.ToRole)
	}
	if !draft.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDraft, draft.Kind)
	}
	if draft.Content.Text == "" && draft.Content.Data == nil {
		return fmt.Errorf("%w: content is required", ErrInvalidDraft)
	}
	return nil
}
