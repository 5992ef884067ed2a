// ABOUTME: Read-only views over one conversation's message log
// ABOUTME: Role visibility, robot-context filtering, and token-budgeted recency windows

package history

import (
	"context"
	"time"

	"github.com/2389/parley/internal/store"
)

// TokenEstimator approximates the token cost of a message payload.
type TokenEstimator func(c store.Content) int

// EstimateTokens is the default estimator: roughly four characters per token,
// rounded up. Good enough for budget windowing; not a tokenizer.
func EstimateTokens(c store.Content) int {
	n := len(c.String())
	return (n + 3) / 4
}

// Index exposes ordered, filtered views over one conversation's messages.
// Every view returns messages in ascending creation order. The index holds a
// point-in-time slice; it does not track later appends.
type Index struct {
	msgs []*store.Message
}

// NewIndex builds an index over messages already in ascending creation order
// (the order store.GetMessages returns).
func NewIndex(msgs []*store.Message) *Index {
	return &Index{msgs: msgs}
}

// ForConversation loads a conversation's messages from the store and indexes them.
func ForConversation(ctx context.Context, st store.Store, conversationID string) (*Index, error) {
	msgs, err := st.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return NewIndex(msgs), nil
}

// AllMessages returns every message in chronological order.
func (ix *Index) AllMessages() []*store.Message {
	out := make([]*store.Message, len(ix.msgs))
	copy(out, ix.msgs)
	return out
}

// Latest returns the most recent message, or nil for an empty conversation.
func (ix *Index) Latest() *store.Message {
	if len(ix.msgs) == 0 {
		return nil
	}
	return ix.msgs[len(ix.msgs)-1]
}

// ByUser returns messages authored by the given user.
func (ix *Index) ByUser(userID string) []*store.Message {
	return ix.filter(func(m *store.Message) bool {
		return m.Author() == userID
	})
}

// ByKind returns messages of the given kind.
func (ix *Index) ByKind(kind store.Kind) []*store.Message {
	return ix.filter(func(m *store.Message) bool {
		return m.Kind == kind
	})
}

// InDateRange returns messages created within [start, end], bounds inclusive.
func (ix *Index) InDateRange(start, end time.Time) []*store.Message {
	return ix.filter(func(m *store.Message) bool {
		return !m.CreatedAt.Before(start) && !m.CreatedAt.After(end)
	})
}

// VisibleToRole applies the visibility rule for a viewer role. Customers see
// only non-robot messages whose exchange stays between customer and agent.
// Agents and supervisors see everything, robot-kind included. Unknown roles
// see nothing: visibility fails closed, not open.
func (ix *Index) VisibleToRole(role store.Role) []*store.Message {
	switch role {
	case store.RoleAgent, store.RoleSupervisor:
		return ix.AllMessages()
	case store.RoleCustomer:
		return ix.filter(func(m *store.Message) bool {
			return m.Kind != store.KindRobot &&
				customerFacing(m.FromRole) && customerFacing(m.ToRole)
		})
	default:
		return []*store.Message{}
	}
}

// customerFacing reports whether a role belongs to the customer/agent exchange.
func customerFacing(r store.Role) bool {
	return r == store.RoleCustomer || r == store.RoleAgent
}

// ForRobotProcessing returns the messages eligible for a model prompt:
// agent, supervisor, and robot-authored messages only. Customer and
// system-debug senders are excluded so internal chatter never leaks into
// robot context.
func (ix *Index) ForRobotProcessing() []*store.Message {
	return ix.filter(func(m *store.Message) bool {
		switch m.FromRole {
		case store.RoleAgent, store.RoleSupervisor, store.RoleRobot:
			return true
		}
		return false
	})
}

// RecentWithinTokenBudget walks messages newest-first, accumulating
// estimator costs, and stops before the budget would be exceeded. The result
// is always a chronological suffix of AllMessages. If even the single most
// recent message exceeds the budget, the result is empty: a message is never
// partially included.
func (ix *Index) RecentWithinTokenBudget(maxTokens int, estimator TokenEstimator) []*store.Message {
	if estimator == nil {
		estimator = EstimateTokens
	}

	total := 0
	start := len(ix.msgs)
	for i := len(ix.msgs) - 1; i >= 0; i-- {
		cost := estimator(ix.msgs[i].Content)
		if total+cost > maxTokens {
			break
		}
		total += cost
		start = i
	}

	out := make([]*store.Message, len(ix.msgs)-start)
	copy(out, ix.msgs[start:])
	return out
}

// CountsByKind returns a per-kind message count covering every kind value.
// Absent kinds are zero; callers never see a missing key.
func (ix *Index) CountsByKind() map[store.Kind]int {
	counts := make(map[store.Kind]int, len(store.Kinds))
	for _, kind := range store.Kinds {
		counts[kind] = 0
	}
	for _, m := range ix.msgs {
		counts[m.Kind]++
	}
	return counts
}

// Len returns the number of indexed messages.
func (ix *Index) Len() int {
	return len(ix.msgs)
}

// filter returns messages matching keep, preserving chronological order.
func (ix *Index) filter(keep func(*store.Message) bool) []*store.Message {
	out := make([]*store.Message, 0, len(ix.msgs))
	for _, m := range ix.msgs {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}
