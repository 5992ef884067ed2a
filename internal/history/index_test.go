// ABOUTME: Tests for conversation history views
// ABOUTME: Verifies visibility partition, robot filtering, token budgets, and fixed-key counts

package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func strPtr(s string) *string { return &s }

// msg builds a test message; created times step one minute apart by index.
func msg(i int, author string, from, to store.Role, kind store.Kind, text string) *store.Message {
	var authorID *string
	if author != "" {
		authorID = strPtr(author)
	}
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	return &store.Message{
		ID:             fmt.Sprintf("m%d", i),
		ConversationID: "c1",
		Content:        store.TextContent(text),
		AuthorID:       authorID,
		FromRole:       from,
		ToRole:         to,
		Kind:           kind,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

// mixedHistory covers every kind/fromRole combination that matters to the
// visibility rules.
func mixedHistory() []*store.Message {
	return []*store.Message{
		msg(0, "customer-1", store.RoleCustomer, store.RoleAgent, store.KindText, "where is my order"),
		msg(1, "agent-1", store.RoleAgent, store.RoleCustomer, store.KindText, "let me check"),
		msg(2, "robot-1", store.RoleRobot, store.RoleAgent, store.KindRobot, "order o-42 shipped"),
		msg(3, "", store.RoleSystemDebug, store.RoleSupervisor, store.KindSystem, "queue depth 3"),
		msg(4, "supervisor-1", store.RoleSupervisor, store.RoleAgent, store.KindText, "escalate if needed"),
		msg(5, "agent-1", store.RoleAgent, store.RoleCustomer, store.KindText, "it shipped yesterday"),
	}
}

func TestIndex_AllMessages_Order(t *testing.T) {
	ix := NewIndex(mixedHistory())

	all := ix.AllMessages()
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i].CreatedAt.After(all[i-1].CreatedAt))
	}
}

func TestIndex_Latest(t *testing.T) {
	ix := NewIndex(mixedHistory())
	assert.Equal(t, "m5", ix.Latest().ID)

	assert.Nil(t, NewIndex(nil).Latest())
}

func TestIndex_ByUser(t *testing.T) {
	ix := NewIndex(mixedHistory())

	agent := ix.ByUser("agent-1")
	require.Len(t, agent, 2)
	assert.Equal(t, "m1", agent[0].ID)
	assert.Equal(t, "m5", agent[1].ID)

	assert.Empty(t, ix.ByUser("nobody"))
}

func TestIndex_ByKind(t *testing.T) {
	ix := NewIndex(mixedHistory())

	assert.Len(t, ix.ByKind(store.KindText), 4)
	assert.Len(t, ix.ByKind(store.KindRobot), 1)
	assert.Len(t, ix.ByKind(store.KindSystem), 1)
}

func TestIndex_InDateRange_Inclusive(t *testing.T) {
	msgs := mixedHistory()
	ix := NewIndex(msgs)

	// Bounds exactly on m1 and m4 creation times: both included
	got := ix.InDateRange(msgs[1].CreatedAt, msgs[4].CreatedAt)
	require.Len(t, got, 4)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m4", got[3].ID)
}

func TestIndex_VisibleToRole_Customer(t *testing.T) {
	ix := NewIndex(mixedHistory())

	visible := ix.VisibleToRole(store.RoleCustomer)
	require.Len(t, visible, 3)
	for _, m := range visible {
		assert.NotEqual(t, store.KindRobot, m.Kind)
		assert.Contains(t, []store.Role{store.RoleCustomer, store.RoleAgent}, m.FromRole)
		assert.Contains(t, []store.Role{store.RoleCustomer, store.RoleAgent}, m.ToRole)
	}
}

func TestIndex_VisibleToRole_Partition(t *testing.T) {
	ix := NewIndex(mixedHistory())

	customer := ix.VisibleToRole(store.RoleCustomer)
	agent := ix.VisibleToRole(store.RoleAgent)
	supervisor := ix.VisibleToRole(store.RoleSupervisor)

	// Customer view is a strict subset of the agent view
	assert.Less(t, len(customer), len(agent))
	agentIDs := make(map[string]bool)
	for _, m := range agent {
		agentIDs[m.ID] = true
	}
	for _, m := range customer {
		assert.True(t, agentIDs[m.ID])
	}

	// Agent and supervisor see everything, robot kind included
	assert.Len(t, agent, 6)
	assert.Len(t, supervisor, 6)
}

func TestIndex_VisibleToRole_UnknownFailsClosed(t *testing.T) {
	ix := NewIndex(mixedHistory())

	assert.Empty(t, ix.VisibleToRole("auditor"))
	assert.Empty(t, ix.VisibleToRole(store.RoleSystemDebug))
}

func TestIndex_ForRobotProcessing(t *testing.T) {
	ix := NewIndex(mixedHistory())

	got := ix.ForRobotProcessing()
	require.Len(t, got, 4)
	for _, m := range got {
		assert.NotEqual(t, store.RoleCustomer, m.FromRole)
		assert.NotEqual(t, store.RoleSystemDebug, m.FromRole)
	}
}

func TestIndex_RecentWithinTokenBudget(t *testing.T) {
	// One token per message for easy accounting
	one := func(store.Content) int { return 1 }
	msgs := mixedHistory()
	ix := NewIndex(msgs)

	got := ix.RecentWithinTokenBudget(3, one)
	require.Len(t, got, 3)
	// The window is the chronological suffix
	assert.Equal(t, "m3", got[0].ID)
	assert.Equal(t, "m4", got[1].ID)
	assert.Equal(t, "m5", got[2].ID)
}

func TestIndex_RecentWithinTokenBudget_Monotonic(t *testing.T) {
	ix := NewIndex(mixedHistory())

	prev := -1
	for budget := 0; budget <= 200; budget += 10 {
		got := ix.RecentWithinTokenBudget(budget, nil)
		assert.GreaterOrEqual(t, len(got), prev, "result length must be non-decreasing in budget")
		prev = len(got)

		// Suffix property: result equals the tail of AllMessages
		all := ix.AllMessages()
		tail := all[len(all)-len(got):]
		assert.Equal(t, tail, got)
	}
}

func TestIndex_RecentWithinTokenBudget_OversizedNewest(t *testing.T) {
	huge := func(store.Content) int { return 1000 }
	ix := NewIndex(mixedHistory())

	// Even the newest message busts the budget: empty, never partial
	assert.Empty(t, ix.RecentWithinTokenBudget(10, huge))
}

func TestIndex_RecentWithinTokenBudget_Empty(t *testing.T) {
	assert.Empty(t, NewIndex(nil).RecentWithinTokenBudget(100, nil))
}

func TestIndex_CountsByKind_FixedKeys(t *testing.T) {
	counts := NewIndex(nil).CountsByKind()
	require.Len(t, counts, len(store.Kinds))
	for _, kind := range store.Kinds {
		n, ok := counts[kind]
		assert.True(t, ok, "kind %s must be present", kind)
		assert.Zero(t, n)
	}

	counts = NewIndex(mixedHistory()).CountsByKind()
	assert.Equal(t, 4, counts[store.KindText])
	assert.Equal(t, 1, counts[store.KindSystem])
	assert.Equal(t, 1, counts[store.KindRobot])
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(store.TextContent("")))
	assert.Equal(t, 1, EstimateTokens(store.TextContent("hi")))
	assert.Equal(t, 2, EstimateTokens(store.TextContent("hello")))
}
