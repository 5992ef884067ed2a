// ABOUTME: Tests for the robot turn machine and the three response modes.
// ABOUTME: Uses scripted backends to verify tool ordering, fail-soft contracts, and stream shape.

package robot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/catalog"
	"github.com/2389/parley/internal/store"
)

// scriptedBackend replays a fixed sequence of completions, recording every
// request it receives.
type scriptedBackend struct {
	mu          sync.Mutex
	calls       []*Request
	completions []*Completion
	errs        []error
}

func (b *scriptedBackend) Complete(ctx context.Context, req *Request) (*Completion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := len(b.calls)
	b.calls = append(b.calls, req)
	if i < len(b.errs) && b.errs[i] != nil {
		return nil, b.errs[i]
	}
	if i >= len(b.completions) {
		return nil, fmt.Errorf("unexpected model call %d", i+1)
	}
	return b.completions[i], nil
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *scriptedBackend) call(i int) *Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[i]
}

// scriptedStreamBackend replays delta scripts, one per call.
type scriptedStreamBackend struct {
	scriptedBackend
	scripts [][]Delta
}

func (b *scriptedStreamBackend) CompleteStream(ctx context.Context, req *Request) (<-chan Delta, error) {
	b.mu.Lock()
	i := len(b.calls)
	b.calls = append(b.calls, req)
	b.mu.Unlock()
	if i >= len(b.scripts) {
		return nil, fmt.Errorf("unexpected streaming call %d", i+1)
	}
	ch := make(chan Delta)
	go func() {
		defer close(ch)
		for _, d := range b.scripts[i] {
			ch <- d
		}
	}()
	return ch, nil
}

// testCatalog holds an echo tool that returns its input and a boom tool that
// always fails.
func testCatalog(t *testing.T) *catalog.Registry {
	t.Helper()
	r := catalog.NewRegistry()
	r.MustRegister(catalog.Definition{Name: "echo", Description: "echo input"},
		func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			return input, nil
		})
	r.MustRegister(catalog.Definition{Name: "boom", Description: "always fails"},
		func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("kaboom")
		})
	return r
}

func testRobot(t *testing.T, backend ModelBackend, opts ...func(*Options)) *SupportRobot {
	t.Helper()
	o := Options{
		Name:         "test-robot",
		SystemPrompt: "You are a support robot.",
		Backend:      backend,
		Catalog:      testCatalog(t),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range opts {
		fn(&o)
	}
	r, err := NewSupportRobot(o)
	require.NoError(t, err)
	return r
}

func turnReq(history ...*store.Message) *TurnRequest {
	return &TurnRequest{
		ConversationID: "c1",
		History:        history,
		Message:        msg(store.RoleAgent, "please help"),
	}
}

func msg(role store.Role, text string) *store.Message {
	return &store.Message{
		ID:       "m-" + text,
		FromRole: role,
		ToRole:   store.RoleRobot,
		Kind:     store.KindText,
		Content:  store.TextContent(text),
	}
}

func TestRespondImmediate_NoTools(t *testing.T) {
	backend := &scriptedBackend{completions: []*Completion{
		{Segments: []Segment{TextSegment("the answer")}},
	}}
	r := testRobot(t, backend)

	answer, err := r.RespondImmediate(context.Background(), turnReq())
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
	assert.Equal(t, 1, backend.callCount(), "no tools means no follow-up round")
}

func TestRespondImmediate_ToolLoop(t *testing.T) {
	backend := &scriptedBackend{completions: []*Completion{
		{Segments: []Segment{
			TextSegment("let me check"),
			ToolUseSegment("t1", "echo", `{"n":1}`),
			ToolUseSegment("t2", "echo", `{"n":2}`),
		}},
		{Segments: []Segment{TextSegment("done checking")}},
	}}
	r := testRobot(t, backend)

	answer, err := r.RespondImmediate(context.Background(), turnReq())
	require.NoError(t, err)
	assert.Equal(t, "done checking", answer)
	require.Equal(t, 2, backend.callCount())

	// The follow-up request carries the assistant turn plus one tool
	// message per outcome, in execution order.
	second := backend.call(1)
	n := len(second.Messages)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, "assistant", second.Messages[n-3].Role)
	assert.Contains(t, second.Messages[n-3].Content, "let me check")
	assert.Equal(t, "tool", second.Messages[n-2].Role)
	assert.Contains(t, second.Messages[n-2].Content, `"n":1`)
	assert.Equal(t, "tool", second.Messages[n-1].Role)
	assert.Contains(t, second.Messages[n-1].Content, `"n":2`)
}

func TestRespondImmediate_ToolFailureContinues(t *testing.T) {
	backend := &scriptedBackend{completions: []*Completion{
		{Segments: []Segment{
			ToolUseSegment("t1", "boom", `{}`),
			ToolUseSegment("t2", "echo", `{"ok":true}`),
		}},
		{Segments: []Segment{TextSegment("partial answer")}},
	}}
	r := testRobot(t, backend)

	var outcomes []ToolOutcome
	answer, err := r.RespondMultiPart(context.Background(), turnReq(), func(o ToolOutcome) {
		outcomes = append(outcomes, o)
	})
	require.NoError(t, err)
	assert.Equal(t, "partial answer", answer)

	require.Len(t, outcomes, 2, "a failing tool never aborts its siblings")
	assert.Contains(t, outcomes[0].Err, "kaboom")
	assert.Empty(t, outcomes[1].Err)
	assert.Equal(t, `{"ok":true}`, outcomes[1].Result)
}

func TestRespondImmediate_UnknownTool(t *testing.T) {
	backend := &scriptedBackend{completions: []*Completion{
		{Segments: []Segment{ToolUseSegment("t1", "nonesuch", `{}`)}},
		{Segments: []Segment{TextSegment("recovered")}},
	}}
	r := testRobot(t, backend)

	var outcomes []ToolOutcome
	answer, err := r.RespondMultiPart(context.Background(), turnReq(), func(o ToolOutcome) {
		outcomes = append(outcomes, o)
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
	require.Len(t, outcomes, 1)
	assert.Contains(t, outcomes[0].Err, `unknown tool "nonesuch"`)
	assert.Contains(t, outcomes[0].Err, "echo, boom")
}

func TestRespondImmediate_FailSoft(t *testing.T) {
	backend := &scriptedBackend{errs: []error{errors.New("model unavailable")}}
	r := testRobot(t, backend)

	answer, err := r.RespondImmediate(context.Background(), turnReq())
	require.NoError(t, err, "immediate mode never surfaces model failures as errors")
	assert.Contains(t, answer, "Sorry")
	assert.Contains(t, answer, "model unavailable")
}

func TestRespondImmediate_NoThirdRound(t *testing.T) {
	backend := &scriptedBackend{completions: []*Completion{
		{Segments: []Segment{ToolUseSegment("t1", "echo", `{}`)}},
		{Segments: []Segment{
			TextSegment("still want tools"),
			ToolUseSegment("t2", "echo", `{}`),
		}},
	}}
	r := testRobot(t, backend)

	answer, err := r.RespondImmediate(context.Background(), turnReq())
	require.NoError(t, err)
	assert.Equal(t, "still want tools", answer)
	assert.Equal(t, 2, backend.callCount(), "follow-up tool uses are ignored, never executed")
}

func TestRespondStreaming_EventOrder(t *testing.T) {
	backend := &scriptedStreamBackend{scripts: [][]Delta{
		{
			{Text: "looking "},
			{Text: "it up"},
			{ToolStart: &ToolUse{ID: "t1", Name: "echo"}},
			{ToolArgs: &ArgsFragment{ToolID: "t1", Fragment: `{"order`}},
			{ToolArgs: &ArgsFragment{ToolID: "t1", Fragment: `_id":"o-1"}`}},
		},
		{
			{Text: "your order shipped"},
		},
	}}
	r := testRobot(t, backend)

	events, err := r.RespondStreaming(context.Background(), turnReq())
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}

	types := make([]EventType, len(got))
	for i, ev := range got {
		types[i] = ev.Type
	}
	assert.Equal(t, []EventType{
		EventStarted, EventText, EventText,
		EventToolStarted, EventToolResult,
		EventAnalysis, EventText, EventDone,
	}, types)

	// Fragments reassemble into whole argument JSON before execution.
	assert.Equal(t, `{"order_id":"o-1"}`, got[4].Tool.Result)
	assert.Equal(t, "your order shipped", got[len(got)-1].Text)
}

func TestRespondStreaming_ToolOrderDeterminism(t *testing.T) {
	// Three tools with inverted latencies: the first requested is the
	// slowest. Execution is strictly sequential, so the observed event
	// order must match invocation order, not completion speed.
	delays := map[string]time.Duration{
		"alpha":   30 * time.Millisecond,
		"bravo":   10 * time.Millisecond,
		"charlie": 0,
	}
	reg := catalog.NewRegistry()
	for name, d := range delays {
		delay := d
		reg.MustRegister(catalog.Definition{Name: name, Description: "timed " + name},
			func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
				time.Sleep(delay)
				return input, nil
			})
	}

	backend := &scriptedStreamBackend{scripts: [][]Delta{
		{
			{ToolStart: &ToolUse{ID: "t1", Name: "alpha"}},
			{ToolArgs: &ArgsFragment{ToolID: "t1", Fragment: `{"step":1}`}},
			{ToolStart: &ToolUse{ID: "t2", Name: "bravo"}},
			{ToolArgs: &ArgsFragment{ToolID: "t2", Fragment: `{"step":2}`}},
			{ToolStart: &ToolUse{ID: "t3", Name: "charlie"}},
			{ToolArgs: &ArgsFragment{ToolID: "t3", Fragment: `{"step":3}`}},
		},
		{
			{Text: "all three checked"},
		},
	}}
	r := testRobot(t, backend, func(o *Options) { o.Catalog = reg })

	events, err := r.RespondStreaming(context.Background(), turnReq())
	require.NoError(t, err)

	var started, finished []string
	for ev := range events {
		switch ev.Type {
		case EventToolStarted:
			started = append(started, ev.Tool.Name)
		case EventToolResult:
			finished = append(finished, ev.Tool.Name)
			// Sequential execution: a tool's result lands before the
			// next tool starts.
			assert.Len(t, started, len(finished))
		case EventToolError:
			t.Fatalf("unexpected tool error: %s", ev.Tool.Err)
		}
	}

	want := []string{"alpha", "bravo", "charlie"}
	assert.Equal(t, want, started, "invocation order, regardless of latency")
	assert.Equal(t, want, finished)
}

func TestRespondStreaming_MalformedToolArgs(t *testing.T) {
	backend := &scriptedStreamBackend{scripts: [][]Delta{
		{
			{ToolStart: &ToolUse{ID: "t1", Name: "echo"}},
			{ToolArgs: &ArgsFragment{ToolID: "t1", Fragment: `{"broken`}},
		},
		{
			{Text: "answered without the tool"},
		},
	}}
	r := testRobot(t, backend)

	events, err := r.RespondStreaming(context.Background(), turnReq())
	require.NoError(t, err)

	var toolErr *ToolOutcome
	var last Event
	for ev := range events {
		if ev.Type == EventToolError {
			toolErr = ev.Tool
		}
		last = ev
	}

	require.NotNil(t, toolErr, "malformed arguments surface as a tool error event")
	assert.Contains(t, toolErr.Err, "argument parse error")
	assert.Equal(t, EventDone, last.Type, "the turn recovers and still completes")
	assert.Equal(t, "answered without the tool", last.Text)
}

func TestRespondStreaming_ModelFailure(t *testing.T) {
	backend := &scriptedBackend{errs: []error{errors.New("model unavailable")}}
	r := testRobot(t, backend)

	events, err := r.RespondStreaming(context.Background(), turnReq())
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, EventStarted, got[0].Type)
	assert.Equal(t, EventFailed, got[1].Type)
	assert.Contains(t, got[1].Err, "model unavailable")
}

func TestRespondStreaming_MidStreamFailure(t *testing.T) {
	backend := &scriptedStreamBackend{scripts: [][]Delta{
		{
			{Text: "partial "},
			{Err: errors.New("connection reset")},
		},
	}}
	r := testRobot(t, backend)

	events, err := r.RespondStreaming(context.Background(), turnReq())
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	last := got[len(got)-1]
	assert.Equal(t, EventFailed, last.Type)
	assert.Contains(t, last.Err, "connection reset")
}

func TestBuildRequest_TokenBudget(t *testing.T) {
	backend := &scriptedBackend{completions: []*Completion{
		{Segments: []Segment{TextSegment("ok")}},
	}}
	// Budget fits only the newest history message (each is ~4 tokens).
	r := testRobot(t, backend, func(o *Options) { o.TokenBudget = 5 })

	history := []*store.Message{
		msg(store.RoleAgent, "older context"),
		msg(store.RoleRobot, "newest"),
	}
	_, err := r.RespondImmediate(context.Background(), turnReq(history...))
	require.NoError(t, err)

	req := r.buildRequest(turnReq(history...))
	require.Len(t, req.Messages, 2, "one budgeted history message plus the inbound message")
	assert.Equal(t, "assistant", req.Messages[0].Role)
	assert.Equal(t, "newest", req.Messages[0].Content)
	assert.Equal(t, "please help", req.Messages[1].Content)
}

func TestBuildRequest_AdvertisesCatalog(t *testing.T) {
	backend := &scriptedBackend{}
	r := testRobot(t, backend)

	req := r.buildRequest(turnReq())
	names := make([]string, len(req.Tools))
	for i, d := range req.Tools {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"echo", "boom"}, names)
	assert.Equal(t, "You are a support robot.", req.SystemPrompt)
}

func TestNewSupportRobot_Validation(t *testing.T) {
	_, err := NewSupportRobot(Options{Catalog: testCatalog(t)})
	assert.ErrorContains(t, err, "backend is required")

	_, err = NewSupportRobot(Options{Backend: &scriptedBackend{}})
	assert.ErrorContains(t, err, "catalog is required")
}

func TestModelTimeout(t *testing.T) {
	block := &blockingBackend{}
	r := testRobot(t, block, func(o *Options) { o.ModelTimeout = 20 * time.Millisecond })

	answer, err := r.RespondImmediate(context.Background(), turnReq())
	require.NoError(t, err)
	assert.Contains(t, answer, "Sorry", "a timed-out model call fails soft")
}

type blockingBackend struct{}

func (b *blockingBackend) Complete(ctx context.Context, req *Request) (*Completion, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
