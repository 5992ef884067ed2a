// ABOUTME: Turn state machine: model call, sequential tool execution, one follow-up round.
// ABOUTME: Shared by all three response modes; modes differ only in how events leave the turn.

package robot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/2389/parley/internal/catalog"
)

// State is the phase of a turn. Transitions are linear with at most one
// tool loop: idle -> model_requested -> (answer_ready | tools_detected ->
// tools_executing -> model_requested -> answer_ready) -> idle.
type State int

const (
	StateIdle State = iota
	StateModelRequested
	StateToolsDetected
	StateToolsExecuting
	StateAnswerReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateModelRequested:
		return "model_requested"
	case StateToolsDetected:
		return "tools_detected"
	case StateToolsExecuting:
		return "tools_executing"
	case StateAnswerReady:
		return "answer_ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// turn executes one robot turn. The sink receives streaming events when set;
// onTool is called after each tool execution when set. Neither is required.
type turn struct {
	robot  *SupportRobot
	state  State
	sink   func(Event)
	onTool func(ToolOutcome)
	logger *slog.Logger
}

func (t *turn) transition(next State) {
	t.logger.Debug("Turn state transition", "from", t.state.String(), "to", next.String())
	t.state = next
}

func (t *turn) emit(ev Event) {
	if t.sink != nil {
		t.sink(ev)
	}
}

// run drives the turn to completion and returns the final answer text.
// Tool failures are folded into the transcript and never abort the turn;
// only model-call failures return an error.
func (t *turn) run(ctx context.Context, req *Request) (string, error) {
	t.transition(StateModelRequested)
	first, err := t.complete(ctx, req, t.textSink())
	if err != nil {
		t.transition(StateIdle)
		return "", fmt.Errorf("model call failed: %w", err)
	}

	uses := first.ToolUses()
	if len(uses) == 0 {
		answer := first.Text()
		t.transition(StateAnswerReady)
		t.transition(StateIdle)
		return answer, nil
	}

	t.transition(StateToolsDetected)
	t.transition(StateToolsExecuting)
	outcomes := make([]ToolOutcome, 0, len(uses))
	for _, use := range uses {
		outcomes = append(outcomes, t.execute(ctx, use))
	}

	// One follow-up round only: tool uses in the second completion are
	// ignored rather than executed, so a misbehaving model cannot recurse.
	t.transition(StateModelRequested)
	t.emit(Event{Type: EventAnalysis})
	second, err := t.complete(ctx, resumeRequest(req, first, outcomes), t.textSink())
	if err != nil {
		t.transition(StateIdle)
		return "", fmt.Errorf("follow-up model call failed: %w", err)
	}
	if extra := second.ToolUses(); len(extra) > 0 {
		t.logger.Warn("Ignoring tool uses in follow-up round", "count", len(extra))
	}

	answer := second.Text()
	t.transition(StateAnswerReady)
	t.transition(StateIdle)
	return answer, nil
}

// textSink forwards incremental text to the event sink, or nil when the
// mode does not stream.
func (t *turn) textSink() func(string) {
	if t.sink == nil {
		return nil
	}
	return func(chunk string) {
		t.emit(Event{Type: EventText, Text: chunk})
	}
}

// complete issues one model call, streaming deltas through onText when the
// backend supports it. The robot's model timeout bounds the call.
func (t *turn) complete(ctx context.Context, req *Request, onText func(string)) (*Completion, error) {
	if t.robot.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.robot.modelTimeout)
		defer cancel()
	}

	if sb, ok := t.robot.backend.(StreamingBackend); ok && onText != nil {
		deltas, err := sb.CompleteStream(ctx, req)
		if err != nil {
			return nil, err
		}
		return collectStream(ctx, deltas, onText)
	}

	comp, err := t.robot.backend.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if onText != nil {
		if text := comp.Text(); text != "" {
			onText(text)
		}
	}
	return comp, nil
}

// execute runs one tool invocation and reports the outcome through the
// sink and the onTool callback. Argument parse failures and execution
// failures are recorded, not raised.
func (t *turn) execute(ctx context.Context, use *ToolUse) ToolOutcome {
	outcome := ToolOutcome{ID: use.ID, Name: use.Name, Args: use.ArgsJSON}
	t.emit(Event{Type: EventToolStarted, Tool: &ToolOutcome{ID: use.ID, Name: use.Name, Args: use.ArgsJSON}})

	args := json.RawMessage(use.ArgsJSON)
	if use.ArgsJSON == "" {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		outcome.Err = fmt.Sprintf("argument parse error: tool %q received malformed argument JSON", use.Name)
	} else if result, err := catalog.Execute(ctx, t.robot.catalog, use.Name, args); err != nil {
		outcome.Err = err.Error()
	} else {
		outcome.Result = string(result)
	}

	if outcome.Err != "" {
		t.logger.Warn("Tool execution failed", "tool", use.Name, "error", outcome.Err)
		t.emit(Event{Type: EventToolError, Tool: &outcome})
	} else {
		t.logger.Debug("Tool executed", "tool", use.Name)
		t.emit(Event{Type: EventToolResult, Tool: &outcome})
	}
	if t.onTool != nil {
		t.onTool(outcome)
	}
	return outcome
}

// resumeRequest extends the original request with the assistant's first
// round and every tool outcome, success and failure tagged uniformly.
func resumeRequest(req *Request, first *Completion, outcomes []ToolOutcome) *Request {
	messages := make([]ChatMessage, 0, len(req.Messages)+1+len(outcomes))
	messages = append(messages, req.Messages...)
	messages = append(messages, ChatMessage{Role: "assistant", Content: renderAssistantTurn(first)})
	for _, outcome := range outcomes {
		payload, _ := json.Marshal(outcome)
		messages = append(messages, ChatMessage{Role: "tool", Content: string(payload)})
	}
	return &Request{
		SystemPrompt: req.SystemPrompt,
		Messages:     messages,
		Tools:        req.Tools,
	}
}

// renderAssistantTurn flattens a completion into a single message body,
// keeping tool invocations visible to the follow-up round.
func renderAssistantTurn(comp *Completion) string {
	type renderedUse struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Args string `json:"args"`
	}
	text := comp.Text()
	uses := comp.ToolUses()
	if len(uses) == 0 {
		return text
	}
	rendered := make([]renderedUse, 0, len(uses))
	for _, use := range uses {
		rendered = append(rendered, renderedUse{ID: use.ID, Name: use.Name, Args: use.ArgsJSON})
	}
	payload, _ := json.Marshal(rendered)
	if text == "" {
		return fmt.Sprintf("[tool calls] %s", payload)
	}
	return fmt.Sprintf("%s\n[tool calls] %s", text, payload)
}
