// ABOUTME: Dispatcher routes store events to rooms and robot-addressed messages to robots.
// ABOUTME: Robot turns run off the observer goroutine; replies re-enter through the store.

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/parley/internal/history"
	"github.com/2389/parley/internal/robot"
	"github.com/2389/parley/internal/snapshot"
	"github.com/2389/parley/internal/store"
)

// Mode selects how a robot's response is produced and relayed.
type Mode string

const (
	ModeImmediate Mode = "immediate"
	ModeStreaming Mode = "streaming"
	ModeMultiPart Mode = "multipart"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeImmediate, ModeStreaming, ModeMultiPart:
		return Mode(s), nil
	case "":
		return ModeImmediate, nil
	}
	return "", fmt.Errorf("unknown robot mode %q", s)
}

// Binding pairs a robot with its response mode.
type Binding struct {
	Robot robot.Robot
	Mode  Mode
}

// Options configures a Dispatcher.
type Options struct {
	Store       store.Store
	Broadcaster *Broadcaster
	// Robots maps conversation IDs to dedicated bindings. Conversations
	// without an entry fall back to Default.
	Robots  map[string]Binding
	Default *Binding
	// Sink is optional; nil disables snapshots without affecting dispatch.
	Sink   snapshot.Sink
	Logger *slog.Logger
}

// Dispatcher observes the store and does two jobs: republish every mutation
// event to its rooms, and answer robot-addressed messages by running a robot
// turn. Replies and tool traces are persisted back through the store, so they
// reach rooms the same way any message does.
type Dispatcher struct {
	store       store.Store
	broadcaster *Broadcaster
	robots      map[string]Binding
	fallback    *Binding
	sink        snapshot.Sink
	logger      *slog.Logger

	ctx   context.Context
	turns sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Store and Broadcaster are required.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("dispatcher: store is required")
	}
	if opts.Broadcaster == nil {
		return nil, fmt.Errorf("dispatcher: broadcaster is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:       opts.Store,
		broadcaster: opts.Broadcaster,
		robots:      opts.Robots,
		fallback:    opts.Default,
		sink:        opts.Sink,
		logger:      logger.With("component", "dispatcher"),
	}, nil
}

// Start attaches the dispatcher to the store's event feed. ctx bounds every
// robot turn the dispatcher spawns.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx = ctx
	d.store.Subscribe(d)
	d.logger.Info("Dispatcher started", "bound_robots", len(d.robots), "has_default", d.fallback != nil)
}

// Wait blocks until every in-flight robot turn has finished.
func (d *Dispatcher) Wait() {
	d.turns.Wait()
}

// OnStoreEvent implements store.Observer. Republishing is synchronous and
// non-blocking; robot turns move to their own goroutine because they write
// back into the store.
func (d *Dispatcher) OnStoreEvent(event store.Event) {
	d.broadcaster.Publish(&event)

	if event.Type != store.EventNewMessage || event.Message == nil {
		return
	}

	// The debug sink sees the conversation after every append, robot
	// replies and tool traces included.
	d.recordSnapshot(d.ctx, event.ConversationID)

	if !triggersRobot(event.Message) {
		return
	}

	d.turns.Add(1)
	go func(msg *store.Message) {
		defer d.turns.Done()
		d.runTurn(d.ctx, msg)
	}(event.Message)
}

// triggersRobot reports whether a message should start a robot turn: human
// senders addressing the robot role. Robot replies and debug traces never
// re-trigger, so turns cannot loop.
func triggersRobot(msg *store.Message) bool {
	if msg.ToRole != store.RoleRobot {
		return false
	}
	switch msg.FromRole {
	case store.RoleCustomer, store.RoleAgent, store.RoleSupervisor:
		return true
	}
	return false
}

// binding resolves the robot for a conversation.
func (d *Dispatcher) binding(conversationID string) (Binding, bool) {
	if b, ok := d.robots[conversationID]; ok {
		return b, true
	}
	if d.fallback != nil {
		return *d.fallback, true
	}
	return Binding{}, false
}

func (d *Dispatcher) runTurn(ctx context.Context, msg *store.Message) {
	b, ok := d.binding(msg.ConversationID)
	if !ok {
		d.logger.Warn("No robot bound for conversation", "conversation_id", msg.ConversationID)
		return
	}

	req, err := d.buildRequest(ctx, msg)
	if err != nil {
		d.logger.Error("Failed to build robot request",
			"conversation_id", msg.ConversationID, "error", err)
		return
	}

	d.logger.Info("Robot turn starting",
		"conversation_id", msg.ConversationID,
		"robot", b.Robot.Name(),
		"mode", string(b.Mode))

	switch b.Mode {
	case ModeStreaming:
		d.runStreaming(ctx, b, msg, req)
	case ModeMultiPart:
		answer, err := b.Robot.RespondMultiPart(ctx, req, func(outcome robot.ToolOutcome) {
			d.persistToolOutcome(ctx, b.Robot.Name(), msg.ConversationID, outcome)
		})
		if err != nil {
			d.logger.Error("Multi-part turn failed", "conversation_id", msg.ConversationID, "error", err)
			return
		}
		d.persistAnswer(ctx, b.Robot.Name(), msg, answer)
	default:
		answer, err := b.Robot.RespondImmediate(ctx, req)
		if err != nil {
			d.logger.Error("Immediate turn failed", "conversation_id", msg.ConversationID, "error", err)
			return
		}
		d.persistAnswer(ctx, b.Robot.Name(), msg, answer)
	}
}

// runStreaming consumes a streaming turn event-by-event. Text accumulates
// into the final robot message; tool outcomes are persisted as they happen.
func (d *Dispatcher) runStreaming(ctx context.Context, b Binding, msg *store.Message, req *robot.TurnRequest) {
	events, err := b.Robot.RespondStreaming(ctx, req)
	if err != nil {
		d.logger.Error("Streaming turn failed to start", "conversation_id", msg.ConversationID, "error", err)
		return
	}

	for ev := range events {
		switch ev.Type {
		case robot.EventToolResult, robot.EventToolError:
			if ev.Tool != nil {
				d.persistToolOutcome(ctx, b.Robot.Name(), msg.ConversationID, *ev.Tool)
			}
		case robot.EventDone:
			d.persistAnswer(ctx, b.Robot.Name(), msg, ev.Text)
		case robot.EventFailed:
			d.persistFailure(ctx, b.Robot.Name(), msg.ConversationID, ev.Err)
		}
	}
}

// buildRequest assembles the robot-visible history for a turn, excluding the
// triggering message itself (it rides along separately).
func (d *Dispatcher) buildRequest(ctx context.Context, msg *store.Message) (*robot.TurnRequest, error) {
	ix, err := history.ForConversation(ctx, d.store, msg.ConversationID)
	if err != nil {
		return nil, err
	}

	visible := ix.ForRobotProcessing()
	hist := make([]*store.Message, 0, len(visible))
	for _, m := range visible {
		if m.ID == msg.ID {
			continue
		}
		hist = append(hist, m)
	}

	return &robot.TurnRequest{
		ConversationID: msg.ConversationID,
		History:        hist,
		Message:        msg,
	}, nil
}

// persistAnswer appends the robot's final answer, addressed back to whoever
// asked. Robot-kind messages stay invisible to customers.
func (d *Dispatcher) persistAnswer(ctx context.Context, robotName string, trigger *store.Message, answer string) {
	if answer == "" {
		return
	}
	author := robotName
	_, err := d.store.AddMessage(ctx, store.MessageDraft{
		ConversationID:    trigger.ConversationID,
		Content:           store.TextContent(answer),
		AuthorID:          &author,
		FromRole:          store.RoleRobot,
		ToRole:            trigger.FromRole,
		Kind:              store.KindRobot,
		OriginalMessageID: &trigger.ID,
	})
	if err != nil {
		d.logger.Error("Failed to persist robot answer",
			"conversation_id", trigger.ConversationID, "error", err)
	}
}

// persistToolOutcome appends one tool trace as a supervisor-addressed debug
// message so dashboards see tool activity but customers never do.
func (d *Dispatcher) persistToolOutcome(ctx context.Context, robotName, conversationID string, outcome robot.ToolOutcome) {
	author := robotName
	data := map[string]any{
		"tool": outcome.Name,
		"args": outcome.Args,
	}
	if outcome.Err != "" {
		data["error"] = outcome.Err
	} else {
		data["result"] = outcome.Result
	}

	_, err := d.store.AddMessage(ctx, store.MessageDraft{
		ConversationID: conversationID,
		Content:        store.StructuredContent(data),
		AuthorID:       &author,
		FromRole:       store.RoleSystemDebug,
		ToRole:         store.RoleSupervisor,
		Kind:           store.KindRobot,
	})
	if err != nil {
		d.logger.Error("Failed to persist tool outcome",
			"conversation_id", conversationID, "tool", outcome.Name, "error", err)
	}
}

// persistFailure appends a debug notice for a failed streaming turn so agents
// know the robot went silent.
func (d *Dispatcher) persistFailure(ctx context.Context, robotName, conversationID, errText string) {
	author := robotName
	_, err := d.store.AddMessage(ctx, store.MessageDraft{
		ConversationID: conversationID,
		Content:        store.StructuredContent(map[string]any{"robot_error": errText}),
		AuthorID:       &author,
		FromRole:       store.RoleSystemDebug,
		ToRole:         store.RoleSupervisor,
		Kind:           store.KindSystem,
	})
	if err != nil {
		d.logger.Error("Failed to persist robot failure notice",
			"conversation_id", conversationID, "error", err)
	}
}

func (d *Dispatcher) recordSnapshot(ctx context.Context, conversationID string) {
	if d.sink == nil {
		return
	}
	snap, err := snapshot.Capture(ctx, d.store, conversationID)
	if err != nil {
		d.logger.Error("Snapshot capture failed", "conversation_id", conversationID, "error", err)
		return
	}
	if err := d.sink.RecordSnapshot(ctx, snap); err != nil {
		d.logger.Error("Snapshot record failed", "conversation_id", conversationID, "error", err)
	}
}
