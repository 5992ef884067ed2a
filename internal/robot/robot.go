// ABOUTME: Robot interface and the SupportRobot implementation of all three response modes.
// ABOUTME: Immediate and multi-part fail soft with an apology; streaming ends with a failed event.

package robot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/parley/internal/catalog"
	"github.com/2389/parley/internal/history"
	"github.com/2389/parley/internal/store"
)

// streamBuffer sizes the event channel of a streaming turn. A slow consumer
// backpressures the turn rather than dropping events.
const streamBuffer = 16

// TurnRequest is one inbound message plus the robot-visible history that
// precedes it, oldest first.
type TurnRequest struct {
	ConversationID string
	History        []*store.Message
	Message        *store.Message
}

// Robot answers support messages. Implementations must honor the mode
// contracts: immediate and multi-part never return a model failure as an
// error, streaming reports failure as a terminal event.
type Robot interface {
	Name() string
	// RespondImmediate produces a complete answer in one call. Model
	// failures are folded into an apology payload, not returned.
	RespondImmediate(ctx context.Context, req *TurnRequest) (string, error)
	// RespondStreaming produces a channel of turn events. The channel is
	// closed after a terminal EventDone or EventFailed.
	RespondStreaming(ctx context.Context, req *TurnRequest) (<-chan Event, error)
	// RespondMultiPart produces a complete answer, invoking onTool after
	// each tool execution so callers can surface intermediate parts.
	RespondMultiPart(ctx context.Context, req *TurnRequest, onTool func(ToolOutcome)) (string, error)
}

// Options configures a SupportRobot.
type Options struct {
	Name         string
	SystemPrompt string
	Backend      ModelBackend
	Catalog      catalog.Catalog
	TokenBudget  int           // 0 means no history trimming
	ModelTimeout time.Duration // 0 means no per-call deadline
	Estimator    history.TokenEstimator
	Logger       *slog.Logger
}

// SupportRobot is the production Robot: a model backend, a tool catalog,
// and a token budget for history windowing.
type SupportRobot struct {
	name         string
	systemPrompt string
	backend      ModelBackend
	catalog      catalog.Catalog
	tokenBudget  int
	modelTimeout time.Duration
	estimator    history.TokenEstimator
	logger       *slog.Logger
}

// NewSupportRobot creates a robot from options. Backend and Catalog are
// required; everything else has a usable default.
func NewSupportRobot(opts Options) (*SupportRobot, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("robot %q: backend is required", opts.Name)
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("robot %q: catalog is required", opts.Name)
	}
	name := opts.Name
	if name == "" {
		name = "support-robot"
	}
	estimator := opts.Estimator
	if estimator == nil {
		estimator = history.EstimateTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SupportRobot{
		name:         name,
		systemPrompt: opts.SystemPrompt,
		backend:      opts.Backend,
		catalog:      opts.Catalog,
		tokenBudget:  opts.TokenBudget,
		modelTimeout: opts.ModelTimeout,
		estimator:    estimator,
		logger:       logger.With("component", "robot", "robot", name),
	}, nil
}

// Name returns the robot's identifier.
func (r *SupportRobot) Name() string { return r.name }

// RespondImmediate runs a full turn and returns the answer. A model failure
// becomes an apology payload so the conversation always gets a reply.
func (r *SupportRobot) RespondImmediate(ctx context.Context, req *TurnRequest) (string, error) {
	t := r.newTurn(nil, nil)
	answer, err := t.run(ctx, r.buildRequest(req))
	if err != nil {
		r.logger.Error("Immediate turn failed", "conversation_id", req.ConversationID, "error", err)
		return apology(err), nil
	}
	return answer, nil
}

// RespondStreaming runs the turn in a goroutine and returns its event
// channel. EventStarted is always first; EventDone or EventFailed is last.
func (r *SupportRobot) RespondStreaming(ctx context.Context, req *TurnRequest) (<-chan Event, error) {
	events := make(chan Event, streamBuffer)
	t := r.newTurn(func(ev Event) { events <- ev }, nil)
	modelReq := r.buildRequest(req)

	go func() {
		defer close(events)
		events <- Event{Type: EventStarted}
		answer, err := t.run(ctx, modelReq)
		if err != nil {
			r.logger.Error("Streaming turn failed", "conversation_id", req.ConversationID, "error", err)
			events <- Event{Type: EventFailed, Err: err.Error()}
			return
		}
		events <- Event{Type: EventDone, Text: answer}
	}()

	return events, nil
}

// RespondMultiPart runs a full turn, reporting each tool execution through
// onTool as it happens. Like immediate mode, model failures fail soft.
func (r *SupportRobot) RespondMultiPart(ctx context.Context, req *TurnRequest, onTool func(ToolOutcome)) (string, error) {
	t := r.newTurn(nil, onTool)
	answer, err := t.run(ctx, r.buildRequest(req))
	if err != nil {
		r.logger.Error("Multi-part turn failed", "conversation_id", req.ConversationID, "error", err)
		return apology(err), nil
	}
	return answer, nil
}

func (r *SupportRobot) newTurn(sink func(Event), onTool func(ToolOutcome)) *turn {
	return &turn{robot: r, state: StateIdle, sink: sink, onTool: onTool, logger: r.logger}
}

// buildRequest maps robot-visible history plus the inbound message into
// model-facing chat messages, trimming to the token budget first.
func (r *SupportRobot) buildRequest(req *TurnRequest) *Request {
	msgs := req.History
	if r.tokenBudget > 0 {
		msgs = history.NewIndex(msgs).RecentWithinTokenBudget(r.tokenBudget, r.estimator)
	}

	chat := make([]ChatMessage, 0, len(msgs)+1)
	for _, m := range msgs {
		chat = append(chat, ChatMessage{Role: chatRole(m.FromRole), Content: m.Content.String()})
	}
	if req.Message != nil {
		chat = append(chat, ChatMessage{Role: "user", Content: req.Message.Content.String()})
	}

	return &Request{
		SystemPrompt: r.systemPrompt,
		Messages:     chat,
		Tools:        r.catalog.Definitions(),
	}
}

// chatRole maps store roles to model-facing roles: robot output is the
// assistant's, everything else is input.
func chatRole(role store.Role) string {
	if role == store.RoleRobot {
		return "assistant"
	}
	return "user"
}

// apology is the fail-soft payload for immediate and multi-part turns.
func apology(err error) string {
	return fmt.Sprintf("Sorry, I ran into a problem and could not finish answering. "+
		"Please try again, or ask a human agent to step in. (%v)", err)
}
