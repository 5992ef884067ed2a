// ABOUTME: Tagged event stream emitted by a robot turn in streaming mode.
// ABOUTME: Consumers fan these out to websocket rooms or fold them into messages.

package robot

import "fmt"

// EventType tags one streaming turn event.
type EventType int

const (
	// EventStarted opens the stream; always first.
	EventStarted EventType = iota
	// EventText carries an incremental chunk of answer text.
	EventText
	// EventToolStarted announces that a tool is about to run.
	EventToolStarted
	// EventToolResult carries a successful tool result.
	EventToolResult
	// EventToolError carries a tool failure folded into the transcript.
	EventToolError
	// EventAnalysis marks the boundary before the post-tool model round.
	EventAnalysis
	// EventDone closes a successful stream and carries the full answer.
	EventDone
	// EventFailed closes a failed stream; terminal, nothing follows.
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventText:
		return "text"
	case EventToolStarted:
		return "tool_started"
	case EventToolResult:
		return "tool_result"
	case EventToolError:
		return "tool_error"
	case EventAnalysis:
		return "analysis"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is one unit of a streaming turn.
type Event struct {
	Type EventType    `json:"type"`
	Text string       `json:"text,omitempty"` // EventText chunk; EventDone full answer
	Tool *ToolOutcome `json:"tool,omitempty"` // tool lifecycle events
	Err  string       `json:"error,omitempty"`
}

// ToolOutcome records one tool execution inside a turn. Err is set for
// failures (execution errors and argument parse errors alike); the turn
// continues either way.
type ToolOutcome struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Args   string `json:"args,omitempty"`
	Result string `json:"result,omitempty"`
	Err    string `json:"error,omitempty"`
}
