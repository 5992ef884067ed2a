// ABOUTME: Model backend contract: completion requests, ordered output segments, streaming deltas.
// ABOUTME: Includes reassembly of incremental tool-argument fragments into whole segments.

package robot

import (
	"context"
	"strings"

	"github.com/2389/parley/internal/catalog"
)

// ChatMessage is one entry of the model-facing history.
type ChatMessage struct {
	Role    string // "user", "assistant", "tool"
	Content string
}

// Request is the input to one model call.
type Request struct {
	SystemPrompt string
	Messages     []ChatMessage
	Tools        []catalog.Definition
}

// SegmentKind tags one unit of model output.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentToolUse
)

// ToolUse is a tool-invocation segment: the model's request to run a tool.
type ToolUse struct {
	ID       string
	Name     string
	ArgsJSON string
}

// Segment is a contiguous unit of model output, tagged as text or
// tool-invocation. Order within a completion is meaningful.
type Segment struct {
	Kind    SegmentKind
	Text    string   // SegmentText
	ToolUse *ToolUse // SegmentToolUse
}

// TextSegment builds a text segment.
func TextSegment(text string) Segment {
	return Segment{Kind: SegmentText, Text: text}
}

// ToolUseSegment builds a tool-invocation segment.
func ToolUseSegment(id, name, argsJSON string) Segment {
	return Segment{Kind: SegmentToolUse, ToolUse: &ToolUse{ID: id, Name: name, ArgsJSON: argsJSON}}
}

// Completion is the ordered output of one model call.
type Completion struct {
	Segments []Segment
}

// Text concatenates the completion's text segments in order.
func (c *Completion) Text() string {
	var b strings.Builder
	for _, seg := range c.Segments {
		if seg.Kind == SegmentText {
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

// ToolUses returns the completion's tool invocations in order.
func (c *Completion) ToolUses() []*ToolUse {
	var uses []*ToolUse
	for _, seg := range c.Segments {
		if seg.Kind == SegmentToolUse {
			uses = append(uses, seg.ToolUse)
		}
	}
	return uses
}

// ModelBackend is the minimal contract an LLM vendor adapter implements.
type ModelBackend interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
}

// ArgsFragment is an incremental piece of a tool invocation's argument JSON.
type ArgsFragment struct {
	ToolID   string
	Fragment string
}

// Delta is one increment of a streaming model call. Exactly one field is set.
type Delta struct {
	Text      string        // incremental text
	ToolStart *ToolUse      // announces an invocation (ID + Name; args follow)
	ToolArgs  *ArgsFragment // incremental argument JSON for a started invocation
	Err       error         // mid-stream failure; terminal
}

// StreamingBackend is the optional incremental variant. Deltas arrive in
// output order; tool-argument fragments are reassembled before execution.
type StreamingBackend interface {
	ModelBackend
	CompleteStream(ctx context.Context, req *Request) (<-chan Delta, error)
}

// collectStream drains a delta channel into a Completion, preserving segment
// order and reassembling tool-argument fragments per invocation ID. Fragment
// validity is not checked here; execution validates argument JSON and folds
// parse failures into the transcript as recoverable errors.
func collectStream(ctx context.Context, deltas <-chan Delta, onText func(string)) (*Completion, error) {
	comp := &Completion{}
	var textBuf strings.Builder
	argBufs := make(map[string]*strings.Builder) // tool ID -> args accumulator
	var openTools []*ToolUse                     // in announcement order

	flushText := func() {
		if textBuf.Len() > 0 {
			comp.Segments = append(comp.Segments, TextSegment(textBuf.String()))
			textBuf.Reset()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case delta, ok := <-deltas:
			if !ok {
				flushText()
				for _, use := range openTools {
					use.ArgsJSON = argBufs[use.ID].String()
				}
				return comp, nil
			}
			switch {
			case delta.Err != nil:
				return nil, delta.Err
			case delta.ToolStart != nil:
				flushText()
				use := &ToolUse{ID: delta.ToolStart.ID, Name: delta.ToolStart.Name}
				openTools = append(openTools, use)
				argBufs[use.ID] = &strings.Builder{}
				comp.Segments = append(comp.Segments, Segment{Kind: SegmentToolUse, ToolUse: use})
			case delta.ToolArgs != nil:
				if buf, known := argBufs[delta.ToolArgs.ToolID]; known {
					buf.WriteString(delta.ToolArgs.Fragment)
				}
			case delta.Text != "":
				textBuf.WriteString(delta.Text)
				if onText != nil {
					onText(delta.Text)
				}
			}
		}
	}
}
