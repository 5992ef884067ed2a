// ABOUTME: Package documentation for the robot turn engine.
// ABOUTME: Explains the mode contracts and the single-round tool loop.

// Package robot runs LLM-backed support turns against a tool catalog.
//
// A turn is one inbound message answered by a model. When the model's
// completion contains tool invocations, the turn executes them sequentially
// in output order, then issues exactly one follow-up model call carrying
// every outcome. Tool failures, unknown tool names, and malformed argument
// JSON are folded into the transcript as tagged errors; they never abort the
// turn or its sibling tools. There is no recursion: tool uses in the
// follow-up round are logged and ignored.
//
// Three response modes share the same turn machine:
//
//   - Immediate: one call, one answer. Model failures fail soft into an
//     apology payload so the conversation always gets a reply.
//   - Streaming: a channel of tagged events, opened by EventStarted and
//     closed by EventDone or EventFailed.
//   - Multi-part: like immediate, plus a callback after each tool execution
//     so callers can surface intermediate results while the turn runs.
package robot
