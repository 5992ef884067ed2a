// ABOUTME: Tool catalog contract: definitions advertised to models and executors dispatched by name.
// ABOUTME: Defines the error taxonomy for unknown tools and tool execution failures.

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrToolCollision indicates a tool name already exists in a registry.
var ErrToolCollision = errors.New("tool name collision")

// Definition describes a tool advertised to a model: its name, a description
// the model selects on, and a JSON-schema parameter spec.
type Definition struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	InputSchemaJSON string `json:"input_schema_json"`
}

// Executor runs one tool invocation. Executors may do I/O; they always
// present an async-safe contract and honor ctx.
type Executor func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Tool pairs a definition with its executor.
type Tool struct {
	Definition Definition
	Execute    Executor
}

// Catalog is a named registry of callable tools plus their externally
// advertised schemas. Lookup returns an explicit ok so dispatch never relies
// on sentinel results.
type Catalog interface {
	// Definitions returns every advertised tool definition in registration order.
	Definitions() []Definition

	// Lookup resolves a tool name to its executor.
	Lookup(name string) (Executor, bool)

	// Names returns every known tool name in registration order.
	Names() []string
}

// Execute dispatches an invocation through a catalog. Unknown names fail
// with *UnknownToolError listing every known tool; executor failures are
// wrapped in *ExecutionError so callers can fold them into a transcript
// without aborting the turn.
func Execute(ctx context.Context, c Catalog, name string, input json.RawMessage) (json.RawMessage, error) {
	exec, ok := c.Lookup(name)
	if !ok {
		return nil, &UnknownToolError{Name: name, Known: c.Names()}
	}

	out, err := exec(ctx, input)
	if err != nil {
		return nil, &ExecutionError{Tool: name, Err: err}
	}
	return out, nil
}

// UnknownToolError indicates a model requested a tool name absent from every
// composed catalog. The message lists all known names to make misconfigured
// model tool-selection debuggable.
type UnknownToolError struct {
	Name  string
	Known []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q (known tools: %s)", e.Name, strings.Join(e.Known, ", "))
}

// ExecutionError indicates a recognized tool's executor failed. Captured
// per-invocation; it never aborts sibling tool calls.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
