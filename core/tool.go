package core

import (
	"context"
	"encoding/json"
)

// ToolDefinition declares a named capability: its input contract and
// whether executing it mutates shared state.
type ToolDefinition struct {
	// ToolName is the identifier the model uses to select this tool.
	ToolName string

	// ToolDescription tells the model when and how to use the tool.
	ToolDescription string

	// InputSchema is a JSON Schema (draft 2020-12) describing the
	// arguments. Arguments are validated against it before execution.
	InputSchema map[string]interface{}

	// Mutating marks tools that change shared state (e.g. favorites).
	// Mutating tools must be idempotent under retry.
	Mutating bool
}

// ToolParams carries the validated input for one execution.
type ToolParams struct {
	SessionID string
	Input     json.RawMessage
	RequestID string
}

// ToolResult is the uniform outcome of a tool execution.
type ToolResult struct {
	Success bool
	Error   string
	Data    interface{}

	// References lists movies surfaced by this execution, used by the
	// orchestrator to build the grounding context.
	References []MovieRef

	// Retrieved carries ranked retrieval results when the tool performed
	// a semantic search.
	Retrieved []RetrievalResult
}

// Tool is a named, schema-typed capability the orchestrator can invoke.
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, params *ToolParams) (*ToolResult, error)
}

// ToolCall is the record of one dispatch through the registry, scoped to
// a single orchestrator step.
type ToolCall struct {
	Tool   string
	Args   json.RawMessage
	Result *ToolResult
	Err    error
}

// FuncTool adapts a plain function into a Tool.
type FuncTool struct {
	Def ToolDefinition
	Fn  func(ctx context.Context, params *ToolParams) (*ToolResult, error)
}

func (t *FuncTool) Definition() ToolDefinition { return t.Def }

func (t *FuncTool) Execute(ctx context.Context, params *ToolParams) (*ToolResult, error) {
	return t.Fn(ctx, params)
}
