// Package tools holds the closed set of capabilities the orchestrator
// can dispatch, plus the registry that validates and executes them.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/DarioTortorici/cinetech/core"
)

// Registry maps tool names to implementations. The set is fixed at
// wiring time; dispatch is a closed table lookup, never reflection.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]core.Tool
	schemas    map[string]*jsonschema.Schema
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
}

// Option configures the registry.
type Option func(*Registry)

// WithTimeout sets the per-execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithMaxRetries bounds retries of transient execution failures.
func WithMaxRetries(n int) Option {
	return func(r *Registry) { r.maxRetries = n }
}

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:      make(map[string]core.Tool),
		schemas:    make(map[string]*jsonschema.Schema),
		timeout:    15 * time.Second,
		maxRetries: 2,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool, compiling its input schema up front so a broken
// schema fails at wiring time rather than on first use.
func (r *Registry) Register(tool core.Tool) error {
	def := tool.Definition()
	if def.ToolName == "" {
		return fmt.Errorf("tool has empty name")
	}

	raw, err := json.Marshal(def.InputSchema)
	if err != nil {
		return fmt.Errorf("marshal schema for %s: %w", def.ToolName, err)
	}
	schema, err := jsonschema.CompileString(def.ToolName+".schema.json", string(raw))
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", def.ToolName, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.ToolName]; exists {
		return fmt.Errorf("tool %s already registered", def.ToolName)
	}
	r.tools[def.ToolName] = tool
	r.schemas[def.ToolName] = schema
	return nil
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (core.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToAPITools converts registered definitions to Anthropic tool params.
func (r *Registry) ToAPITools() []anthropic.ToolUnionParam {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]anthropic.ToolUnionParam, 0, len(names))
	for _, name := range names {
		def := r.tools[name].Definition()
		toolParam := anthropic.ToolParam{
			Name:        def.ToolName,
			Description: anthropic.String(def.ToolDescription),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: def.InputSchema["properties"],
			},
		}
		if required, ok := def.InputSchema["required"].([]string); ok {
			toolParam.InputSchema.Required = required
		}
		params = append(params, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return params
}

// Invoke dispatches one tool call: resolve, validate, execute, wrap.
// Raw collaborator errors never reach the caller; they come back as
// *core.UnknownToolError, *core.InvalidArgumentsError or
// *core.ToolExecutionError.
func (r *Registry) Invoke(ctx context.Context, sessionID, name string, rawArgs json.RawMessage) *core.ToolCall {
	call := &core.ToolCall{Tool: name, Args: rawArgs}

	tool, ok := r.Get(name)
	if !ok {
		call.Err = &core.UnknownToolError{Tool: name}
		return call
	}

	if err := r.validate(name, rawArgs); err != nil {
		call.Err = err
		return call
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.maxRetries)),
		ctx,
	)

	var result *core.ToolResult
	op := func() error {
		execCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		var execErr error
		result, execErr = tool.Execute(execCtx, &core.ToolParams{
			SessionID: sessionID,
			Input:     rawArgs,
		})
		if execErr != nil {
			// Definitive answers are not transient provider faults.
			if errors.Is(execErr, core.ErrNotFound) {
				return backoff.Permanent(execErr)
			}
			return execErr
		}
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		r.logger.Warn("tool execution failed",
			zap.String("tool", name), zap.Error(err))
		call.Err = &core.ToolExecutionError{
			Tool:     name,
			Category: core.Categorize(err),
			Cause:    err,
		}
		return call
	}

	call.Result = result
	return call
}

// validate checks raw arguments against the tool's compiled schema.
// Invalid arguments never reach the executor.
func (r *Registry) validate(name string, rawArgs json.RawMessage) error {
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()

	if len(rawArgs) == 0 {
		rawArgs = json.RawMessage("{}")
	}

	var decoded interface{}
	if err := json.Unmarshal(rawArgs, &decoded); err != nil {
		return &core.InvalidArgumentsError{Tool: name, Reason: "arguments are not valid JSON"}
	}

	if err := schema.Validate(decoded); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			field, reason := describeViolation(verr)
			return &core.InvalidArgumentsError{Tool: name, Field: field, Reason: reason}
		}
		return &core.InvalidArgumentsError{Tool: name, Reason: err.Error()}
	}
	return nil
}

// describeViolation extracts the offending field and message from the
// deepest validation cause.
func describeViolation(verr *jsonschema.ValidationError) (field, reason string) {
	cause := verr
	for len(cause.Causes) > 0 {
		cause = cause.Causes[0]
	}

	reason = cause.Message
	if loc := strings.TrimPrefix(cause.InstanceLocation, "/"); loc != "" {
		field = strings.SplitN(loc, "/", 2)[0]
		return field, reason
	}

	// Missing required properties are reported at the object root as
	// `missing properties: 'x'`.
	if idx := strings.Index(reason, "'"); idx >= 0 {
		rest := reason[idx+1:]
		if end := strings.Index(rest, "'"); end > 0 {
			field = rest[:end]
		}
	}
	return field, reason
}
