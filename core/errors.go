package core

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for collaborator-level failures. Components retry
// transient causes internally and surface these only after exhausting
// their retry budget.
var (
	// ErrRetrievalUnavailable means the vector store could not be
	// reached. Distinct from an empty result set.
	ErrRetrievalUnavailable = errors.New("semantic index unavailable")

	// ErrEmbeddingUnavailable means the embedding provider failed after
	// bounded retries.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrGenerationFailed means the language model call failed or
	// produced unusable output.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrNotFound is returned by metadata lookups for unknown movies.
	ErrNotFound = errors.New("not found")

	// ErrSessionMemoryCorrupt signals a violated trimming invariant.
	// This is a bug, not a user-facing condition.
	ErrSessionMemoryCorrupt = errors.New("session memory corrupt")
)

// UnknownToolError is returned when a tool name does not resolve.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Tool)
}

// InvalidArgumentsError is returned when raw arguments fail schema
// validation. Non-retryable; the executor is never reached.
type InvalidArgumentsError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid arguments for %s: field %q: %s", e.Tool, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

// FailureCategory classifies the root cause of a tool execution failure.
type FailureCategory string

const (
	FailureTimeout     FailureCategory = "timeout"
	FailureUnavailable FailureCategory = "unavailable"
	FailureNotFound    FailureCategory = "not_found"
	FailureInternal    FailureCategory = "internal"
)

// ToolExecutionError wraps a collaborator failure behind a uniform shape
// so raw transport errors never leak to the orchestrator.
type ToolExecutionError struct {
	Tool     string
	Category FailureCategory
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed (%s): %v", e.Tool, e.Category, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// Categorize maps an error to a failure category for uniform wrapping.
func Categorize(err error) FailureCategory {
	switch {
	case err == nil:
		return FailureInternal
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	case errors.Is(err, ErrRetrievalUnavailable), errors.Is(err, ErrEmbeddingUnavailable):
		return FailureUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTimeout
	}
	var terr interface{ Timeout() bool }
	if errors.As(err, &terr) && terr.Timeout() {
		return FailureTimeout
	}
	return FailureInternal
}
