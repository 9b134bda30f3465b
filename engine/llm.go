package engine

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
)

// LLM is the narrow slice of the Anthropic client the engine consumes.
// Tests script it; production wraps the real client.
type LLM interface {
	CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

type anthropicLLM struct {
	client *anthropic.Client
}

// NewAnthropicLLM wraps an Anthropic client as the engine's LLM.
func NewAnthropicLLM(client *anthropic.Client) LLM {
	return &anthropicLLM{client: client}
}

func (a *anthropicLLM) CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return a.client.Messages.New(ctx, params)
}
