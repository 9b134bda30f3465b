// Package engine runs the conversational agent: it routes a user
// message through the language model, dispatches tool calls, grounds
// the answer in tool output and records the exchange in memory.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/DarioTortorici/cinetech/core"
	"github.com/DarioTortorici/cinetech/favorites"
	"github.com/DarioTortorici/cinetech/memory"
	"github.com/DarioTortorici/cinetech/tools"
)

// Config bounds one engine's generation behavior.
type Config struct {
	Model      string
	MaxTokens  int64
	Timeout    time.Duration
	MaxRetries int

	// MaxToolRounds bounds model/tool round-trips per run. When the
	// budget is spent, the model answers with whatever grounding it has.
	MaxToolRounds int

	// GroundingBudget caps the character size of the retrieved-context
	// block injected into the system prompt.
	GroundingBudget int
}

// Input is one user request.
type Input struct {
	SessionID   string
	UserMessage string
}

// Output is the engine's reply. The engine always produces an answer;
// provider failures degrade the output instead of erroring.
type Output struct {
	Text       string
	References []core.MovieRef

	// Grounded reports whether the answer is backed by catalog facts
	// retrieved during this run.
	Grounded bool

	// Degraded reports that generation itself failed and Text is the
	// fallback apology.
	Degraded bool

	ToolsUsed  []core.ToolExecution
	TokensUsed core.TokenUsage
}

// Engine is the agent orchestrator.
type Engine struct {
	llm           LLM
	registry      *tools.Registry
	conversations *memory.Conversations
	favorites     *favorites.Store
	cfg           Config
	logger        *zap.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithFavorites lets the engine surface the session's favorites in the
// system prompt.
func WithFavorites(store *favorites.Store) Option {
	return func(e *Engine) { e.favorites = store }
}

// New creates an engine.
func New(llm LLM, registry *tools.Registry, conversations *memory.Conversations, cfg Config, opts ...Option) *Engine {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxToolRounds < 1 {
		cfg.MaxToolRounds = 4
	}
	if cfg.GroundingBudget <= 0 {
		cfg.GroundingBudget = 4000
	}

	e := &Engine{
		llm:           llm,
		registry:      registry,
		conversations: conversations,
		cfg:           cfg,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run handles one user message end to end. The returned error covers
// invalid input only: once a run starts, failures downstream produce a
// degraded Output rather than an error, so the caller always has
// something to show the user.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.SessionID == "" {
		return nil, fmt.Errorf("session id must not be empty")
	}
	if input.UserMessage == "" {
		return nil, fmt.Errorf("user message must not be empty")
	}

	view := e.conversations.Read(input.SessionID)

	var favTitles []string
	if e.favorites != nil {
		favTitles = favoriteTitles(e.favorites.List(input.SessionID))
	}

	msgs := historyMessages(view.Turns)
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(input.UserMessage)))

	apiTools := e.registry.ToAPITools()
	ground := newGrounding()
	out := &Output{}

	var finalText string
	failed := false

	for round := 0; round <= e.cfg.MaxToolRounds; round++ {
		if ctx.Err() != nil {
			failed = true
			break
		}

		// The last round withholds tools, forcing a final answer from
		// the grounding gathered so far.
		allowTools := round < e.cfg.MaxToolRounds && len(apiTools) > 0

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(e.cfg.Model),
			MaxTokens: e.cfg.MaxTokens,
			Messages:  msgs,
			System: []anthropic.TextBlockParam{
				{Text: buildSystem(view.Summary, favTitles, ground.contextBlock(e.cfg.GroundingBudget))},
			},
		}
		if allowTools {
			params.Tools = apiTools
		}

		resp, err := e.generate(ctx, params)
		if err != nil {
			e.logger.Error("generation failed",
				zap.String("session_id", input.SessionID),
				zap.Int("round", round),
				zap.Error(err))
			failed = true
			break
		}
		out.TokensUsed.InputTokens += int(resp.Usage.InputTokens)
		out.TokensUsed.OutputTokens += int(resp.Usage.OutputTokens)

		var text string
		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text += block.Text
			case "tool_use":
				if !allowTools {
					continue
				}
				result := e.dispatch(ctx, input.SessionID, block.ID, block.Name, block.Input, ground, out)
				toolResults = append(toolResults, result)
			}
		}

		if len(toolResults) == 0 {
			finalText = text
			break
		}
		msgs = append(msgs, resp.ToParam())
		msgs = append(msgs, anthropic.NewUserMessage(toolResults...))
	}

	if failed || finalText == "" {
		finalText = degradedAnswer
		out.Degraded = true
	}

	out.Text = finalText
	out.References = ground.references()
	out.Grounded = !out.Degraded && ground.sawSuccess

	var agentPayload interface{}
	if len(out.ToolsUsed) > 0 {
		agentPayload = out.ToolsUsed
	}
	e.conversations.AppendExchange(input.SessionID, []memory.Entry{
		{Role: core.RoleUser, Content: input.UserMessage},
		{Role: core.RoleAgent, Content: out.Text, Payload: agentPayload},
	})

	e.logger.Info("run complete",
		zap.String("session_id", input.SessionID),
		zap.Int("tools_used", len(out.ToolsUsed)),
		zap.Bool("grounded", out.Grounded),
		zap.Bool("degraded", out.Degraded),
		zap.Int("input_tokens", out.TokensUsed.InputTokens),
		zap.Int("output_tokens", out.TokensUsed.OutputTokens))
	return out, nil
}

// Reset discards a session's conversation.
func (e *Engine) Reset(sessionID string) {
	e.conversations.Reset(sessionID)
}

// generate calls the model with bounded retries. Retries stop early on
// context cancellation.
func (e *Engine) generate(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.cfg.MaxRetries)),
		ctx,
	)

	var resp *anthropic.Message
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		var err error
		resp, err = e.llm.CreateMessage(callCtx, params)
		return err
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrGenerationFailed, err)
	}
	return resp, nil
}

// dispatch runs one requested tool call and renders its result block
// for the model. Tool failures are reported back to the model as error
// results; they never abort the run.
func (e *Engine) dispatch(ctx context.Context, sessionID, blockID, name string, rawInput json.RawMessage, ground *grounding, out *Output) anthropic.ContentBlockParamUnion {
	start := time.Now()
	call := e.registry.Invoke(ctx, sessionID, name, rawInput)
	elapsed := time.Since(start)

	exec := core.ToolExecution{
		Tool:       name,
		Input:      json.RawMessage(rawInput),
		DurationMs: elapsed.Milliseconds(),
	}
	if call.Err != nil {
		exec.Error = call.Err.Error()
	} else if call.Result != nil {
		exec.Result = call.Result.Data
		if call.Result.Error != "" {
			exec.Error = call.Result.Error
		}
	}
	out.ToolsUsed = append(out.ToolsUsed, exec)
	ground.addCall(call)

	if call.Err != nil {
		if _, unknown := call.Err.(*core.UnknownToolError); unknown {
			// The model asked for a capability outside the registry.
			e.logger.Warn("model requested unknown tool",
				zap.String("session_id", sessionID),
				zap.String("tool", name))
		}
		return anthropic.NewToolResultBlock(blockID, safeErrorMessage(call.Err), true)
	}

	result := call.Result
	if result == nil {
		return anthropic.NewToolResultBlock(blockID, "tool returned no result", true)
	}
	if !result.Success {
		return anthropic.NewToolResultBlock(blockID, result.Error, true)
	}

	payload := map[string]interface{}{"data": result.Data}
	if len(result.References) > 0 {
		payload["references"] = result.References
	}
	body, err := json.Marshal(payload)
	if err != nil {
		e.logger.Warn("marshal tool result",
			zap.String("tool", name), zap.Error(err))
		return anthropic.NewToolResultBlock(blockID, "tool result could not be encoded", true)
	}
	return anthropic.NewToolResultBlock(blockID, clip(string(body), e.cfg.GroundingBudget), false)
}

// safeErrorMessage renders a dispatch error for the model without
// exposing raw transport detail.
func safeErrorMessage(err error) string {
	switch typed := err.(type) {
	case *core.UnknownToolError:
		return fmt.Sprintf("unknown tool %q", typed.Tool)
	case *core.InvalidArgumentsError:
		return typed.Error()
	case *core.ToolExecutionError:
		return fmt.Sprintf("tool %s failed: %s", typed.Tool, typed.Category)
	default:
		return "tool execution failed"
	}
}

// historyMessages rebuilds the model conversation from stored turns.
// Tool turns stay internal to past runs and are not replayed.
func historyMessages(turns []core.Turn) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		if turn.Content == "" {
			continue
		}
		switch turn.Role {
		case core.RoleUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		case core.RoleAgent:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	return msgs
}
