package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/codeloop/pkg/api"
	"github.com/rhuss/codeloop/pkg/debug"
	"github.com/rhuss/codeloop/pkg/observability"
	"github.com/rhuss/codeloop/pkg/provider"
)

// ErrMaxToolRounds ends a turn in which the model kept calling tools for
// Config.MaxToolRounds responses in a row.
var ErrMaxToolRounds = errors.New("maximum number of tool rounds reached")

// TurnResult describes how a turn ended.
type TurnResult struct {
	// Reply is the text of the final assistant message.
	Reply string

	// ToolError is set when the turn ended without a final answer: a tool
	// call was rejected (*api.ParseError, *api.MissingCodeError) or the
	// round limit was hit (ErrMaxToolRounds).
	ToolError error

	// Rounds is the number of provider calls made.
	Rounds int
}

// Engine drives one session against a provider.
type Engine struct {
	provider provider.Provider
	session  *Session
	cfg      Config
	tools    []provider.ProviderTool

	// turn serializes RunTurn calls.
	turn sync.Mutex
}

// New creates a new Engine. The provider and session must not be nil.
func New(p provider.Provider, session *Session, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	if session == nil {
		return nil, fmt.Errorf("engine: session must not be nil")
	}
	defs, err := translateTools(cfg.Executors)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return &Engine{
		provider: p,
		session:  session,
		cfg:      cfg,
		tools:    defs,
	}, nil
}

// Session returns the engine's conversation log.
func (e *Engine) Session() *Session {
	return e.session
}

// RunTurn appends the user's input to the log and runs the tool loop until
// the model answers. Only provider failures and context cancellation are
// returned as errors; the log then ends at the last complete step.
func (e *Engine) RunTurn(ctx context.Context, input string) (*TurnResult, error) {
	if strings.TrimSpace(input) == "" {
		return nil, api.NewInvalidRequestError("input", "Prompt cannot be empty")
	}

	e.turn.Lock()
	defer e.turn.Unlock()

	debug.Log("engine", "turn started", "session", e.session.ID(), "input", debug.Truncate(input, 200))
	e.session.append(api.NewUserMessage(input))
	return e.runToolLoop(ctx)
}

// complete sends the current log to the provider and records metrics.
func (e *Engine) complete(ctx context.Context) (*provider.ProviderResponse, error) {
	req := &provider.ProviderRequest{
		Model:       e.cfg.Model,
		Messages:    translateMessages(e.session.Messages()),
		Tools:       e.tools,
		Temperature: e.cfg.Temperature,
	}
	if len(e.tools) > 0 {
		parallel := false
		req.ParallelToolCalls = &parallel
	}

	startTime := time.Now()
	resp, err := e.provider.Complete(ctx, req)
	duration := time.Since(startTime)
	provName := e.provider.Name()

	observability.ProviderLatency.WithLabelValues(provName, e.cfg.Model).Observe(duration.Seconds())
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(provName, e.cfg.Model, "error").Inc()
		return nil, err
	}

	observability.ProviderRequestsTotal.WithLabelValues(provName, e.cfg.Model, "success").Inc()
	observability.ProviderTokensTotal.WithLabelValues(provName, e.cfg.Model, "input").Add(float64(resp.Usage.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(provName, e.cfg.Model, "output").Add(float64(resp.Usage.OutputTokens))

	debug.Log("engine", "model response",
		"finish_reason", resp.FinishReason,
		"tool_calls", len(resp.ToolCalls),
		"duration", duration,
	)
	return resp, nil
}
