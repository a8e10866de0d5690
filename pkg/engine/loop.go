package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/codeloop/pkg/api"
	"github.com/rhuss/codeloop/pkg/observability"
	"github.com/rhuss/codeloop/pkg/tools"
)

// runToolLoop calls the model until it answers without a tool call. Tool
// calls of one response are validated together, then executed one at a
// time in order; each is appended to the log together with its result.
func (e *Engine) runToolLoop(ctx context.Context) (*TurnResult, error) {
	res := &TurnResult{}
	maxRounds := e.cfg.maxRounds()

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Rounds = round
		e.emit(Event{Type: EventModelRequest, Round: round})
		resp, err := e.complete(ctx)
		if err != nil {
			return res, err
		}

		calls := extractToolCalls(resp)

		// No tool calls: final answer.
		if len(calls) == 0 {
			reply := ""
			if resp.Content != nil {
				reply = *resp.Content
			}
			e.session.append(api.NewAssistantMessage(reply))
			res.Reply = reply
			return res, nil
		}

		if resp.Content != nil && *resp.Content != "" {
			e.emit(Event{Type: EventAssistantText, Round: round, Text: *resp.Content})
		}

		// A rejected call ends the turn before anything runs.
		if bad, err := e.validateCalls(calls); err != nil {
			e.rejectCall(res, round, resp.Content, bad, err)
			return res, nil
		}

		for i, call := range calls {
			// Text accompanying the calls is kept once, on the first call.
			content := resp.Content
			if i > 0 {
				content = nil
			}
			if err := e.executeCall(ctx, round, content, call); err != nil {
				return res, err
			}
		}

		if round >= maxRounds {
			slog.Warn("tool round limit reached", "session", e.session.ID(), "rounds", round)
			res.ToolError = ErrMaxToolRounds
			return res, nil
		}
	}
}

// validateCalls checks the arguments of every call whose executor can
// validate them. It returns the first offending call.
func (e *Engine) validateCalls(calls []api.ToolCall) (api.ToolCall, error) {
	for _, call := range calls {
		v, ok := tools.Lookup(e.cfg.Executors, call.Name).(tools.ArgumentValidator)
		if !ok {
			continue
		}
		if err := v.ValidateArguments(call); err != nil {
			return call, err
		}
	}
	return api.ToolCall{}, nil
}

// rejectCall ends the turn for a call with unusable arguments. The call is
// not appended since it would have no result; the model's text is kept as
// the final assistant message so the log stays well formed.
func (e *Engine) rejectCall(res *TurnResult, round int, content *string, call api.ToolCall, err error) {
	slog.Warn("tool call rejected",
		"session", e.session.ID(),
		"tool", call.Name,
		"call_id", call.ID,
		"error", err.Error(),
	)
	observability.ToolCallsTotal.WithLabelValues(call.Name, "rejected").Inc()

	reply := ""
	if content != nil {
		reply = *content
	}
	logged := reply
	if logged == "" {
		logged = fmt.Sprintf("[tool call rejected: %v]", err)
	}
	e.session.append(api.NewAssistantMessage(logged))

	res.Reply = reply
	res.ToolError = err
	e.emit(Event{Type: EventToolError, Round: round, Call: &call, Err: err})
}

// executeCall runs one call and appends it with its result. Calls for
// tools no executor serves get an error result for the model.
func (e *Engine) executeCall(ctx context.Context, round int, content *string, call api.ToolCall) error {
	e.emit(Event{Type: EventToolCall, Round: round, Call: &call})

	var result *tools.ToolResult
	if ex := tools.Lookup(e.cfg.Executors, call.Name); ex != nil {
		r, err := ex.Execute(ctx, call)
		if err != nil {
			slog.Warn("tool execution error",
				"tool", call.Name,
				"call_id", call.ID,
				"error", err.Error(),
			)
			return fmt.Errorf("executing tool %s: %w", call.Name, err)
		}
		result = r
	} else {
		observability.ToolCallsTotal.WithLabelValues(call.Name, "unknown").Inc()
		result = tools.UnknownToolResult(call)
	}

	e.session.append(
		api.NewToolCallMessage(content, call),
		api.NewToolResultMessage(call, result.Output),
	)
	e.emit(Event{Type: EventToolResult, Round: round, Call: &call, Output: result.Output, IsError: result.IsError})
	return nil
}
