package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/codeloop/pkg/api"
)

// ExecuteFunc is the signature of ToolExecutor.Execute.
type ExecuteFunc func(ctx context.Context, call api.ToolCall) (*ToolResult, error)

// Middleware wraps an ExecuteFunc to add cross-cutting behavior.
// Middleware is applied in order: the first middleware in the chain is
// the outermost wrapper.
type Middleware func(ExecuteFunc) ExecuteFunc

// Chain composes multiple middleware into a single middleware.
// Chain(a, b, c) produces a(b(c(fn))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next ExecuteFunc) ExecuteFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Wrap returns an executor whose Execute runs through middlewares. The
// tool definitions and argument validation of the wrapped executor are
// kept.
func Wrap(executor ToolExecutor, middlewares ...Middleware) ToolExecutor {
	return &wrapped{
		ToolExecutor: executor,
		execute:      Chain(middlewares...)(executor.Execute),
	}
}

type wrapped struct {
	ToolExecutor
	execute ExecuteFunc
}

var _ ArgumentValidator = (*wrapped)(nil)

func (w *wrapped) Execute(ctx context.Context, call api.ToolCall) (*ToolResult, error) {
	return w.execute(ctx, call)
}

func (w *wrapped) ValidateArguments(call api.ToolCall) error {
	if v, ok := w.ToolExecutor.(ArgumentValidator); ok {
		return v.ValidateArguments(call)
	}
	return nil
}

// Recovery returns middleware that turns a panic in the executor into an
// error result for the model. The tool loop continues after a recovered
// panic.
func Recovery() Middleware {
	return func(next ExecuteFunc) ExecuteFunc {
		return func(ctx context.Context, call api.ToolCall) (res *ToolResult, err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("tool executor panicked", "tool", call.Name, "call_id", call.ID, "panic", r)
					res = &ToolResult{
						CallID:  call.ID,
						Output:  FormatToolOutput(fmt.Sprintf("Error: internal tool failure: %v", r), ""),
						IsError: true,
					}
					err = nil
				}
			}()
			return next(ctx, call)
		}
	}
}

// Logging returns middleware that emits one structured log entry per
// executed call.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ExecuteFunc) ExecuteFunc {
		return func(ctx context.Context, call api.ToolCall) (*ToolResult, error) {
			start := time.Now()
			res, err := next(ctx, call)

			attrs := []slog.Attr{
				slog.String("tool", call.Name),
				slog.String("call_id", call.ID),
				slog.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil:
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelWarn, "tool call failed", attrs...)
			default:
				attrs = append(attrs, slog.Bool("is_error", res.IsError))
				logger.LogAttrs(ctx, slog.LevelInfo, "tool call completed", attrs...)
			}
			return res, err
		}
	}
}
