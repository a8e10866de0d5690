package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/rhuss/codeloop/pkg/debug"
)

// interruptReason is the value passed to goja.Runtime.Interrupt so that the
// resulting InterruptedError can be mapped back to a failure kind.
type interruptReason struct {
	kind FailureKind
	text string
}

var (
	reasonTimeout  = &interruptReason{kind: FailureTimeout, text: TimeoutErrorText}
	reasonMemory   = &interruptReason{kind: FailureMemoryLimit, text: MemoryLimitErrorText}
	reasonCanceled = &interruptReason{kind: FailureCanceled, text: CanceledErrorText}
)

// Execute evaluates code in a fresh sandbox runtime with the limits from cfg.
// It never panics; every failure is encoded in the returned Result.
func Execute(code string, cfg Config) Result {
	return ExecuteContext(context.Background(), code, cfg)
}

// ExecuteContext is Execute with an additional cancellation source. When ctx
// is done before the evaluation finishes, the runtime is interrupted and the
// result reports FailureCanceled.
func ExecuteContext(ctx context.Context, code string, cfg Config) (res Result) {
	cfg = cfg.WithDefaults()
	start := time.Now()
	var stdout strings.Builder

	defer func() {
		res.Stdout = stdout.String()
		res.DurationMs = time.Since(start).Milliseconds()
		debug.Log("sandbox", "execution finished",
			"outcome", res.Outcome(),
			"duration_ms", res.DurationMs,
			"stdout_len", len(res.Stdout),
		)
	}()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Error: fmt.Sprintf("Error: internal sandbox failure: %v", r), Failure: FailureRuntime}
		}
	}()

	debug.Log("sandbox", "execution received", "code", debug.Truncate(code, 120))

	vm := goja.New()
	vm.SetMaxCallStackSize(cfg.MaxCallStackSize)

	if err := vm.Set("global", vm.GlobalObject()); err != nil {
		return Result{Error: "Error: " + err.Error(), Failure: FailureRuntime}
	}
	if err := vm.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = logText(arg)
		}
		stdout.WriteString(strings.Join(parts, " "))
		stdout.WriteByte('\n')
		return goja.Undefined()
	}); err != nil {
		return Result{Error: "Error: " + err.Error(), Failure: FailureRuntime}
	}

	// Captured before user code runs so that overriding built-ins does not
	// change how the result is rendered.
	insp, err := newInspector(vm, start.Add(cfg.Timeout))
	if err != nil {
		return Result{Error: "Error: " + err.Error(), Failure: FailureRuntime}
	}

	timer := time.AfterFunc(cfg.Timeout, func() { vm.Interrupt(reasonTimeout) })
	defer timer.Stop()

	mem := watchMemory(vm, cfg.MemoryLimitBytes())
	defer mem.stop()

	stopCancel := context.AfterFunc(ctx, func() { vm.Interrupt(reasonCanceled) })
	defer stopCancel()

	value, err := vm.RunString(code)
	if err != nil {
		return failureFromError(insp, err)
	}
	// A single native allocation can finish between two samples.
	if mem.exceeded() {
		return Result{Error: MemoryLimitErrorText, Failure: FailureMemoryLimit}
	}

	// Rendering may run user code (proxy traps, iterators), so it stays
	// under the same deadline.
	rendered, err := insp.render(value)
	if err != nil {
		return failureFromError(insp, err)
	}
	if mem.exceeded() {
		return Result{Error: MemoryLimitErrorText, Failure: FailureMemoryLimit}
	}
	return Result{Value: rendered}
}

// logText converts a log argument the way Array.prototype.join does:
// null and undefined become empty strings.
func logText(arg goja.Value) string {
	if arg == nil || goja.IsUndefined(arg) || goja.IsNull(arg) {
		return ""
	}
	if sym, ok := arg.(*goja.Symbol); ok {
		return symbolText(sym)
	}
	return arg.String()
}

// failureFromError maps an error returned by the runtime to a failed Result.
func failureFromError(insp *inspector, err error) Result {
	if errors.Is(err, errRenderDeadline) {
		return Result{Error: TimeoutErrorText, Failure: FailureTimeout}
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if reason, ok := interrupted.Value().(*interruptReason); ok {
			return Result{Error: reason.text, Failure: reason.kind}
		}
		return Result{Error: TimeoutErrorText, Failure: FailureTimeout}
	}

	// The overflow is uncatchable and carries no JS value.
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return Result{Error: StackOverflowErrorText, Failure: FailureRuntime}
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		return Result{Error: tidySyntaxError(insp.errorText(exc.Value())), Failure: FailureRuntime}
	}

	return Result{Error: firstLine(err.Error()), Failure: FailureRuntime}
}

// tidySyntaxError collapses the doubled prefix and source position goja
// puts into compile errors: "SyntaxError: SyntaxError: msg at 1:5".
func tidySyntaxError(s string) string {
	const prefix = "SyntaxError: "
	if !strings.HasPrefix(s, prefix+prefix) {
		return s
	}
	s = strings.TrimPrefix(s, prefix)
	if i := strings.LastIndex(s, " at "); i > len(prefix) {
		s = s[:i]
	}
	return firstLine(s)
}

// firstLine strips goja's " at <location>" stack suffix and any trailing
// lines from an error message.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, " at <eval>"); i > 0 {
		s = s[:i]
	}
	if !strings.Contains(s, ":") {
		s = "Error: " + s
	}
	return s
}
