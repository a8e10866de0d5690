package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExecute(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		wantValue   string
		wantStdout  string
		wantFailure FailureKind
		wantError   string
	}{
		{
			name:      "arithmetic",
			code:      "1+1",
			wantValue: "2",
		},
		{
			name:       "log then value",
			code:       "log('hi'); 1+1",
			wantValue:  "2",
			wantStdout: "hi\n",
		},
		{
			name:       "log joins arguments with spaces",
			code:       "log('a', 1, true); 0",
			wantValue:  "0",
			wantStdout: "a 1 true\n",
		},
		{
			name:       "log prints null and undefined as empty",
			code:       "log('a', null, undefined, 'b'); 0",
			wantValue:  "0",
			wantStdout: "a   b\n",
		},
		{
			name:       "log prints symbols",
			code:       "log(Symbol('a'), Symbol()); 0",
			wantValue:  "0",
			wantStdout: "Symbol(a) Symbol()\n",
		},
		{
			name:       "log stringifies objects",
			code:       "log({}, [1, 2]); 'x'",
			wantValue:  "'x'",
			wantStdout: "[object Object] 1,2\n",
		},
		{
			name:      "statement sequence returns last expression",
			code:      "var x = 20; function f(y) { return y * 2 }\nf(x) + 2",
			wantValue: "42",
		},
		{
			name:      "undefined completion value",
			code:      "var x = 1;",
			wantValue: "undefined",
		},
		{
			name:      "global alias",
			code:      "global.answer = 42; answer",
			wantValue: "42",
		},
		{
			name:        "thrown string",
			code:        "throw 'bad'",
			wantFailure: FailureRuntime,
			wantError:   "Uncaught 'bad'",
		},
		{
			name:        "thrown error",
			code:        "throw new TypeError('nope')",
			wantFailure: FailureRuntime,
			wantError:   "TypeError: nope",
		},
		{
			name:        "thrown error without message",
			code:        "throw new RangeError()",
			wantFailure: FailureRuntime,
			wantError:   "RangeError",
		},
		{
			name:        "reference error",
			code:        "doesNotExist + 1",
			wantFailure: FailureRuntime,
			wantError:   "ReferenceError: doesNotExist is not defined",
		},
		{
			name:        "partial stdout on failure",
			code:        "log('before'); throw new Error('after')",
			wantStdout:  "before\n",
			wantFailure: FailureRuntime,
			wantError:   "Error: after",
		},
		{
			name:        "no console",
			code:        "console.log('x')",
			wantFailure: FailureRuntime,
			wantError:   "ReferenceError: console is not defined",
		},
		{
			name:        "no require",
			code:        "require('fs')",
			wantFailure: FailureRuntime,
			wantError:   "ReferenceError: require is not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Execute(tt.code, Defaults())
			if res.Failure != tt.wantFailure {
				t.Fatalf("Failure = %q, want %q (error %q)", res.Failure, tt.wantFailure, res.Error)
			}
			if tt.wantFailure == FailureNone && res.Value != tt.wantValue {
				t.Errorf("Value = %q, want %q", res.Value, tt.wantValue)
			}
			if tt.wantError != "" && res.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", res.Error, tt.wantError)
			}
			if res.Stdout != tt.wantStdout {
				t.Errorf("Stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
		})
	}
}

func TestExecute_SyntaxError(t *testing.T) {
	res := Execute("function (", Defaults())
	if res.Failure != FailureRuntime {
		t.Fatalf("Failure = %q, want %q", res.Failure, FailureRuntime)
	}
	if !strings.HasPrefix(res.Error, "SyntaxError") {
		t.Errorf("Error = %q, want SyntaxError prefix", res.Error)
	}
	if strings.HasPrefix(res.Error, "SyntaxError: SyntaxError") {
		t.Errorf("Error = %q, prefix should not repeat", res.Error)
	}
	if strings.Contains(res.Error, "\n") {
		t.Errorf("Error should be a single line, got %q", res.Error)
	}
}

func TestExecute_Timeout(t *testing.T) {
	cfg := Defaults()
	cfg.Timeout = 100 * time.Millisecond

	start := time.Now()
	res := Execute("log('spin'); while (true) {}", cfg)
	elapsed := time.Since(start)

	if res.Failure != FailureTimeout {
		t.Fatalf("Failure = %q, want %q", res.Failure, FailureTimeout)
	}
	if res.Error != TimeoutErrorText {
		t.Errorf("Error = %q, want %q", res.Error, TimeoutErrorText)
	}
	if res.Stdout != "spin\n" {
		t.Errorf("Stdout = %q, want partial output", res.Stdout)
	}
	if elapsed > 2*time.Second {
		t.Errorf("timeout took %v, want close to %v", elapsed, cfg.Timeout)
	}
}

func TestExecute_MemoryLimit(t *testing.T) {
	cfg := Defaults()
	cfg.MemoryLimitMB = 8
	cfg.Timeout = 10 * time.Second

	res := Execute(`var a = []; while (true) { a.push(new Array(1000).fill('xxxxxxxx')) }`, cfg)
	if res.Failure != FailureMemoryLimit {
		t.Fatalf("Failure = %q, want %q (error %q)", res.Failure, FailureMemoryLimit, res.Error)
	}
	if res.Error != MemoryLimitErrorText {
		t.Errorf("Error = %q, want %q", res.Error, MemoryLimitErrorText)
	}
}

func TestExecute_SingleAllocationOverMemoryLimit(t *testing.T) {
	cfg := Defaults()
	cfg.MemoryLimitMB = 16

	res := Execute("let s = 'x'.repeat(64 * 1024 * 1024); s.length", cfg)
	if res.Failure != FailureMemoryLimit {
		t.Fatalf("Failure = %q, want %q (value %q)", res.Failure, FailureMemoryLimit, res.Value)
	}
	if res.Error != MemoryLimitErrorText {
		t.Errorf("Error = %q, want %q", res.Error, MemoryLimitErrorText)
	}
}

func TestMemoryWatch_Exceeded(t *testing.T) {
	over := &memoryWatch{limit: 1, done: make(chan struct{})}
	if !over.exceeded() {
		t.Error("heap grown from a zero baseline should exceed a one byte limit")
	}

	under := &memoryWatch{limit: 1, baseline: heapObjectsBytes() + 1<<40, done: make(chan struct{})}
	if under.exceeded() {
		t.Error("heap below the baseline should not exceed the limit")
	}

	disabled := watchMemory(nil, 0)
	defer disabled.stop()
	if disabled.exceeded() {
		t.Error("a zero limit disables the check")
	}
}

func TestExecute_StackOverflow(t *testing.T) {
	res := Execute("function f() { return f() } f()", Defaults())
	if res.Failure != FailureRuntime {
		t.Fatalf("Failure = %q, want %q", res.Failure, FailureRuntime)
	}
	if res.Error != StackOverflowErrorText {
		t.Errorf("Error = %q, want %q", res.Error, StackOverflowErrorText)
	}
}

func TestExecuteContext_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res := ExecuteContext(ctx, "while (true) {}", Defaults())
	if res.Failure != FailureCanceled {
		t.Fatalf("Failure = %q, want %q", res.Failure, FailureCanceled)
	}
	if res.Error != CanceledErrorText {
		t.Errorf("Error = %q, want %q", res.Error, CanceledErrorText)
	}
}

func TestExecute_Idempotent(t *testing.T) {
	code := "var n = 0; for (var i = 0; i < 10; i++) { n += i; log(i) } n"
	first := Execute(code, Defaults())
	for i := 0; i < 3; i++ {
		got := Execute(code, Defaults())
		if got.Value != first.Value || got.Stdout != first.Stdout || got.Failure != first.Failure {
			t.Fatalf("run %d differs: got %+v, first %+v", i, got, first)
		}
	}
}

func TestExecute_FreshStatePerCall(t *testing.T) {
	if res := Execute("globalThis.leaked = 1; Object.prototype.polluted = true; 1", Defaults()); res.Failed() {
		t.Fatalf("setup failed: %s", res.Error)
	}

	res := Execute("typeof leaked + ' ' + ({}).polluted", Defaults())
	if res.Failed() {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if res.Value != "'undefined undefined'" {
		t.Errorf("Value = %q, state leaked between executions", res.Value)
	}
}

func TestExecute_OverriddenBuiltinsDoNotAffectRendering(t *testing.T) {
	res := Execute("Array.from = null; Object.getOwnPropertyDescriptor = null; [1, 2]", Defaults())
	if res.Failed() {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if res.Value != "[ 1, 2 ]" {
		t.Errorf("Value = %q, want %q", res.Value, "[ 1, 2 ]")
	}
}

func TestExecute_DurationRecorded(t *testing.T) {
	res := Execute("var t = Date.now(); while (Date.now() - t < 20) {} 1", Defaults())
	if res.DurationMs < 20 {
		t.Errorf("DurationMs = %d, want >= 20", res.DurationMs)
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SyntaxError: Unexpected token at <eval>:1:10(3)", "SyntaxError: Unexpected token"},
		{"boom\nmore", "Error: boom"},
		{"TypeError: look at this", "TypeError: look at this"},
	}
	for _, tt := range tests {
		if got := firstLine(tt.in); got != tt.want {
			t.Errorf("firstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInProcessWorker(t *testing.T) {
	w := NewInProcessWorker(Defaults())

	res, err := w.Execute(context.Background(), "6*7")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Value != "42" {
		t.Errorf("Value = %q, want 42", res.Value)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := w.Execute(context.Background(), "1"); err == nil {
		t.Error("expected error after Close")
	}
}
