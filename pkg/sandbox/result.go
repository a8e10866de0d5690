package sandbox

// FailureKind classifies why an execution did not produce a value.
type FailureKind string

const (
	// FailureNone marks a successful execution.
	FailureNone FailureKind = ""

	// FailureRuntime covers exceptions thrown by the evaluated code,
	// including syntax errors and call stack exhaustion.
	FailureRuntime FailureKind = "runtime_error"

	// FailureTimeout means the evaluation exceeded Config.Timeout.
	FailureTimeout FailureKind = "timeout"

	// FailureMemoryLimit means heap growth exceeded Config.MemoryLimitMB.
	FailureMemoryLimit FailureKind = "memory_limit"

	// FailureCanceled means the caller's context ended the evaluation.
	FailureCanceled FailureKind = "canceled"
)

// Error texts for host-enforced terminations. They follow the wording of
// the JavaScript error classes the model is most likely to recognize.
const (
	TimeoutErrorText     = "Error: Script execution timed out."
	MemoryLimitErrorText = "RangeError: Isolate was disposed during execution due to memory limit"
	CanceledErrorText    = "Error: Script execution was canceled."

	StackOverflowErrorText = "RangeError: Maximum call stack size exceeded"
)

// Result is the outcome of one execution. Stdout is always populated, also
// on failure, with whatever log() output was produced before the fault.
type Result struct {
	// Value is the rendered value of the last evaluated expression.
	// Only meaningful when Failure is FailureNone.
	Value string `json:"value,omitempty"`

	// Error is a human-readable description of the failure, at minimum
	// the error's name and message.
	Error string `json:"error,omitempty"`

	// Stdout is the accumulated log() output.
	Stdout string `json:"stdout"`

	// Failure is FailureNone on success.
	Failure FailureKind `json:"failure,omitempty"`

	// DurationMs is the wall-clock execution time.
	DurationMs int64 `json:"duration_ms"`
}

// Failed reports whether the execution failed.
func (r Result) Failed() bool {
	return r.Failure != FailureNone
}

// Text returns the rendered value on success and the error text on failure.
func (r Result) Text() string {
	if r.Failed() {
		return r.Error
	}
	return r.Value
}

// Outcome returns a short label suitable for metrics.
func (r Result) Outcome() string {
	if r.Failure == FailureNone {
		return "success"
	}
	return string(r.Failure)
}

// TimeoutResult builds the result reported for an execution that was
// terminated for exceeding its deadline.
func TimeoutResult(stdout string) Result {
	return Result{Error: TimeoutErrorText, Stdout: stdout, Failure: FailureTimeout}
}
