package sandbox

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Worker executes one request at a time. An error return means the worker
// itself is unusable (crashed, killed, broken pipe); failures of the
// evaluated code are reported inside Result.
type Worker interface {
	Execute(ctx context.Context, code string) (Result, error)
	Close() error
}

// WorkerFactory creates the worker for pool slot id.
type WorkerFactory func(id int) (Worker, error)

// InProcessWorker runs executions on the calling process's heap. It offers
// fault containment for panics only; use a subprocess worker for memory and
// crash isolation.
type InProcessWorker struct {
	cfg    Config
	closed atomic.Bool
}

// NewInProcessWorker creates a worker that runs Execute with cfg.
func NewInProcessWorker(cfg Config) *InProcessWorker {
	return &InProcessWorker{cfg: cfg.WithDefaults()}
}

// InProcessFactory returns a WorkerFactory producing InProcessWorkers.
func InProcessFactory(cfg Config) WorkerFactory {
	return func(int) (Worker, error) {
		return NewInProcessWorker(cfg), nil
	}
}

// Execute runs code on a fresh runtime. A panic escaping the executor is
// returned as an error.
func (w *InProcessWorker) Execute(ctx context.Context, code string) (res Result, err error) {
	if w.closed.Load() {
		return Result{}, fmt.Errorf("in-process worker is closed")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("in-process worker panicked: %v", r)
		}
	}()
	return ExecuteContext(ctx, code, w.cfg), nil
}

// Close marks the worker as unusable.
func (w *InProcessWorker) Close() error {
	w.closed.Store(true)
	return nil
}
