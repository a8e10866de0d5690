// Package pool runs sandbox executions on a fixed set of supervised worker
// slots.
//
// Each slot owns at most one [sandbox.Worker] at a time and creates it
// lazily through the configured factory. When a worker fails, only the
// request it was serving fails; the slot discards the worker and spawns a
// replacement for its next request.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/codeloop/pkg/debug"
	"github.com/rhuss/codeloop/pkg/observability"
	"github.com/rhuss/codeloop/pkg/sandbox"
)

// DefaultHungGrace is how long a worker may overrun the execution timeout
// before it is considered hung and killed.
const DefaultHungGrace = 2 * time.Second

// OutcomeWorkerFailure labels executions that ended in a worker failure.
const OutcomeWorkerFailure = "worker_failure"

// ErrPoolClosed is returned by Submit once Close has been called.
var ErrPoolClosed = errors.New("sandbox pool is closed")

// WorkerFailure reports that the worker serving a request died or could not
// be started. The slot recovers on its own; only this request is lost.
type WorkerFailure struct {
	Worker int
	Err    error
}

func (e *WorkerFailure) Error() string {
	return fmt.Sprintf("worker %d failed: %v", e.Worker, e.Err)
}

func (e *WorkerFailure) Unwrap() error {
	return e.Err
}

// Config holds pool settings.
type Config struct {
	// Size is the number of worker slots. Zero or negative means
	// runtime.NumCPU().
	Size int

	// Sandbox carries the per-execution limits. Only Timeout is used by the
	// pool itself, to detect hung workers.
	Sandbox sandbox.Config

	// HungGrace is added to Sandbox.Timeout before a silent worker is
	// killed. Zero or negative means DefaultHungGrace.
	HungGrace time.Duration
}

func (c Config) size() int {
	if c.Size <= 0 {
		return runtime.NumCPU()
	}
	return c.Size
}

func (c Config) hungAfter() time.Duration {
	grace := c.HungGrace
	if grace <= 0 {
		grace = DefaultHungGrace
	}
	return c.Sandbox.WithDefaults().Timeout + grace
}

type request struct {
	ctx   context.Context
	code  string
	reply chan reply
}

type reply struct {
	res sandbox.Result
	err error
}

// Pool dispatches execution requests to idle slots in arrival order.
type Pool struct {
	cfg     Config
	factory sandbox.WorkerFactory

	requests chan *request
	done     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	group    *errgroup.Group

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// New starts a pool with cfg.Size slots. Workers are created by factory on
// first use.
func New(cfg Config, factory sandbox.WorkerFactory) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	p := &Pool{
		cfg:      cfg,
		factory:  factory,
		requests: make(chan *request),
		done:     make(chan struct{}),
		cancel:   cancel,
		group:    g,
	}

	n := cfg.size()
	for i := 0; i < n; i++ {
		s := &slot{id: i}
		g.Go(func() error {
			return p.runSlot(gctx, s)
		})
	}

	debug.Log("pool", "pool started", "size", n, "hung_after", cfg.hungAfter())
	return p
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.cfg.size()
}

// Submit executes code on the next idle worker and waits for the result.
// Execution failures (exceptions, timeouts, memory kills) are reported in
// the Result; the error is non-nil only for a *WorkerFailure, ErrPoolClosed,
// or the caller's context ending before the request was dispatched.
func (p *Pool) Submit(ctx context.Context, code string) (sandbox.Result, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return sandbox.Result{}, ErrPoolClosed
	}
	p.inflight.Add(1)
	p.mu.RUnlock()
	defer p.inflight.Done()

	req := &request{ctx: ctx, code: code, reply: make(chan reply, 1)}
	select {
	case p.requests <- req:
	case <-ctx.Done():
		return sandbox.Result{}, ctx.Err()
	case <-p.done:
		return sandbox.Result{}, ErrPoolClosed
	}

	r := <-req.reply
	return r.res, r.err
}

// Close stops accepting requests, waits for queued and in-flight requests
// to finish and then shuts down all workers. If ctx ends first, running
// executions are canceled and ctx.Err() is returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(drained)
	}()

	var drainErr error
	select {
	case <-drained:
	case <-ctx.Done():
		drainErr = ctx.Err()
	}

	p.stop()
	err := p.group.Wait()
	debug.Log("pool", "pool closed", "drained", drainErr == nil)
	if drainErr != nil {
		return drainErr
	}
	return err
}

func (p *Pool) stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.cancel()
	})
}

type slot struct {
	id      int
	worker  sandbox.Worker
	spawned bool
}

func (p *Pool) runSlot(ctx context.Context, s *slot) error {
	defer s.discard()
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-p.requests:
			res, err := p.serve(ctx, s, req)
			req.reply <- reply{res: res, err: err}
		}
	}
}

func (p *Pool) serve(ctx context.Context, s *slot, req *request) (sandbox.Result, error) {
	if s.worker == nil {
		w, err := p.factory(s.id)
		if err != nil {
			observability.SandboxExecutionsTotal.WithLabelValues(OutcomeWorkerFailure).Inc()
			return sandbox.Result{}, &WorkerFailure{Worker: s.id, Err: fmt.Errorf("spawning worker: %w", err)}
		}
		if s.spawned {
			observability.SandboxWorkerRestartsTotal.Inc()
			debug.Log("pool", "worker respawned", "slot", s.id)
		}
		s.worker = w
		s.spawned = true
	}

	// Executions end when either the caller or the pool gives up.
	execCtx, cancel := context.WithCancel(req.ctx)
	defer cancel()
	stopPoolCancel := context.AfterFunc(ctx, cancel)
	defer stopPoolCancel()

	observability.SandboxBusyWorkers.Inc()
	start := time.Now()
	res, err := p.executeWatched(execCtx, s, req.code)
	observability.SandboxBusyWorkers.Dec()
	observability.SandboxExecutionSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		s.discard()
		observability.SandboxExecutionsTotal.WithLabelValues(OutcomeWorkerFailure).Inc()
		debug.Log("pool", "worker failed", "slot", s.id, "error", err)
		return sandbox.Result{}, &WorkerFailure{Worker: s.id, Err: err}
	}

	observability.SandboxExecutionsTotal.WithLabelValues(res.Outcome()).Inc()
	return res, nil
}

// executeWatched runs the request on the slot's worker and kills the worker
// if it stays silent past the hung deadline. A killed worker's request is
// reported as a timeout with empty stdout: output buffered inside a
// subprocess worker dies with it.
func (p *Pool) executeWatched(ctx context.Context, s *slot, code string) (sandbox.Result, error) {
	type outcome struct {
		res sandbox.Result
		err error
	}
	w := s.worker
	ch := make(chan outcome, 1)
	go func() {
		res, err := w.Execute(ctx, code)
		ch <- outcome{res, err}
	}()

	hung := time.NewTimer(p.cfg.hungAfter())
	defer hung.Stop()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-hung.C:
		debug.Log("pool", "worker hung, killing", "slot", s.id)
		s.discard()
		return sandbox.TimeoutResult(""), nil
	}
}

func (s *slot) discard() {
	if s.worker == nil {
		return
	}
	if err := s.worker.Close(); err != nil {
		debug.Log("pool", "closing worker", "slot", s.id, "error", err)
	}
	s.worker = nil
}
