// Package procworker runs sandbox executions in a child process.
//
// The parent starts the child (normally "codeloop sandbox-worker") and
// exchanges newline-delimited JSON over its stdin and stdout: one [Request]
// in, one [Response] out. A child that crashes, is killed by the OS or runs
// out of memory takes only its in-flight request with it.
package procworker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rhuss/codeloop/pkg/debug"
	"github.com/rhuss/codeloop/pkg/sandbox"
)

// Request is one execution sent to the child.
// Limits left at zero fall back to the child's own configuration.
type Request struct {
	ID               uint64 `json:"id"`
	Code             string `json:"code"`
	TimeoutMs        int64  `json:"timeout_ms,omitempty"`
	MemoryLimitMB    int    `json:"memory_limit_mb,omitempty"`
	MaxCallStackSize int    `json:"max_call_stack_size,omitempty"`
}

// Response carries the child's result for the request with the same ID.
type Response struct {
	ID     uint64         `json:"id"`
	Result sandbox.Result `json:"result"`
}

// Config describes how to start the child.
type Config struct {
	// Path is the executable to run.
	Path string

	// Args are passed to the executable, e.g. []string{"sandbox-worker"}.
	Args []string

	// Env replaces the child's environment when non-nil.
	Env []string

	// Sandbox holds the limits sent with every request.
	Sandbox sandbox.Config
}

// ErrWorkerClosed is returned by Execute after Close.
var ErrWorkerClosed = errors.New("process worker is closed")

// Worker is a running child process. It serves one request at a time.
type Worker struct {
	cfg Config
	cmd *exec.Cmd

	stdin  io.WriteCloser
	enc    *json.Encoder
	dec    *json.Decoder
	stderr *tailBuffer

	mu     sync.Mutex
	nextID uint64
	broken error

	exited    chan struct{}
	waitErr   error
	closeOnce sync.Once
}

// New starts a child process.
func New(cfg Config) (*Worker, error) {
	if cfg.Path == "" {
		return nil, errors.New("procworker: executable path is required")
	}
	cfg.Sandbox = cfg.Sandbox.WithDefaults()

	cmd := exec.Command(cfg.Path, cfg.Args...)
	if cfg.Env != nil {
		cmd.Env = cfg.Env
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("procworker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("procworker: stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("procworker: starting %s: %w", cfg.Path, err)
	}

	w := &Worker{
		cfg:    cfg,
		cmd:    cmd,
		stdin:  stdin,
		enc:    json.NewEncoder(stdin),
		dec:    json.NewDecoder(bufio.NewReader(stdout)),
		stderr: stderr,
		exited: make(chan struct{}),
	}
	go func() {
		w.waitErr = cmd.Wait()
		close(w.exited)
	}()

	debug.Log("pool", "process worker started", "pid", cmd.Process.Pid)
	return w, nil
}

// WorkerCommand is the argument that switches a codeloop binary into the
// child side of the protocol.
const WorkerCommand = "sandbox-worker"

// SelfFactory returns a factory that starts the running executable with
// WorkerCommand.
func SelfFactory(limits sandbox.Config) (sandbox.WorkerFactory, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("procworker: locating executable: %w", err)
	}
	return Factory(Config{Path: exe, Args: []string{WorkerCommand}, Sandbox: limits}), nil
}

// Factory returns a sandbox.WorkerFactory that starts process workers.
func Factory(cfg Config) sandbox.WorkerFactory {
	return func(int) (sandbox.Worker, error) {
		return New(cfg)
	}
}

// Execute sends code to the child and waits for its result. Any transport
// problem or child exit is returned as an error and leaves the worker
// unusable. When ctx ends first the child is killed.
func (w *Worker) Execute(ctx context.Context, code string) (sandbox.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.broken != nil {
		return sandbox.Result{}, w.broken
	}

	w.nextID++
	req := Request{
		ID:               w.nextID,
		Code:             code,
		TimeoutMs:        w.cfg.Sandbox.Timeout.Milliseconds(),
		MemoryLimitMB:    w.cfg.Sandbox.MemoryLimitMB,
		MaxCallStackSize: w.cfg.Sandbox.MaxCallStackSize,
	}
	if err := w.enc.Encode(req); err != nil {
		return sandbox.Result{}, w.fail(fmt.Errorf("sending request: %w", err))
	}

	type decoded struct {
		resp Response
		err  error
	}
	ch := make(chan decoded, 1)
	go func() {
		var resp Response
		err := w.dec.Decode(&resp)
		ch <- decoded{resp, err}
	}()

	select {
	case d := <-ch:
		if d.err != nil {
			return sandbox.Result{}, w.fail(w.exitError(fmt.Errorf("reading response: %w", d.err)))
		}
		if d.resp.ID != req.ID {
			return sandbox.Result{}, w.fail(fmt.Errorf("response id %d does not match request id %d", d.resp.ID, req.ID))
		}
		return d.resp.Result, nil
	case <-ctx.Done():
		w.kill()
		<-ch
		return sandbox.Result{}, w.fail(fmt.Errorf("execution abandoned: %w", ctx.Err()))
	}
}

// Close terminates the child.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		w.stdin.Close()
		select {
		case <-w.exited:
		case <-time.After(100 * time.Millisecond):
			w.kill()
			<-w.exited
		}
	})
	return nil
}

func (w *Worker) kill() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
}

func (w *Worker) fail(err error) error {
	w.broken = fmt.Errorf("%w: %v", ErrWorkerClosed, err)
	w.kill()
	return err
}

// exitError enriches err with the child's exit status and the tail of its
// stderr once the process has exited.
func (w *Worker) exitError(err error) error {
	select {
	case <-w.exited:
	case <-time.After(500 * time.Millisecond):
		return err
	}
	if w.waitErr != nil {
		err = fmt.Errorf("%w (%v)", err, w.waitErr)
	}
	if tail := w.stderr.String(); tail != "" {
		err = fmt.Errorf("%w: %s", err, debug.Truncate(tail, 512))
	}
	return err
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
