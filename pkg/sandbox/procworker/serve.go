package procworker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	rdebug "runtime/debug"
	"time"

	"github.com/rhuss/codeloop/pkg/debug"
	"github.com/rhuss/codeloop/pkg/sandbox"
)

// heapHeadroom is added to the execution memory limit when setting the
// child's soft memory limit, to cover the runtime and the encoder.
const heapHeadroom = 64 << 20

// Serve is the child side of the protocol. It reads requests from r until
// EOF, executes each one and writes the response to w. Per-request limits
// override cfg.
func Serve(ctx context.Context, r io.Reader, w io.Writer, cfg sandbox.Config) error {
	cfg = cfg.WithDefaults()
	rdebug.SetMemoryLimit(int64(cfg.MemoryLimitBytes()) + heapHeadroom)

	dec := json.NewDecoder(bufio.NewReader(r))
	enc := json.NewEncoder(w)

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decoding request: %w", err)
		}

		execCfg := cfg
		if req.TimeoutMs > 0 {
			execCfg.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
		}
		if req.MemoryLimitMB > 0 {
			execCfg.MemoryLimitMB = req.MemoryLimitMB
		}
		if req.MaxCallStackSize > 0 {
			execCfg.MaxCallStackSize = req.MaxCallStackSize
		}

		debug.Log("sandbox", "worker request", "id", req.ID)
		res := sandbox.ExecuteContext(ctx, req.Code, execCfg)
		if err := enc.Encode(Response{ID: req.ID, Result: res}); err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
	}
}
