package sandbox

import "time"

const (
	// DefaultMemoryLimitMB is the heap growth ceiling per execution.
	DefaultMemoryLimitMB = 128

	// DefaultTimeout is the wall-clock limit per execution.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxCallStackSize bounds JavaScript call depth so runaway
	// recursion fails with a RangeError instead of exhausting memory.
	DefaultMaxCallStackSize = 10000
)

// Config holds the per-execution limits. It is fixed at startup and shared
// by every worker of a pool.
type Config struct {
	// MemoryLimitMB is the maximum heap growth in MiB. Zero or negative
	// means DefaultMemoryLimitMB.
	MemoryLimitMB int `json:"memory_limit_mb"`

	// Timeout is the evaluation deadline. Zero or negative means
	// DefaultTimeout.
	Timeout time.Duration `json:"timeout"`

	// MaxCallStackSize is the maximum JavaScript call depth. Zero or
	// negative means DefaultMaxCallStackSize.
	MaxCallStackSize int `json:"max_call_stack_size"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		MemoryLimitMB:    DefaultMemoryLimitMB,
		Timeout:          DefaultTimeout,
		MaxCallStackSize: DefaultMaxCallStackSize,
	}
}

// WithDefaults returns a copy of c with unset fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.MemoryLimitMB <= 0 {
		c.MemoryLimitMB = DefaultMemoryLimitMB
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxCallStackSize <= 0 {
		c.MaxCallStackSize = DefaultMaxCallStackSize
	}
	return c
}

// MemoryLimitBytes returns the memory ceiling in bytes.
func (c Config) MemoryLimitBytes() uint64 {
	return uint64(c.WithDefaults().MemoryLimitMB) << 20
}
