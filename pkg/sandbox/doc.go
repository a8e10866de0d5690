// Package sandbox runs untrusted JavaScript snippets in a capability-limited
// goja runtime.
//
// Every call to [Execute] creates a fresh runtime whose global scope holds
// only the ECMAScript built-ins plus two injected names:
//
//   - log(...args): appends the space-joined string forms of its arguments
//     and a newline to the execution's output buffer
//   - global: an alias for the global object
//
// Limits are enforced by the host, not by the evaluated code: a timer
// interrupts the runtime when [Config.Timeout] expires, and a heap watchdog
// interrupts it when heap growth exceeds [Config.MemoryLimitMB].
//
// [Execute] never panics and never returns an error. All outcomes, including
// thrown exceptions, timeouts and memory-limit kills, are encoded in the
// returned [Result] together with the output captured so far.
//
// The package also defines the [Worker] abstraction used by the pool, and
// an in-process implementation of it.
package sandbox
