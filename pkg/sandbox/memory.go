package sandbox

import (
	"runtime/metrics"
	"sync"
	"time"

	"github.com/dop251/goja"
)

const (
	heapObjectsMetric  = "/memory/classes/heap/objects:bytes"
	memoryPollInterval = 5 * time.Millisecond
)

// memoryWatch is a running memory watchdog for one execution.
type memoryWatch struct {
	limit    uint64
	baseline uint64
	done     chan struct{}
	once     sync.Once
}

// watchMemory interrupts vm once live heap objects grow by more than limit
// bytes relative to the start of the execution. A zero limit disables the
// watchdog.
//
// The Go heap is process-wide: with several in-process workers the
// measurement includes allocations of sibling executions. Process isolation
// gives each execution its own heap.
func watchMemory(vm *goja.Runtime, limit uint64) *memoryWatch {
	w := &memoryWatch{limit: limit, done: make(chan struct{})}
	if limit == 0 {
		return w
	}
	w.baseline = heapObjectsBytes()

	go func() {
		ticker := time.NewTicker(memoryPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				if w.exceeded() {
					vm.Interrupt(reasonMemory)
					return
				}
			}
		}
	}()
	return w
}

// exceeded takes one more sample and reports whether the heap has grown
// past the limit.
func (w *memoryWatch) exceeded() bool {
	if w.limit == 0 {
		return false
	}
	used := heapObjectsBytes()
	return used > w.baseline && used-w.baseline > w.limit
}

func (w *memoryWatch) stop() {
	w.once.Do(func() { close(w.done) })
}

func heapObjectsBytes() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}
