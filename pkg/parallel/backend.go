package parallel

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Backend names accepted by New.
const (
	BackendPool   = "pool"
	BackendSerial = "serial"
)

// Serial runs every task inline on the calling goroutine as worker 0.
// Execution stops at the first failing task.
type Serial struct {
	closed atomic.Bool
}

// NewSerial returns a single-worker executor.
func NewSerial() *Serial {
	return &Serial{}
}

// Workers always returns 1.
func (s *Serial) Workers() int { return 1 }

// Execute implements Executor.
func (s *Serial) Execute(n int, fn func(worker, task int) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	for i := 0; i < n; i++ {
		if err := call(fn, 0, i); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
	}
	return nil
}

// Close marks the executor as closed.
func (s *Serial) Close() {
	s.closed.Store(true)
}

// New selects an executor by backend name. An empty name selects the pool.
// workers is ignored by the serial backend.
func New(backend string, workers int) (Executor, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendPool:
		return NewWorkerPool(workers), nil
	case BackendSerial:
		return NewSerial(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
