package sirt

import (
	"fmt"
	"strings"
	"sync"

	"gonum.org/v1/gonum/blas/blas32"
)

// Strategy selects how concurrent angle tasks combine their contributions
// into the per-slice update.
type Strategy int

const (
	// Partitioned gives every worker its own update buffer. The buffers are
	// folded in worker order after the task group has joined.
	Partitioned Strategy = iota

	// Locked shares one update buffer guarded by a mutex held only for the
	// element-wise add.
	Locked
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case Partitioned:
		return "partitioned"
	case Locked:
		return "locked"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration name to a Strategy. The empty string
// selects Partitioned.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "partitioned":
		return Partitioned, nil
	case "locked", "mutex":
		return Locked, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Accumulator collects back-projected deltas for one slice.
//
// Add may be called concurrently by different workers. Reset and Fold are
// only called by the driver while no task is running.
type Accumulator interface {
	Add(worker int, delta []float32)
	Reset()
	Fold() []float32
}

// NewAccumulator builds an accumulator for size pixels and the given
// number of workers.
func NewAccumulator(s Strategy, workers, size int) (Accumulator, error) {
	switch s {
	case Partitioned:
		bufs := make([][]float32, workers)
		for i := range bufs {
			bufs[i] = make([]float32, size)
		}
		return &partitioned{bufs: bufs}, nil
	case Locked:
		return &locked{buf: make([]float32, size)}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownStrategy, s)
	}
}

type partitioned struct {
	bufs [][]float32
}

func (a *partitioned) Add(worker int, delta []float32) {
	axpy(1, delta, a.bufs[worker])
}

func (a *partitioned) Reset() {
	for _, b := range a.bufs {
		clear(b)
	}
}

func (a *partitioned) Fold() []float32 {
	if len(a.bufs) == 0 {
		return nil
	}
	for _, b := range a.bufs[1:] {
		axpy(1, b, a.bufs[0])
	}
	return a.bufs[0]
}

type locked struct {
	mu  sync.Mutex
	buf []float32
}

func (a *locked) Add(_ int, delta []float32) {
	a.mu.Lock()
	axpy(1, delta, a.buf)
	a.mu.Unlock()
}

func (a *locked) Reset() {
	clear(a.buf)
}

func (a *locked) Fold() []float32 {
	return a.buf
}

// axpy computes y += alpha*x.
func axpy(alpha float32, x, y []float32) {
	if len(x) == 0 {
		return
	}
	blas32.Axpy(alpha,
		blas32.Vector{N: len(x), Data: x, Inc: 1},
		blas32.Vector{N: len(y), Data: y, Inc: 1},
	)
}
