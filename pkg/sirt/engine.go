// Package sirt implements the Simultaneous Iterative Reconstruction Technique
// for parallel-beam tomography.
//
// Every slice of the sinogram is reconstructed independently. One pass over
// a slice runs a kernel task per projection angle; each task rotates the
// current estimate to its angle, compares the simulated projection with the
// measured one, and back-projects the per-detector correction. The driver
// joins on the tasks, averages the corrections over the angles and adds the
// result to the slice. Passes repeat for a fixed number of iterations.
package sirt

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"tomosirt/internal/models"
	"tomosirt/pkg/parallel"
	"tomosirt/pkg/rotate"
)

// Options configures an Engine. The zero value is usable: a worker pool
// sized to GOMAXPROCS, partitioned accumulation, the default rotator and no
// logging.
type Options struct {
	// Workers is the pool width; 0 means GOMAXPROCS.
	Workers int

	// Backend names the execution substrate ("pool" or "serial").
	Backend string

	// Executor, when set, overrides Backend and Workers. The engine does not
	// close an executor it did not create.
	Executor parallel.Executor

	// Accumulation selects how angle contributions are combined.
	Accumulation Strategy

	// Rotator is the rotation service; nil selects rotate.New().
	Rotator rotate.Rotator

	// Logger receives run and per-iteration records; nil disables logging.
	Logger *zap.Logger

	// OnIteration is called after every completed pass over all slices
	// with the zero-based iteration number.
	OnIteration func(iteration int)
}

// Engine owns the worker pool, the per-worker caches and the per-slice
// buffers for one geometry. An Engine runs one reconstruction at a time.
type Engine struct {
	geom        models.Geometry
	exec        parallel.Executor
	ownsExec    bool
	caches      *CacheTable
	acc         Accumulator
	strategy    Strategy
	simulated   []float32
	rotator     rotate.Rotator
	logger      *zap.Logger
	onIteration func(int)

	// order, when set, maps task index to angle index.
	order []int
}

// NewEngine validates the geometry and builds the execution resources.
func NewEngine(geom models.Geometry, opts Options) (*Engine, error) {
	if err := ValidateGeometry(geom); err != nil {
		return nil, err
	}

	exec := opts.Executor
	owns := false
	if exec == nil {
		var err error
		exec, err = parallel.New(opts.Backend, opts.Workers)
		if err != nil {
			return nil, err
		}
		owns = true
	}

	acc, err := NewAccumulator(opts.Accumulation, exec.Workers(), geom.SliceSize())
	if err != nil {
		if owns {
			exec.Close()
		}
		return nil, err
	}

	rotator := opts.Rotator
	if rotator == nil {
		rotator = rotate.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		geom:        geom,
		exec:        exec,
		ownsExec:    owns,
		caches:      NewCacheTable(exec.Workers(), geom.GridX, geom.GridY),
		acc:         acc,
		strategy:    opts.Accumulation,
		simulated:   make([]float32, geom.ProjectionSize()),
		rotator:     rotator,
		logger:      logger,
		onIteration: opts.OnIteration,
	}, nil
}

// Run performs iterations SIRT passes, updating recon in place.
//
// All preconditions are checked before recon is touched. On a task failure
// the run stops; slices committed before the failure keep their updates and
// the volume should be discarded.
func (e *Engine) Run(sinogram, angles, recon []float32, iterations int) error {
	if err := ValidateInputs(e.geom, sinogram, angles, recon, iterations); err != nil {
		return err
	}

	g := e.geom
	e.logger.Info("starting sirt reconstruction",
		zap.Int("iterations", iterations),
		zap.Int("dy", g.Slices),
		zap.Int("dt", g.Angles),
		zap.Int("dx", g.Detectors),
		zap.Int("nx", g.GridX),
		zap.Int("ny", g.GridY),
		zap.Int("workers", e.exec.Workers()),
		zap.Stringer("accumulation", e.strategy),
	)

	kernel := NewKernel(g, angles, e.rotator)
	start := time.Now()
	for i := 0; i < iterations; i++ {
		iterStart := time.Now()
		for s := 0; s < g.Slices; s++ {
			if err := e.iterateSlice(kernel, s, sinogram, recon); err != nil {
				e.logger.Error("reconstruction failed",
					zap.Int("iteration", i),
					zap.Int("slice", s),
					zap.Error(err),
				)
				return fmt.Errorf("iteration %d: %w", i, err)
			}
		}
		e.logger.Debug("iteration complete",
			zap.Int("iteration", i),
			zap.Int("of", iterations),
			zap.Duration("elapsed", time.Since(iterStart)),
		)
		if e.onIteration != nil {
			e.onIteration(i)
		}
	}

	e.logger.Info("sirt reconstruction finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("caches", e.caches.Allocated()),
	)
	return nil
}

// Close releases the caches and, if the engine created it, the executor.
func (e *Engine) Close() {
	e.caches.Release()
	if e.ownsExec {
		e.exec.Close()
	}
}

// ValidateGeometry checks that every dimension is non-negative and that
// each detector line fits in the grid (dx <= ny).
func ValidateGeometry(g models.Geometry) error {
	if g.Slices < 0 || g.Angles < 0 || g.Detectors < 0 || g.GridX < 0 || g.GridY < 0 {
		return fmt.Errorf("%w: negative dimension in %+v", ErrInvalidGeometry, g)
	}
	if g.Detectors > g.GridY {
		return fmt.Errorf("%w: %d detector pixels need at least as many grid rows, have %d",
			ErrInvalidGeometry, g.Detectors, g.GridY)
	}
	return nil
}

// ValidateInputs checks buffer sizes, the angle table and the iteration
// count against a geometry.
func ValidateInputs(g models.Geometry, sinogram, angles, recon []float32, iterations int) error {
	if err := ValidateGeometry(g); err != nil {
		return err
	}
	if iterations < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIterations, iterations)
	}
	if len(sinogram) != g.SinogramLen() {
		return fmt.Errorf("%w: sinogram has %d values, geometry needs %d",
			ErrBufferSize, len(sinogram), g.SinogramLen())
	}
	if len(angles) != g.Angles {
		return fmt.Errorf("%w: %d angles, geometry needs %d", ErrBufferSize, len(angles), g.Angles)
	}
	if len(recon) != g.VolumeLen() {
		return fmt.Errorf("%w: reconstruction has %d values, geometry needs %d",
			ErrBufferSize, len(recon), g.VolumeLen())
	}
	for i, a := range angles {
		f := float64(a)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: angle %d is %v", ErrInvalidAngle, i, a)
		}
	}
	return nil
}
