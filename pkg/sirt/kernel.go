package sirt

import (
	"math"

	"tomosirt/internal/models"
	"tomosirt/pkg/rotate"
)

// NormalizeAngle folds a projection angle into [0, π) and adds the quarter
// turn that lines the rotated grid's rows up with detector pixels.
func NormalizeAngle(theta float64) float64 {
	return math.Mod(theta, math.Pi) + math.Pi/2
}

// Slice is the data one (iteration, slice) pass borrows.
type Slice struct {
	// Recon is the nx*ny estimate. Tasks only read it.
	Recon []float32

	// Measured is the dt*dx sinogram row of the slice.
	Measured []float32

	// Simulated is the dt*dx forward projection built up during the pass.
	// The task for angle p owns entries [p*dx, (p+1)*dx).
	Simulated []float32

	// Update receives every angle's back-projected delta.
	Update Accumulator
}

// Kernel is the per-(slice, angle) forward-project / compare / back-project
// step.
type Kernel struct {
	geom    models.Geometry
	angles  []float32
	rotator rotate.Rotator
}

// NewKernel binds a kernel to a geometry, angle table and rotation service.
func NewKernel(geom models.Geometry, angles []float32, rotator rotate.Rotator) *Kernel {
	return &Kernel{geom: geom, angles: angles, rotator: rotator}
}

// Process runs angle p of slice s on the given worker's cache.
//
// Detector pixel d sees line d of the rotated grid, the nx contiguous values
// starting at d*nx. Lines with no valid rotated pixel get no correction.
func (k *Kernel) Process(c *WorkerCache, worker int, s *Slice, p int) {
	nx, ny, dx := k.geom.GridX, k.geom.GridY, k.geom.Detectors
	theta := NormalizeAngle(float64(k.angles[p]))

	c.Reset()
	k.rotator.RotateGrid(c.rot, s.Recon, -theta, nx, ny)
	k.rotator.RotateMask(c.maskRot, c.maskRef, -theta, nx, ny)

	measured := s.Measured[p*dx : (p+1)*dx]
	simulated := s.Simulated[p*dx : (p+1)*dx]

	for d := 0; d < dx; d++ {
		line := c.rot[d*nx : (d+1)*nx]
		simulated[d] += lineSum(line)

		valid := 0
		for _, f := range c.maskRot[d*nx : (d+1)*nx] {
			if f != 0 {
				valid++
			}
		}

		var upd float32
		if valid > 0 {
			upd = (measured[d] - simulated[d]) / float32(valid)
		}
		for n := range line {
			line[n] = upd
		}
	}
	clear(c.rot[dx*nx:])

	k.rotator.RotateGrid(c.tmp, c.rot, theta, nx, ny)
	s.Update.Add(worker, c.tmp)
}

func lineSum(line []float32) float32 {
	var sum float32
	for _, v := range line {
		sum += v
	}
	return sum
}
