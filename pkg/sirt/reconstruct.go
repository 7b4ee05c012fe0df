package sirt

import (
	"fmt"

	"tomosirt/internal/models"
	"tomosirt/pkg/rotate"
)

// Reconstruct runs a complete SIRT reconstruction with a temporary Engine.
//
// sinogram is dy*dt*dx values in [slice][angle][detector] order, angles holds
// dt radians, and recon is the caller-initialised dy*nx*ny volume that is
// updated in place. Invalid input is reported before any work starts.
func Reconstruct(sinogram []float32, geom models.Geometry, angles []float32, recon []float32, iterations int, opts Options) error {
	if err := ValidateInputs(geom, sinogram, angles, recon, iterations); err != nil {
		return err
	}

	engine, err := NewEngine(geom, opts)
	if err != nil {
		return err
	}
	defer engine.Close()

	return engine.Run(sinogram, angles, recon, iterations)
}

// Project computes the sinogram a volume produces under the same rotation
// and line-sum convention the kernel uses. rotator may be nil.
func Project(volume []float32, geom models.Geometry, angles []float32, rotator rotate.Rotator) ([]float32, error) {
	if err := ValidateGeometry(geom); err != nil {
		return nil, err
	}
	if len(volume) != geom.VolumeLen() {
		return nil, fmt.Errorf("%w: volume has %d values, geometry needs %d",
			ErrBufferSize, len(volume), geom.VolumeLen())
	}
	if len(angles) != geom.Angles {
		return nil, fmt.Errorf("%w: %d angles, geometry needs %d", ErrBufferSize, len(angles), geom.Angles)
	}
	if rotator == nil {
		rotator = rotate.New()
	}

	nx, ny, dx := geom.GridX, geom.GridY, geom.Detectors
	size, proj := geom.SliceSize(), geom.ProjectionSize()
	sino := make([]float32, geom.SinogramLen())
	cache := NewWorkerCache(nx, ny)

	for s := 0; s < geom.Slices; s++ {
		slice := volume[s*size : (s+1)*size]
		for p, angle := range angles {
			theta := NormalizeAngle(float64(angle))
			rotator.RotateGrid(cache.rot, slice, -theta, nx, ny)
			row := sino[s*proj+p*dx : s*proj+(p+1)*dx]
			for d := range row {
				row[d] = lineSum(cache.rot[d*nx : (d+1)*nx])
			}
		}
	}
	return sino, nil
}
