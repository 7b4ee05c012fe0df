package models

// Geometry describes the shape of one reconstruction run. The sinogram is
// indexed [slice][angle][detector] and the reconstruction [slice][row][col].
type Geometry struct {
	// Slices is the number of independent 2-D slices (dy)
	Slices int `yaml:"slices"`

	// Angles is the number of projection angles per slice (dt)
	Angles int `yaml:"angles"`

	// Detectors is the number of detector pixels per projection (dx)
	Detectors int `yaml:"detectors"`

	// GridX is the row length of the reconstruction grid (nx)
	GridX int `yaml:"gridX"`

	// GridY is the number of rows of the reconstruction grid (ny)
	GridY int `yaml:"gridY"`
}

// SliceSize is the number of pixels in one reconstructed slice.
func (g Geometry) SliceSize() int { return g.GridX * g.GridY }

// ProjectionSize is the number of sinogram samples belonging to one slice.
func (g Geometry) ProjectionSize() int { return g.Angles * g.Detectors }

// SinogramLen is the expected length of the flat sinogram buffer.
func (g Geometry) SinogramLen() int { return g.Slices * g.ProjectionSize() }

// VolumeLen is the expected length of the flat reconstruction buffer.
func (g Geometry) VolumeLen() int { return g.Slices * g.SliceSize() }

// Sinogram holds measured projections for every slice together with the
// angle table shared by all of them.
type Sinogram struct {
	// Data is the flat dy*dt*dx buffer in [slice][angle][detector] order
	Data []float32

	// Angles holds one angle in radians per projection
	Angles []float32

	// Slices, Detectors mirror the geometry the data was acquired with
	Slices    int
	Detectors int
}

// Volume represents a stack of reconstructed slices
type Volume struct {
	// Data is the 3D volume data as a 1D array in [slice][row][col] order
	Data []float32

	// Width is the row length in pixels (nx)
	Width int

	// Height is the number of rows per slice (ny)
	Height int

	// Depth is the number of slices (dy)
	Depth int
}

// NewVolume allocates a zero-initialised volume.
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:   make([]float32, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Slice returns the width*height view of slice z.
func (v *Volume) Slice(z int) []float32 {
	n := v.Width * v.Height
	return v.Data[z*n : (z+1)*n]
}
