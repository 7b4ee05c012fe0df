// Package rotate rotates flat 2-D grids about their centre. Real-valued grids
// are resampled bilinearly, integer flag grids by nearest neighbour.
//
// Grids are stored row-major: width contiguous values per row, height rows.
// Pixel (x, y) has its centre at (x+0.5, y+0.5) and the rotation centre is
// (width/2, height/2). Samples that fall outside the source grid read as zero.
package rotate

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Rotator is the rotation service used by the reconstruction kernel.
// dst and src must not alias.
type Rotator interface {
	// RotateGrid writes src rotated by angle radians into dst.
	RotateGrid(dst, src []float32, angle float64, width, height int)

	// RotateMask writes the flag grid src rotated by angle radians into dst
	// using nearest-neighbour sampling.
	RotateMask(dst, src []uint8, angle float64, width, height int)
}

// Affine is the default Rotator.
type Affine struct{}

// New returns the default rotator.
func New() *Affine {
	return &Affine{}
}

// About returns the transform rotating points by angle about (cx, cy).
func About(angle, cx, cy float64) f64.Aff3 {
	sin, cos := math.Sincos(angle)
	return f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
}

// Apply maps (x, y) through m.
func Apply(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

func finite(angle float64) bool {
	return !math.IsNaN(angle) && !math.IsInf(angle, 0)
}

// RotateGrid implements Rotator with bilinear interpolation.
func (Affine) RotateGrid(dst, src []float32, angle float64, width, height int) {
	n := width * height
	dst = dst[:n]
	clear(dst)
	if n == 0 || !finite(angle) {
		return
	}
	src = src[:n]

	// Destination pixels pull from the inverse rotation.
	d2s := About(-angle, float64(width)/2, float64(height)/2)
	fw, fh := float64(width), float64(height)

	for y := 0; y < height; y++ {
		row := dst[y*width : (y+1)*width]
		for x := 0; x < width; x++ {
			sx, sy := Apply(d2s, float64(x)+0.5, float64(y)+0.5)
			fx, fy := sx-0.5, sy-0.5
			if fx <= -1 || fy <= -1 || fx >= fw || fy >= fh {
				continue
			}
			row[x] = bilinear(src, width, height, fx, fy)
		}
	}
}

// bilinear samples src at continuous pixel coordinates (fx, fy). Neighbours
// outside the grid contribute zero.
func bilinear(src []float32, width, height int, fx, fy float64) float32 {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := float32(fx - float64(x0))
	ty := float32(fy - float64(y0))

	at := func(x, y int) float32 {
		if x < 0 || y < 0 || x >= width || y >= height {
			return 0
		}
		return src[y*width+x]
	}

	top := at(x0, y0)*(1-tx) + at(x0+1, y0)*tx
	bottom := at(x0, y0+1)*(1-tx) + at(x0+1, y0+1)*tx
	return top*(1-ty) + bottom*ty
}

// RotateMask implements Rotator on top of x/image/draw, viewing both buffers
// as image.Gray without copying.
func (Affine) RotateMask(dst, src []uint8, angle float64, width, height int) {
	n := width * height
	dst = dst[:n]
	clear(dst)
	if n == 0 || !finite(angle) {
		return
	}

	bounds := image.Rect(0, 0, width, height)
	dstImg := &image.Gray{Pix: dst, Stride: width, Rect: bounds}
	srcImg := &image.Gray{Pix: src[:n], Stride: width, Rect: bounds}

	s2d := About(angle, float64(width)/2, float64(height)/2)
	draw.NearestNeighbor.Transform(dstImg, s2d, srcImg, bounds, draw.Src, nil)
}
