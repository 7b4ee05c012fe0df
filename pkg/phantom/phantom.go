// Package phantom generates synthetic test objects and acquisition angles
// for simulating tomography scans.
package phantom

import "math"

// ellipse is one component of an ellipse phantom. Centre and semi-axes are
// in normalised coordinates [-1, 1]; phi is in degrees.
type ellipse struct {
	value      float32
	a, b       float64
	x0, y0     float64
	phiDegrees float64
}

// modifiedSheppLogan uses the Toft contrast values, which keep the
// interior features visible on a linear grey scale.
var modifiedSheppLogan = []ellipse{
	{1.0, 0.6900, 0.9200, 0, 0, 0},
	{-0.8, 0.6624, 0.8740, 0, -0.0184, 0},
	{-0.2, 0.1100, 0.3100, 0.22, 0, -18},
	{-0.2, 0.1600, 0.4100, -0.22, 0, 18},
	{0.1, 0.2100, 0.2500, 0, 0.35, 0},
	{0.1, 0.0460, 0.0460, 0, 0.1, 0},
	{0.1, 0.0460, 0.0460, 0, -0.1, 0},
	{0.1, 0.0460, 0.0230, -0.08, -0.605, 0},
	{0.1, 0.0230, 0.0230, 0, -0.606, 0},
	{0.1, 0.0230, 0.0460, 0.06, -0.605, 0},
}

// SheppLogan returns the modified Shepp-Logan head phantom sampled at pixel
// centres of an n*n grid, row-major with y pointing down.
func SheppLogan(n int) []float32 {
	img := make([]float32, n*n)
	if n <= 0 {
		return img
	}
	for _, e := range modifiedSheppLogan {
		sin, cos := math.Sincos(e.phiDegrees * math.Pi / 180)
		for row := 0; row < n; row++ {
			y := 1 - 2*(float64(row)+0.5)/float64(n)
			for col := 0; col < n; col++ {
				x := 2*(float64(col)+0.5)/float64(n) - 1
				dx, dy := x-e.x0, y-e.y0
				xr := dx*cos + dy*sin
				yr := -dx*sin + dy*cos
				if (xr*xr)/(e.a*e.a)+(yr*yr)/(e.b*e.b) <= 1 {
					img[row*n+col] += e.value
				}
			}
		}
	}
	return img
}

// Square returns an n*n grid that is value inside a centred inner*inner
// block and zero elsewhere.
func Square(n, inner int, value float32) []float32 {
	img := make([]float32, n*n)
	if inner > n {
		inner = n
	}
	lo := (n - inner) / 2
	for row := lo; row < lo+inner; row++ {
		for col := lo; col < lo+inner; col++ {
			img[row*n+col] = value
		}
	}
	return img
}

// Stack repeats one slice depth times into a flat volume.
func Stack(slice []float32, depth int) []float32 {
	vol := make([]float32, 0, len(slice)*depth)
	for i := 0; i < depth; i++ {
		vol = append(vol, slice...)
	}
	return vol
}

// Angles returns n projection angles evenly spaced over [0, π).
func Angles(n int) []float32 {
	angles := make([]float32, n)
	for i := range angles {
		angles[i] = float32(math.Pi * float64(i) / float64(n))
	}
	return angles
}
