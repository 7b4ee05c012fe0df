// Package quality compares a reconstruction against a reference image or
// a reprojected sinogram against the measured one.
package quality

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrLengthMismatch is returned by Compare for inputs of different size.
var ErrLengthMismatch = errors.New("quality: length mismatch")

// Metrics holds the quality measures reported after a reconstruction with a
// known reference.
type Metrics struct {
	// RMSE is the root mean square error between reference and
	// reconstruction. Lower is better.
	RMSE float64

	// MAE is the mean absolute error. Lower is better.
	MAE float64

	// SSIM is the global structural similarity index in [-1, 1], with 1
	// meaning identical structure, luminance and contrast.
	SSIM float64

	// Correlation is the Pearson correlation of the two images.
	Correlation float64
}

// Compare computes every metric for a reference and a reconstruction.
func Compare(reference, reconstructed []float32) (Metrics, error) {
	if len(reference) != len(reconstructed) {
		return Metrics{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(reference), len(reconstructed))
	}
	ref, rec := toFloat64(reference), toFloat64(reconstructed)
	return Metrics{
		RMSE:        rmse(ref, rec),
		MAE:         mae(ref, rec),
		SSIM:        ssim(ref, rec),
		Correlation: correlation(ref, rec),
	}, nil
}

// RMSE computes the root mean square error. Mismatched or empty inputs
// give 0.
func RMSE(reference, reconstructed []float32) float64 {
	if len(reference) != len(reconstructed) {
		return 0
	}
	return rmse(toFloat64(reference), toFloat64(reconstructed))
}

// MAE computes the mean absolute error. Mismatched or empty inputs give 0.
func MAE(reference, reconstructed []float32) float64 {
	if len(reference) != len(reconstructed) {
		return 0
	}
	return mae(toFloat64(reference), toFloat64(reconstructed))
}

// Residual is the L2 distance between a measured and a simulated sinogram.
func Residual(measured, simulated []float32) float64 {
	if len(measured) != len(simulated) || len(measured) == 0 {
		return 0
	}
	return floats.Distance(toFloat64(measured), toFloat64(simulated), 2)
}

func rmse(original, reconstructed []float64) float64 {
	n := len(original)
	if n == 0 {
		return 0
	}
	return floats.Distance(original, reconstructed, 2) / math.Sqrt(float64(n))
}

func mae(original, reconstructed []float64) float64 {
	n := len(original)
	if n == 0 {
		return 0
	}
	return floats.Distance(original, reconstructed, 1) / float64(n)
}

// ssim computes a single-window structural similarity index. The dynamic
// range is taken from the reference image.
func ssim(original, reconstructed []float64) float64 {
	const k1 = 0.01
	const k2 = 0.03

	if len(original) < 2 {
		return 0
	}

	L := floats.Max(original) - floats.Min(original)
	if L == 0 {
		L = 1
	}
	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	muX := stat.Mean(original, nil)
	muY := stat.Mean(reconstructed, nil)
	sigmaX := stat.Variance(original, nil)
	sigmaY := stat.Variance(reconstructed, nil)
	sigmaXY := stat.Covariance(original, reconstructed, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	if den > 0 {
		return num / den
	}
	return 0
}

func correlation(original, reconstructed []float64) float64 {
	if len(original) < 2 {
		return 0
	}
	c := stat.Correlation(original, reconstructed, nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}

func toFloat64(data []float32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}
