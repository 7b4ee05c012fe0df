package quality

import (
	"errors"
	"math"
	"testing"
)

func TestCompareIdentical(t *testing.T) {
	img := []float32{0, 0.25, 0.5, 0.75, 1, 0.5}
	m, err := Compare(img, img)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if m.RMSE != 0 || m.MAE != 0 {
		t.Errorf("Expected zero error, got RMSE %f MAE %f", m.RMSE, m.MAE)
	}
	if math.Abs(m.SSIM-1) > 1e-9 {
		t.Errorf("Expected SSIM 1, got %f", m.SSIM)
	}
	if math.Abs(m.Correlation-1) > 1e-9 {
		t.Errorf("Expected correlation 1, got %f", m.Correlation)
	}
}

func TestErrors(t *testing.T) {
	ref := []float32{1, 1, 1, 1}
	rec := []float32{0, 2, 1, 1}

	if got := RMSE(ref, rec); math.Abs(got-math.Sqrt(0.5)) > 1e-9 {
		t.Errorf("Expected RMSE %f, got %f", math.Sqrt(0.5), got)
	}
	if got := MAE(ref, rec); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Expected MAE 0.5, got %f", got)
	}
	if got := Residual(ref, rec); math.Abs(got-math.Sqrt(2)) > 1e-9 {
		t.Errorf("Expected residual %f, got %f", math.Sqrt(2), got)
	}
}

func TestMismatchedLengths(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{1, 2}

	if _, err := Compare(a, b); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Expected ErrLengthMismatch, got %v", err)
	}
	if RMSE(a, b) != 0 || MAE(a, b) != 0 || Residual(a, b) != 0 {
		t.Error("Expected zero for mismatched inputs")
	}
}

func TestConstantReconstruction(t *testing.T) {
	ref := []float32{0, 1, 0, 1}
	flat := []float32{0.5, 0.5, 0.5, 0.5}
	m, err := Compare(ref, flat)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if m.Correlation != 0 {
		t.Errorf("Expected correlation 0 for a flat image, got %f", m.Correlation)
	}
	if m.SSIM >= 1 {
		t.Errorf("Expected SSIM below 1, got %f", m.SSIM)
	}
}
