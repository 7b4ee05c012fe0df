package sirt

import (
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tomosirt/internal/models"
	"tomosirt/pkg/parallel"
	"tomosirt/pkg/phantom"
	"tomosirt/pkg/quality"
)

// panicRotator fails every grid rotation, making every angle task abort.
type panicRotator struct{}

func (panicRotator) RotateGrid(_, _ []float32, _ float64, _, _ int) {
	panic("rotation unavailable")
}

func (panicRotator) RotateMask(_, _ []uint8, _ float64, _, _ int) {}

func squareGeometry(slices, angles, n int) models.Geometry {
	return models.Geometry{Slices: slices, Angles: angles, Detectors: n, GridX: n, GridY: n}
}

// simulate builds a sinogram from a phantom volume.
func simulate(t *testing.T, geom models.Geometry, angles, volume []float32) []float32 {
	t.Helper()
	sino, err := Project(volume, geom, angles, nil)
	require.NoError(t, err)
	return sino
}

func TestZeroIterationsLeaveVolumeUnchanged(t *testing.T) {
	geom := squareGeometry(2, 3, 6)
	angles := phantom.Angles(3)
	sino := simulate(t, geom, angles, phantom.Stack(phantom.Square(6, 2, 1), 2))

	recon := make([]float32, geom.VolumeLen())
	for i := range recon {
		recon[i] = float32(i) * 0.01
	}
	before := slices.Clone(recon)

	require.NoError(t, Reconstruct(sino, geom, angles, recon, 0, Options{Workers: 2}))
	assert.Empty(t, cmp.Diff(before, recon))
}

func TestPreconditionsRejectedBeforeWork(t *testing.T) {
	geom := squareGeometry(1, 2, 4)
	goodSino := make([]float32, geom.SinogramLen())
	goodAngles := []float32{0, 1}

	tests := []struct {
		name       string
		geom       models.Geometry
		sino       []float32
		angles     []float32
		reconLen   int
		iterations int
		wantErr    error
	}{
		{"negative dimension", models.Geometry{Slices: -1, GridX: 4, GridY: 4}, goodSino, goodAngles, 16, 1, ErrInvalidGeometry},
		{"detectors exceed rows", models.Geometry{Slices: 1, Angles: 2, Detectors: 5, GridX: 4, GridY: 4}, make([]float32, 10), goodAngles, 16, 1, ErrInvalidGeometry},
		{"short sinogram", geom, goodSino[:5], goodAngles, 16, 1, ErrBufferSize},
		{"wrong angle count", geom, goodSino, []float32{0}, 16, 1, ErrBufferSize},
		{"short volume", geom, goodSino, goodAngles, 15, 1, ErrBufferSize},
		{"nan angle", geom, goodSino, []float32{0, float32(math.NaN())}, 16, 1, ErrInvalidAngle},
		{"infinite angle", geom, goodSino, []float32{float32(math.Inf(1)), 0}, 16, 1, ErrInvalidAngle},
		{"negative iterations", geom, goodSino, goodAngles, 16, -1, ErrInvalidIterations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recon := make([]float32, tt.reconLen)
			for i := range recon {
				recon[i] = 3
			}
			before := slices.Clone(recon)

			err := Reconstruct(tt.sino, tt.geom, tt.angles, recon, tt.iterations, Options{Workers: 1})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, cmp.Diff(before, recon), "volume must not be touched")
		})
	}
}

func TestNewEngineRejectsUnknownOptions(t *testing.T) {
	geom := squareGeometry(1, 1, 4)

	_, err := NewEngine(geom, Options{Backend: "opencl"})
	assert.ErrorIs(t, err, parallel.ErrUnknownBackend)

	_, err = NewEngine(geom, Options{Accumulation: Strategy(42)})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestParseStrategy(t *testing.T) {
	for name, want := range map[string]Strategy{"": Partitioned, "partitioned": Partitioned, "Locked": Locked, "mutex": Locked} {
		got, err := ParseStrategy(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseStrategy("atomic")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Equal(t, "locked", Locked.String())
}

func TestSingleAngleExactProjectionIsFixedPoint(t *testing.T) {
	geom := squareGeometry(1, 1, 8)
	angles := []float32{0.9}

	recon := make([]float32, geom.VolumeLen())
	for i := range recon {
		recon[i] = 0.25
	}
	sino := simulate(t, geom, angles, recon)
	before := slices.Clone(recon)

	require.NoError(t, Reconstruct(sino, geom, angles, recon, 1, Options{Workers: 2}))
	assert.Empty(t, cmp.Diff(before, recon))
}

func TestDegenerateMaskLeavesVolumeUnchanged(t *testing.T) {
	geom := squareGeometry(1, 4, 6)
	angles := phantom.Angles(4)
	sino := make([]float32, geom.SinogramLen())
	for i := range sino {
		sino[i] = 7
	}

	recon := phantom.Square(6, 2, 0.5)
	before := slices.Clone(recon)

	require.NoError(t, Reconstruct(sino, geom, angles, recon, 3, Options{Workers: 2, Rotator: blindRotator{}}))
	for i, v := range recon {
		require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), "pixel %d is %f", i, v)
	}
	assert.Empty(t, cmp.Diff(before, recon))
}

func TestSliceIndependence(t *testing.T) {
	const n = 8
	angles := phantom.Angles(4)
	slice0 := phantom.Square(n, 4, 1)
	slice1 := phantom.SheppLogan(n)

	both := squareGeometry(2, 4, n)
	sino := simulate(t, both, angles, append(slices.Clone(slice0), slice1...))
	recon := make([]float32, both.VolumeLen())
	require.NoError(t, Reconstruct(sino, both, angles, recon, 3, Options{Workers: 3}))

	single := squareGeometry(1, 4, n)
	proj := single.ProjectionSize()
	for s := 0; s < 2; s++ {
		alone := make([]float32, single.VolumeLen())
		require.NoError(t, Reconstruct(sino[s*proj:(s+1)*proj], single, angles, alone, 3, Options{Workers: 3}))
		assert.InDeltaSlice(t, alone, recon[s*n*n:(s+1)*n*n], 1e-6, "slice %d", s)
	}
}

func TestAngleOrderAndStrategyInvariance(t *testing.T) {
	const n = 8
	geom := squareGeometry(1, 6, n)
	angles := phantom.Angles(6)
	sino := simulate(t, geom, angles, phantom.SheppLogan(n))

	run := func(opts Options, order []int) []float32 {
		engine, err := NewEngine(geom, opts)
		require.NoError(t, err)
		defer engine.Close()
		engine.order = order

		recon := make([]float32, geom.VolumeLen())
		require.NoError(t, engine.Run(sino, angles, recon, 4))
		return recon
	}

	reference := run(Options{Backend: parallel.BackendSerial}, nil)

	variants := map[string]struct {
		opts  Options
		order []int
	}{
		"serial reversed":      {Options{Backend: parallel.BackendSerial}, []int{5, 4, 3, 2, 1, 0}},
		"pool partitioned":     {Options{Workers: 4, Accumulation: Partitioned}, nil},
		"pool locked":          {Options{Workers: 4, Accumulation: Locked}, nil},
		"pool locked shuffled": {Options{Workers: 3, Accumulation: Locked}, []int{3, 0, 5, 1, 4, 2}},
	}
	for name, v := range variants {
		t.Run(name, func(t *testing.T) {
			assert.InDeltaSlice(t, reference, run(v.opts, v.order), 1e-5)
		})
	}
}

func TestTaskFailureAbortsWithoutCommit(t *testing.T) {
	geom := squareGeometry(2, 3, 4)
	angles := phantom.Angles(3)
	sino := make([]float32, geom.SinogramLen())
	for i := range sino {
		sino[i] = 1
	}
	recon := make([]float32, geom.VolumeLen())
	before := slices.Clone(recon)

	err := Reconstruct(sino, geom, angles, recon, 2, Options{Workers: 2, Rotator: panicRotator{}})
	require.ErrorIs(t, err, ErrTaskFailed)
	assert.ErrorIs(t, err, parallel.ErrTaskPanic)
	assert.Empty(t, cmp.Diff(before, recon))
}

func TestEmptyAngleSetCommitsNothing(t *testing.T) {
	geom := squareGeometry(1, 0, 4)
	recon := phantom.Square(4, 2, 1)
	before := slices.Clone(recon)

	require.NoError(t, Reconstruct(nil, geom, nil, recon, 5, Options{}))
	assert.Empty(t, cmp.Diff(before, recon))
}

func TestEndToEndConvergence(t *testing.T) {
	const n = 8
	geom := squareGeometry(1, 4, n)
	angles := []float32{0, math.Pi / 4, math.Pi / 2, 3 * math.Pi / 4}
	truth := phantom.Square(n, 4, 1)
	sino := simulate(t, geom, angles, truth)

	recon := make([]float32, geom.VolumeLen())
	zeroRMSE := quality.RMSE(truth, recon)

	var residuals, errs []float64
	opts := Options{
		Workers: 4,
		Logger:  zaptest.NewLogger(t),
		OnIteration: func(int) {
			proj, err := Project(recon, geom, angles, nil)
			require.NoError(t, err)
			residuals = append(residuals, quality.Residual(sino, proj))
			errs = append(errs, quality.RMSE(truth, recon))
		},
	}
	require.NoError(t, Reconstruct(sino, geom, angles, recon, 20, opts))
	require.Len(t, residuals, 20)

	// Only float32 round-off may separate consecutive residuals.
	const roundOff = 1e-5
	for i := 1; i < len(residuals); i++ {
		assert.LessOrEqual(t, residuals[i], residuals[i-1]+roundOff,
			"projection residual grew at iteration %d", i)
	}
	assert.Less(t, residuals[19], residuals[0])
	assert.Less(t, errs[19], errs[0])
	assert.Less(t, errs[19], 0.8*zeroRMSE, "reconstruction should be clearly closer to the phantom than an empty image")

	for i, v := range recon {
		require.False(t, math.IsNaN(float64(v)), "pixel %d is NaN", i)
	}
}

// rectGeometry fills a non-square slice with a smooth ramp.
func rectGeometry(slices, angles, dx, nx, ny int) (models.Geometry, []float32) {
	geom := models.Geometry{Slices: slices, Angles: angles, Detectors: dx, GridX: nx, GridY: ny}
	vol := make([]float32, geom.VolumeLen())
	for i := range vol {
		x, y := i%nx, (i/nx)%ny
		vol[i] = float32(x+2*y) / float32(nx+2*ny)
	}
	return geom, vol
}

func TestNonSquareGridExactProjectionIsFixedPoint(t *testing.T) {
	for _, dims := range [][3]int{{5, 7, 9}, {9, 4, 9}} {
		dx, nx, ny := dims[0], dims[1], dims[2]
		t.Run(fmt.Sprintf("dx%d_nx%d_ny%d", dx, nx, ny), func(t *testing.T) {
			geom, recon := rectGeometry(2, 3, dx, nx, ny)
			angles := []float32{0.2, 1.3, 3e38}
			sino := simulate(t, geom, angles, recon)
			before := slices.Clone(recon)

			require.NoError(t, Reconstruct(sino, geom, angles, recon, 2, Options{Workers: 2}))
			assert.Empty(t, cmp.Diff(before, recon))
		})
	}
}

func TestNonSquareGridSliceIndependence(t *testing.T) {
	const dx, nx, ny = 5, 7, 9
	angles := phantom.Angles(5)
	both, truth := rectGeometry(2, 5, dx, nx, ny)
	// Give the second slice different content.
	for i := nx * ny; i < len(truth); i++ {
		truth[i] = 1 - truth[i]
	}
	sino := simulate(t, both, angles, truth)

	recon := make([]float32, both.VolumeLen())
	require.NoError(t, Reconstruct(sino, both, angles, recon, 4, Options{Workers: 3}))

	single, _ := rectGeometry(1, 5, dx, nx, ny)
	proj := single.ProjectionSize()
	size := single.SliceSize()
	for s := 0; s < 2; s++ {
		alone := make([]float32, size)
		require.NoError(t, Reconstruct(sino[s*proj:(s+1)*proj], single, angles, alone, 4, Options{Workers: 3}))
		assert.InDeltaSlice(t, alone, recon[s*size:(s+1)*size], 1e-6, "slice %d", s)
		for i, v := range alone {
			require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), "slice %d pixel %d is %f", s, i, v)
		}
	}
}
