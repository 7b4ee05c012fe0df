package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tomosirt/internal/models"
	"tomosirt/pkg/config"
	"tomosirt/pkg/logging"
	"tomosirt/pkg/quality"
	"tomosirt/pkg/sirt"
	"tomosirt/pkg/visualization"
	"tomosirt/pkg/volumeio"
)

func runRecon(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("recon", stderr)
	in := fs.StringP("in", "i", "", "input sinogram base name (required)")
	out := fs.StringP("out", "o", "", "output volume base name (required)")
	configPath := fs.StringP("config", "c", "", "YAML or JSONC configuration file")
	envFile := fs.String("env-file", ".env", "dotenv file with SIRT_* overrides")
	grid := fs.Int("grid", 0, "reconstruction grid size (default: detector count)")
	iterations := fs.IntP("iterations", "n", 0, "number of SIRT iterations")
	workers := fs.IntP("workers", "w", 0, "worker pool width")
	backend := fs.String("backend", "", "executor: pool or serial")
	accumulation := fs.String("accumulation", "", "update accumulation: partitioned or locked")
	exportSlices := fs.String("export-slices", "", "directory for per-slice images")
	format := fs.String("format", "", "slice image format: tiff or png")
	reference := fs.String("reference", "", "reference volume base name for quality metrics")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	logFile := fs.String("log-file", "", "also write JSON logs to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("--in and --out are required")
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(*envFile); err != nil {
		return err
	}

	// Explicit flags win over the file and the environment.
	if fs.Changed("iterations") {
		cfg.Reconstruction.Iterations = *iterations
	}
	if fs.Changed("workers") {
		cfg.Reconstruction.Workers = *workers
	}
	if fs.Changed("backend") {
		cfg.Reconstruction.Backend = *backend
	}
	if fs.Changed("accumulation") {
		cfg.Reconstruction.Accumulation = *accumulation
	}
	if fs.Changed("export-slices") {
		cfg.Output.ExportSlices = *exportSlices
	}
	if fs.Changed("format") {
		cfg.Output.SliceFormat = *format
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = *logLevel
	}
	if fs.Changed("log-file") {
		cfg.Logging.File = *logFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
		Development: cfg.Logging.Development,
		Console:     stderr,
	}).With(zap.String("run_id", uuid.NewString()))
	defer func() { _ = logger.Sync() }()

	sino, err := volumeio.ReadSinogram(*in)
	if err != nil {
		return err
	}
	n := *grid
	if n == 0 {
		n = sino.Detectors
	}
	geom := models.Geometry{
		Slices:    sino.Slices,
		Angles:    len(sino.Angles),
		Detectors: sino.Detectors,
		GridX:     n,
		GridY:     n,
	}
	strategy, err := sirt.ParseStrategy(cfg.Reconstruction.Accumulation)
	if err != nil {
		return err
	}

	logger.Info("loaded sinogram",
		zap.String("path", *in),
		zap.Int("slices", geom.Slices),
		zap.Int("angles", geom.Angles),
		zap.Int("detectors", geom.Detectors),
	)

	vol := models.NewVolume(geom.GridX, geom.GridY, geom.Slices)
	start := time.Now()
	err = sirt.Reconstruct(sino.Data, geom, sino.Angles, vol.Data, cfg.Reconstruction.Iterations, sirt.Options{
		Workers:      cfg.Reconstruction.Workers,
		Backend:      cfg.Reconstruction.Backend,
		Accumulation: strategy,
		Logger:       logger,
		OnIteration: func(i int) {
			fmt.Fprintf(stdout, "Iteration %d/%d done (%.2fs)\n", i+1, cfg.Reconstruction.Iterations, time.Since(start).Seconds())
		},
	})
	if err != nil {
		return fmt.Errorf("reconstruction failed: %w", err)
	}
	elapsed := time.Since(start)

	if err := volumeio.WriteVolume(*out, vol); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\nReconstruction completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Fprintf(stdout, "Volume saved to: %s\n", *out)

	if cfg.Output.ExportSlices != "" {
		viewer := visualization.NewViewer(vol)
		if err := viewer.SaveSliceSequence("z", cfg.Output.ExportSlices, cfg.Output.SliceFormat); err != nil {
			return fmt.Errorf("exporting slices: %w", err)
		}
		fmt.Fprintf(stdout, "Slices saved to: %s\n", cfg.Output.ExportSlices)
	}

	proj, err := sirt.Project(vol.Data, geom, sino.Angles, nil)
	if err != nil {
		return err
	}
	residual := quality.Residual(sino.Data, proj)

	var metrics *quality.Metrics
	if *reference != "" {
		ref, err := volumeio.ReadVolume(*reference)
		if err != nil {
			return fmt.Errorf("reading reference: %w", err)
		}
		m, err := quality.Compare(ref.Data, vol.Data)
		if err != nil {
			return fmt.Errorf("comparing with reference: %w", err)
		}
		metrics = &m
	}
	printSummary(stdout, residual, metrics)
	return nil
}

// printSummary prints the projection residual and, when a reference was
// given, the quality metrics. Good values are green, poor ones red.
func printSummary(w io.Writer, residual float64, m *quality.Metrics) {
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintln(w, "\nReconstruction Quality")
	header.Fprintln(w, "======================")
	fmt.Fprintf(w, "Projection residual (L2): %.6f\n", residual)
	if m == nil {
		return
	}

	grade := func(good bool) *color.Color {
		if good {
			return color.New(color.FgGreen)
		}
		return color.New(color.FgRed)
	}
	grade(m.RMSE < 0.1).Fprintf(w, "Root Mean Square Error (RMSE): %.6f\n", m.RMSE)
	grade(m.MAE < 0.05).Fprintf(w, "Mean Absolute Error (MAE): %.6f\n", m.MAE)
	grade(m.SSIM > 0.8).Fprintf(w, "Structural Similarity (SSIM): %.4f\n", m.SSIM)
	grade(m.Correlation > 0.9).Fprintf(w, "Correlation: %.4f\n", m.Correlation)
}
