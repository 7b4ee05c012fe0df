package main

import (
	"fmt"
	"io"

	"tomosirt/internal/models"
	"tomosirt/pkg/phantom"
	"tomosirt/pkg/sirt"
	"tomosirt/pkg/volumeio"
)

func runSimulate(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("simulate", stderr)
	kind := fs.String("phantom", "shepp", "phantom to project: shepp or square")
	size := fs.IntP("size", "n", 128, "grid and detector size in pixels")
	slices := fs.Int("slices", 1, "number of identical slices")
	angles := fs.IntP("angles", "a", 180, "number of projection angles over [0, pi)")
	out := fs.StringP("out", "o", "", "output dataset base name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("--out is required")
	}
	if *size <= 0 || *slices <= 0 || *angles < 0 {
		return fmt.Errorf("size and slices must be positive, angles non-negative")
	}

	var img []float32
	switch *kind {
	case "shepp", "shepp-logan":
		img = phantom.SheppLogan(*size)
	case "square":
		img = phantom.Square(*size, *size/2, 1)
	default:
		return fmt.Errorf("unknown phantom %q", *kind)
	}

	geom := models.Geometry{Slices: *slices, Angles: *angles, Detectors: *size, GridX: *size, GridY: *size}
	vol := &models.Volume{Data: phantom.Stack(img, *slices), Width: *size, Height: *size, Depth: *slices}
	theta := phantom.Angles(*angles)

	sino, err := sirt.Project(vol.Data, geom, theta, nil)
	if err != nil {
		return fmt.Errorf("projecting phantom: %w", err)
	}

	if err := volumeio.WriteSinogram(*out, &models.Sinogram{
		Data:      sino,
		Angles:    theta,
		Slices:    geom.Slices,
		Detectors: geom.Detectors,
	}); err != nil {
		return err
	}
	ref := phantomBase(*out)
	if err := volumeio.WriteVolume(ref, vol); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Sinogram %dx%dx%d saved to: %s\n", geom.Slices, geom.Angles, geom.Detectors, *out)
	fmt.Fprintf(stdout, "Phantom saved to: %s\n", ref)
	return nil
}

// phantomBase names the reference volume written next to a sinogram.
func phantomBase(out string) string {
	return out + "-phantom"
}
