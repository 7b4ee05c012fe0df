package visualization

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"golang.org/x/image/tiff"

	"tomosirt/internal/models"
)

// Viewer renders planes of a reconstructed volume as 16-bit grayscale
// images. Intensities are scaled with the minimum and maximum of the whole
// volume, so slices exported from one run are comparable.
type Viewer struct {
	// volume holds the reconstruction in [slice][row][col] order
	volume *models.Volume

	// lo, hi are the intensity range mapped to 0 and 65535
	lo, hi float32
}

// NewViewer creates a viewer over vol
func NewViewer(vol *models.Volume) *Viewer {
	v := &Viewer{volume: vol}
	if len(vol.Data) > 0 {
		v.lo, v.hi = vol.Data[0], vol.Data[0]
		for _, x := range vol.Data[1:] {
			v.lo = min(v.lo, x)
			v.hi = max(v.hi, x)
		}
	}
	return v
}

// Range returns the intensity range used for scaling.
func (v *Viewer) Range() (lo, hi float32) {
	return v.lo, v.hi
}

func (v *Viewer) gray(x float32) color.Gray16 {
	if v.hi <= v.lo {
		return color.Gray16{}
	}
	t := float64(x-v.lo) / float64(v.hi-v.lo)
	return color.Gray16{Y: uint16(max(0, min(65535, t*65535+0.5)))}
}

// ExtractSlice extracts a 2D plane along the given axis. "z" is a
// reconstructed slice; "x" and "y" cut across slices.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	w, h, d := v.volume.Width, v.volume.Height, v.volume.Depth
	at := func(x, y, z int) float32 { return v.volume.Data[z*w*h+y*w+x] }

	var img *image.Gray16
	switch strings.ToLower(axis) {
	case "x":
		// YZ plane
		if position >= w {
			return nil, fmt.Errorf("position %d exceeds width %d", position, w)
		}
		img = image.NewGray16(image.Rect(0, 0, d, h))
		for y := 0; y < h; y++ {
			for z := 0; z < d; z++ {
				img.SetGray16(z, y, v.gray(at(position, y, z)))
			}
		}

	case "y":
		// XZ plane
		if position >= h {
			return nil, fmt.Errorf("position %d exceeds height %d", position, h)
		}
		img = image.NewGray16(image.Rect(0, 0, w, d))
		for z := 0; z < d; z++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, z, v.gray(at(x, position, z)))
			}
		}

	case "z":
		if position >= d {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, d)
		}
		img = image.NewGray16(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, y, v.gray(at(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice encodes img as TIFF or PNG, chosen by the file extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
			return fmt.Errorf("encoding %s: %w", filename, err)
		}
	case ".png":
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encoding %s: %w", filename, err)
		}
	default:
		return fmt.Errorf("unsupported image format: %s", filename)
	}
	return atomic.WriteFile(filename, &buf)
}

// SaveSliceSequence writes every plane along axis into outputDir as
// slice_<axis>_NNN.<format>.
func (v *Viewer) SaveSliceSequence(axis, outputDir, format string) error {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	switch format {
	case "":
		format = "tiff"
	case "tif", "tiff", "png":
	default:
		return fmt.Errorf("unsupported image format: %s", format)
	}

	var n int
	switch strings.ToLower(axis) {
	case "x":
		n = v.volume.Width
	case "y":
		n = v.volume.Height
	case "z":
		n = v.volume.Depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.%s", strings.ToLower(axis), pos, format))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}
