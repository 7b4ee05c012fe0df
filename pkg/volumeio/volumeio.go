// Package volumeio stores sinograms and volumes on disk.
//
// A dataset named base is two files: base.yaml, a header describing the
// shape (and the angle table for sinograms), and base.raw, the float32
// samples in little-endian order. Both files are replaced atomically.
package volumeio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"tomosirt/internal/models"
)

const (
	KindSinogram = "sinogram"
	KindVolume   = "volume"

	dtypeFloat32 = "float32"
	littleEndian = "little"
)

var (
	// ErrFormat is returned for headers this package cannot read.
	ErrFormat = errors.New("volumeio: unsupported format")

	// ErrKind is returned when a sinogram is read as a volume or vice versa.
	ErrKind = errors.New("volumeio: wrong dataset kind")

	// ErrShape is returned when the payload does not match the header.
	ErrShape = errors.New("volumeio: shape mismatch")
)

// Header is the YAML sidecar of a dataset. Shape is [dy, dt, dx] for a
// sinogram and [dy, ny, nx] for a volume.
type Header struct {
	Kind      string    `yaml:"kind"`
	Shape     []int     `yaml:"shape,flow"`
	Angles    []float32 `yaml:"angles,omitempty,flow"`
	DType     string    `yaml:"dtype"`
	ByteOrder string    `yaml:"byte_order"`
}

// count returns the number of samples the shape describes. ok is false for
// negative dimensions or a product that does not fit in an int.
func (h Header) count() (n int, ok bool) {
	n = 1
	for _, d := range h.Shape {
		if d < 0 {
			return 0, false
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

// Paths returns the header and payload file names for base.
func Paths(base string) (header, payload string) {
	return base + ".yaml", base + ".raw"
}

// WriteSinogram stores s under base.
func WriteSinogram(base string, s *models.Sinogram) error {
	h := Header{
		Kind:   KindSinogram,
		Shape:  []int{s.Slices, len(s.Angles), s.Detectors},
		Angles: s.Angles,
	}
	return write(base, h, s.Data)
}

// ReadSinogram loads a sinogram written by WriteSinogram.
func ReadSinogram(base string) (*models.Sinogram, error) {
	h, data, err := read(base, KindSinogram)
	if err != nil {
		return nil, err
	}
	if len(h.Angles) != h.Shape[1] {
		return nil, fmt.Errorf("%w: header lists %d angles for %d projections", ErrShape, len(h.Angles), h.Shape[1])
	}
	return &models.Sinogram{
		Data:      data,
		Angles:    h.Angles,
		Slices:    h.Shape[0],
		Detectors: h.Shape[2],
	}, nil
}

// WriteVolume stores v under base.
func WriteVolume(base string, v *models.Volume) error {
	h := Header{
		Kind:  KindVolume,
		Shape: []int{v.Depth, v.Height, v.Width},
	}
	return write(base, h, v.Data)
}

// ReadVolume loads a volume written by WriteVolume.
func ReadVolume(base string) (*models.Volume, error) {
	h, data, err := read(base, KindVolume)
	if err != nil {
		return nil, err
	}
	return &models.Volume{
		Data:   data,
		Depth:  h.Shape[0],
		Height: h.Shape[1],
		Width:  h.Shape[2],
	}, nil
}

func write(base string, h Header, data []float32) error {
	h.DType = dtypeFloat32
	h.ByteOrder = littleEndian
	if n, ok := h.count(); !ok || n != len(data) {
		return fmt.Errorf("%w: shape %v does not hold %d values", ErrShape, h.Shape, len(data))
	}

	headerPath, payloadPath := Paths(base)
	if err := os.MkdirAll(filepath.Dir(headerPath), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	payload := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(payload[4*i:], math.Float32bits(v))
	}
	if err := atomic.WriteFile(payloadPath, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("error writing %s: %w", payloadPath, err)
	}

	hdr, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("error marshaling header: %w", err)
	}
	// The header goes last so a readable header always has its payload.
	if err := atomic.WriteFile(headerPath, bytes.NewReader(hdr)); err != nil {
		return fmt.Errorf("error writing %s: %w", headerPath, err)
	}
	return nil
}

func read(base, kind string) (Header, []float32, error) {
	headerPath, payloadPath := Paths(base)

	raw, err := os.ReadFile(headerPath)
	if err != nil {
		return Header{}, nil, fmt.Errorf("error reading header: %w", err)
	}
	var h Header
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return Header{}, nil, fmt.Errorf("error parsing header %s: %w", headerPath, err)
	}
	if h.DType != dtypeFloat32 || h.ByteOrder != littleEndian {
		return Header{}, nil, fmt.Errorf("%w: dtype %q byte order %q", ErrFormat, h.DType, h.ByteOrder)
	}
	if h.Kind != kind {
		return Header{}, nil, fmt.Errorf("%w: %s is a %s, want %s", ErrKind, base, h.Kind, kind)
	}
	if len(h.Shape) != 3 {
		return Header{}, nil, fmt.Errorf("%w: shape %v is not 3-D", ErrShape, h.Shape)
	}
	count, ok := h.count()
	if !ok || count > math.MaxInt/4 {
		return Header{}, nil, fmt.Errorf("%w: invalid shape %v", ErrShape, h.Shape)
	}

	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return Header{}, nil, fmt.Errorf("error reading payload: %w", err)
	}
	if len(payload) != 4*count {
		return Header{}, nil, fmt.Errorf("%w: %s has %d bytes, shape %v needs %d",
			ErrShape, payloadPath, len(payload), h.Shape, 4*count)
	}

	data := make([]float32, count)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}
	return h, data, nil
}
