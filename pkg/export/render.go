package export

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"
	"path/filepath"

	"zspacing/pkg/inference"
	"zspacing/pkg/similarity"
	"zspacing/pkg/transform"
)

// DefaultMaxSize is the image edge cap used when RenderOptions.MaxSize is
// zero.
const DefaultMaxSize = 4096

// RenderOptions controls matrix rendering.
type RenderOptions struct {
	// Step is the coordinate distance between pixels. Non-positive means 1.
	Step float64
	// Quality is the JPEG quality, 1-100. Zero means 90.
	Quality int
	// MaxSize caps the image edge in pixels; the step is widened to fit.
	// Zero means DefaultMaxSize, negative means no cap.
	MaxSize int
}

// step returns the pixel step for a coordinate span.
func (o RenderOptions) step(span float64) float64 {
	step := o.Step
	if !(step > 0) {
		step = 1
	}
	limit := o.MaxSize
	if limit == 0 {
		limit = DefaultMaxSize
	}
	if limit > 1 {
		if wide := span / float64(limit-1); wide > step {
			step = wide
		}
	}
	return step
}

// RenderMatrix writes m as a grayscale JPEG laid out on the corrected axis.
// coords are the section coordinates in original order; perm, when not nil,
// is the reordering produced by the solver. Similarities are clamped to
// [0,1] and undefined entries are black.
func RenderMatrix(w io.Writer, m similarity.Matrix, coords []float64, perm *transform.Permutation, opts RenderOptions) error {
	if len(coords) != m.Size() {
		return fmt.Errorf("got %d coordinates for %d sections", len(coords), m.Size())
	}
	sorted := coords
	if perm != nil {
		view, err := similarity.NewPermuted(m, perm)
		if err != nil {
			return err
		}
		m = view
		sorted = perm.ApplyToFloat64s(nil, coords)
	}
	lut, err := transform.NewLUT(sorted, false)
	if err != nil {
		return err
	}

	res, err := similarity.NewResampled(m, lut, opts.step(lut.Max()-lut.Min()))
	if err != nil {
		return err
	}

	size := res.Size()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: gray(res.At(y, x))})
		}
	}

	quality := opts.Quality
	if quality == 0 {
		quality = 90
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

func gray(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

// RenderVisitor renders m on the current axis into dir as
// matrix_%04d.jpg every `every` iterations.
func RenderVisitor(dir string, m similarity.Matrix, every int, opts RenderOptions) inference.Visitor {
	if every < 1 {
		every = 1
	}
	return func(_ context.Context, step inference.Step) error {
		if step.Iteration%every != 0 {
			return nil
		}
		path := filepath.Join(dir, fmt.Sprintf("matrix_%04d.jpg", step.Iteration))
		return writeFile(path, func(w io.Writer) error {
			return RenderMatrix(w, m, step.Coordinates, step.Permutation, opts)
		})
	}
}

// writeFile creates path, hands it to fn and closes it, reporting the first
// error.
func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
