package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"zspacing/pkg/fit"
	"zspacing/pkg/inference"
	"zspacing/pkg/transform"
)

// Snapshot is the minimal state needed to inspect a run or resume it.
// Per-section slices are in original section order.
type Snapshot struct {
	Iteration      int        `json:"iteration"`
	Coordinates    []float64  `json:"coordinates"`
	ScalingFactors []float64  `json:"scaling_factors"`
	Permutation    []int      `json:"permutation,omitempty"`
	Fit            *FitRecord `json:"fit,omitempty"`
}

// FitRecord is the serialized form of a fit.Fit.
type FitRecord struct {
	Variant  string      `json:"variant"`
	Sections int         `json:"sections"`
	Global   []float64   `json:"global"`
	Windows  [][]float64 `json:"windows,omitempty"`
	Centers  []float64   `json:"centers,omitempty"`
}

// NewSnapshot captures a visitor step.
func NewSnapshot(step inference.Step) Snapshot {
	s := Snapshot{
		Iteration:      step.Iteration,
		Coordinates:    step.Coordinates,
		ScalingFactors: step.ScalingFactors,
		Fit:            recordFit(step.Fit),
	}
	if step.Permutation != nil && !step.Permutation.IsIdentity() {
		s.Permutation = step.Permutation.Lookup()
	}
	return s
}

// ResultSnapshot captures the outcome of a run.
func ResultSnapshot(res *inference.Result) Snapshot {
	s := Snapshot{
		Iteration:      len(res.Report.Iterations) - 1,
		Coordinates:    res.Coordinates,
		ScalingFactors: res.ScalingFactors,
		Fit:            recordFit(res.Fit),
	}
	if res.Permutation != nil {
		s.Permutation = res.Permutation.Lookup()
	}
	return s
}

func recordFit(f *fit.Fit) *FitRecord {
	if f == nil {
		return nil
	}
	rec := &FitRecord{
		Variant:  f.Variant().String(),
		Sections: f.Sections(),
		Global:   f.Global(),
		Centers:  f.Centers(),
	}
	for _, c := range f.Windows() {
		rec.Windows = append(rec.Windows, c)
	}
	return rec
}

// RestoreFit rebuilds the fit, or returns nil when none was recorded.
func (s Snapshot) RestoreFit() (*fit.Fit, error) {
	rec := s.Fit
	if rec == nil {
		return nil, nil
	}
	if len(rec.Windows) == 0 {
		return fit.NewGlobalFit(rec.Global, rec.Sections), nil
	}
	windows := make([]fit.Curve, len(rec.Windows))
	for i, c := range rec.Windows {
		windows[i] = c
	}
	return fit.NewLocalFit(rec.Global, windows, rec.Centers, rec.Sections)
}

// RestorePermutation rebuilds the permutation, or returns nil when the run
// did not reorder.
func (s Snapshot) RestorePermutation() (*transform.Permutation, error) {
	if s.Permutation == nil {
		return nil, nil
	}
	return transform.NewPermutation(s.Permutation)
}

// Resume seeds opts with the snapshot's scaling factors and fit and returns
// the coordinates to start from. A snapshot of a reordering run turns
// reordering on, since its coordinates need not be monotone.
func (s Snapshot) Resume(opts *inference.Options) ([]float64, error) {
	f, err := s.RestoreFit()
	if err != nil {
		return nil, fmt.Errorf("failed to restore fit: %w", err)
	}
	if _, err := s.RestorePermutation(); err != nil {
		return nil, fmt.Errorf("failed to restore permutation: %w", err)
	}
	if s.Permutation != nil {
		opts.WithReorder = true
	}
	opts.PriorFit = f
	opts.InitialScalingFactors = append([]float64(nil), s.ScalingFactors...)
	return append([]float64(nil), s.Coordinates...), nil
}

// WriteSnapshot encodes s as zstd-compressed JSON.
func WriteSnapshot(w io.Writer, s Snapshot) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := json.NewEncoder(enc).Encode(s); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Snapshot{}, err
	}
	defer dec.Close()

	var s Snapshot
	if err := json.NewDecoder(dec).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if len(s.Coordinates) != len(s.ScalingFactors) {
		return Snapshot{}, fmt.Errorf("snapshot has %d coordinates and %d scaling factors", len(s.Coordinates), len(s.ScalingFactors))
	}
	return s, nil
}

// SaveSnapshot writes s to path, replacing any previous file atomically.
func SaveSnapshot(path string, s Snapshot) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteSnapshot(tmp, s); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// SnapshotVisitor keeps the latest state of a run at path, refreshed every
// `every` iterations.
func SnapshotVisitor(path string, every int) inference.Visitor {
	if every < 1 {
		every = 1
	}
	return func(_ context.Context, step inference.Step) error {
		if step.Iteration%every != 0 {
			return nil
		}
		return SaveSnapshot(path, NewSnapshot(step))
	}
}
