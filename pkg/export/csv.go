// Package export holds the solver visitors that persist run state: CSV
// tables per iteration, compressed snapshots for resuming and JPEG renderings
// of the similarity matrix on the corrected axis.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"zspacing/pkg/fit"
	"zspacing/pkg/inference"
)

// WriteCoordinates writes one row per section: index, coordinate, previous
// coordinate and scaling factor. previous and factors may be nil.
func WriteCoordinates(w io.Writer, coords, previous, factors []float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "coordinate", "previous", "scaling_factor"}); err != nil {
		return err
	}
	for i, c := range coords {
		row := []string{strconv.Itoa(i), formatFloat(c), "", ""}
		if previous != nil {
			row[2] = formatFloat(previous[i])
		}
		if factors != nil {
			row[3] = formatFloat(factors[i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFit writes the fit curve with one row per distance 1..R: the global
// curve followed by one column per local window.
func WriteFit(w io.Writer, f *fit.Fit) error {
	windows := f.Windows()
	header := []string{"distance", "global"}
	for i := range windows {
		header = append(header, fmt.Sprintf("window_%d", i))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	global := f.Global()
	for k := 1; k <= f.Range(); k++ {
		row := []string{strconv.Itoa(k), formatFloat(global[k])}
		for _, c := range windows {
			row = append(row, formatFloat(c[k]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// CSVVisitor writes coordinates_%04d.csv and fit_%04d.csv into dir after
// every iteration.
func CSVVisitor(dir string) inference.Visitor {
	return func(_ context.Context, step inference.Step) error {
		name := filepath.Join(dir, fmt.Sprintf("coordinates_%04d.csv", step.Iteration))
		err := writeFile(name, func(w io.Writer) error {
			return WriteCoordinates(w, step.Coordinates, step.Previous, step.ScalingFactors)
		})
		if err != nil {
			return err
		}
		name = filepath.Join(dir, fmt.Sprintf("fit_%04d.csv", step.Iteration))
		return writeFile(name, func(w io.Writer) error {
			return WriteFit(w, step.Fit)
		})
	}
}
