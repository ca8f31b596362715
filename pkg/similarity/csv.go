package similarity

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ReadCSV parses a square comma-separated similarity matrix into a strip of
// half-width comparisonRange. Empty cells and "NaN" read as undefined;
// entries outside the band are dropped.
func ReadCSV(r io.Reader, comparisonRange int) (*Strip, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading similarity matrix: %w", err)
	}
	n := len(records)
	if n == 0 {
		return nil, fmt.Errorf("similarity matrix is empty")
	}

	strip, err := NewStrip(n, comparisonRange)
	if err != nil {
		return nil, err
	}
	for i, record := range records {
		if len(record) != n {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(record), n)
		}
		for j, cell := range record {
			if abs(i-j) > comparisonRange || j < i {
				continue
			}
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			strip.Set(i, j, v)
		}
	}
	return strip, nil
}

// WriteCSV writes m as a square comma-separated matrix. Undefined entries are
// written as "NaN".
func WriteCSV(w io.Writer, m Matrix) error {
	writer := csv.NewWriter(w)
	n := m.Size()
	record := make([]string, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}
