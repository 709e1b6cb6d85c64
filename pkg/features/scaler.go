package features

import (
	"errors"
	"fmt"
	"math"
)

// Scaler standardizes columns to zero mean and unit variance. A fitted
// Scaler belongs to one run.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// Fit computes the population mean and standard deviation of every column.
func (s *Scaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return errors.New("empty data")
	}

	width := len(rows[0])
	s.Mean = make([]float64, width)
	s.Std = make([]float64, width)

	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), width)
		}
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	n := float64(len(rows))
	for j := range s.Mean {
		s.Mean[j] /= n
	}

	for _, row := range rows {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / n)
	}

	return nil
}

// Transform returns standardized copies of rows. Zero-variance columns map to 0.
func (s *Scaler) Transform(rows [][]float64) ([][]float64, error) {
	if s.Mean == nil {
		return nil, errors.New("scaler not fitted")
	}

	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			if s.Std[j] == 0 {
				continue
			}
			scaled[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits the scaler on rows and transforms them.
func (s *Scaler) FitTransform(rows [][]float64) ([][]float64, error) {
	if len(rows) == 0 {
		return [][]float64{}, nil
	}
	if err := s.Fit(rows); err != nil {
		return nil, err
	}
	return s.Transform(rows)
}
