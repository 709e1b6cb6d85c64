// Package features turns readings into fixed-width numeric matrices for the
// detectors.
package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/hed1ad/energyguard/pkg/models"
)

// Column names, in matrix order.
const (
	EnergyConsumption = "energy_consumption"
	Temperature       = "temperature"
	Humidity          = "humidity"
	Occupancy         = "occupancy"
)

// ErrInvalidReading is returned for readings with out-of-range values.
var ErrInvalidReading = errors.New("invalid reading")

// Matrix is an N x D feature matrix with its column names.
type Matrix struct {
	Rows    [][]float64
	Columns []string
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	return len(m.Rows)
}

type channel struct {
	name  string
	value func(models.Reading) (float64, bool)
}

var optional = []channel{
	{Temperature, func(r models.Reading) (float64, bool) {
		if r.Temperature == nil {
			return 0, false
		}
		return *r.Temperature, true
	}},
	{Humidity, func(r models.Reading) (float64, bool) {
		if r.Humidity == nil {
			return 0, false
		}
		return *r.Humidity, true
	}},
	{Occupancy, func(r models.Reading) (float64, bool) {
		if r.Occupancy == nil {
			return 0, false
		}
		return float64(*r.Occupancy), true
	}},
}

// Build converts readings into a feature matrix. Column 0 is always energy
// consumption; an optional channel is included when at least one reading
// supplies it, and readings that lack an included channel receive the mean
// of the values that are present. Empty input yields an empty matrix.
func Build(readings []models.Reading) (*Matrix, error) {
	m := &Matrix{Columns: []string{EnergyConsumption}}
	if len(readings) == 0 {
		return m, nil
	}

	for i, r := range readings {
		if !finite(r.EnergyConsumption) {
			return nil, fmt.Errorf("%w: reading %d has non-finite energy consumption", ErrInvalidReading, i)
		}
		if r.Temperature != nil && !finite(*r.Temperature) {
			return nil, fmt.Errorf("%w: reading %d has non-finite temperature", ErrInvalidReading, i)
		}
		if r.Humidity != nil && !finite(*r.Humidity) {
			return nil, fmt.Errorf("%w: reading %d has non-finite humidity", ErrInvalidReading, i)
		}
		if r.EnergyConsumption < 0 {
			return nil, fmt.Errorf("%w: reading %d has negative energy consumption", ErrInvalidReading, i)
		}
		if r.Occupancy != nil && *r.Occupancy < 0 {
			return nil, fmt.Errorf("%w: reading %d has negative occupancy", ErrInvalidReading, i)
		}
	}

	var included []channel
	var fill []float64
	for _, ch := range optional {
		var sum float64
		var n int
		for _, r := range readings {
			if v, ok := ch.value(r); ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		included = append(included, ch)
		fill = append(fill, sum/float64(n))
		m.Columns = append(m.Columns, ch.name)
	}

	m.Rows = make([][]float64, len(readings))
	for i, r := range readings {
		row := make([]float64, 0, len(m.Columns))
		row = append(row, r.EnergyConsumption)
		for j, ch := range included {
			v, ok := ch.value(r)
			if !ok {
				v = fill[j]
			}
			row = append(row, v)
		}
		m.Rows[i] = row
	}

	return m, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
