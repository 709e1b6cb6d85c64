package features

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/energyguard/pkg/models"
)

func reading(energy float64) models.Reading {
	return models.Reading{
		Timestamp:         time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC),
		EnergyConsumption: energy,
	}
}

func TestBuild(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		m, err := Build(nil)
		require.NoError(t, err)
		assert.Equal(t, 0, m.Len())
		assert.Equal(t, []string{EnergyConsumption}, m.Columns)
	})

	t.Run("energy only", func(t *testing.T) {
		m, err := Build([]models.Reading{reading(1), reading(2)})
		require.NoError(t, err)
		assert.Equal(t, []string{EnergyConsumption}, m.Columns)
		assert.Equal(t, [][]float64{{1}, {2}}, m.Rows)
	})

	t.Run("all channels", func(t *testing.T) {
		r := reading(5)
		r.Temperature = models.Float(21.5)
		r.Humidity = models.Float(40)
		r.Occupancy = models.Int(3)

		m, err := Build([]models.Reading{r})
		require.NoError(t, err)
		assert.Equal(t, []string{EnergyConsumption, Temperature, Humidity, Occupancy}, m.Columns)
		assert.Equal(t, [][]float64{{5, 21.5, 40, 3}}, m.Rows)
	})

	t.Run("partial channel is mean filled", func(t *testing.T) {
		a, b, c := reading(1), reading(2), reading(3)
		a.Humidity = models.Float(30)
		c.Humidity = models.Float(50)

		m, err := Build([]models.Reading{a, b, c})
		require.NoError(t, err)
		assert.Equal(t, []string{EnergyConsumption, Humidity}, m.Columns)
		assert.Equal(t, [][]float64{{1, 30}, {2, 40}, {3, 50}}, m.Rows)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Build([]models.Reading{reading(-1)})
		assert.ErrorIs(t, err, ErrInvalidReading)

		r := reading(1)
		r.Occupancy = models.Int(-2)
		_, err = Build([]models.Reading{r})
		assert.ErrorIs(t, err, ErrInvalidReading)
	})

	t.Run("non-finite values", func(t *testing.T) {
		for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			_, err := Build([]models.Reading{reading(1), reading(v)})
			assert.ErrorIs(t, err, ErrInvalidReading, "energy %v", v)

			r := reading(1)
			r.Temperature = models.Float(v)
			_, err = Build([]models.Reading{r})
			assert.ErrorIs(t, err, ErrInvalidReading, "temperature %v", v)

			r = reading(1)
			r.Humidity = models.Float(v)
			_, err = Build([]models.Reading{r})
			assert.ErrorIs(t, err, ErrInvalidReading, "humidity %v", v)
		}
	})
}

func TestScaler(t *testing.T) {
	t.Run("round trip statistics", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		rows := make([][]float64, 500)
		for i := range rows {
			rows[i] = []float64{100 + rng.NormFloat64()*20, rng.Float64() * 5, 7}
		}

		var s Scaler
		out, err := s.FitTransform(rows)
		require.NoError(t, err)

		for j := 0; j < 2; j++ {
			var sum, sq float64
			for _, row := range out {
				sum += row[j]
			}
			mean := sum / float64(len(out))
			for _, row := range out {
				sq += (row[j] - mean) * (row[j] - mean)
			}
			assert.InDelta(t, 0, mean, 1e-9)
			assert.InDelta(t, 1, math.Sqrt(sq/float64(len(out))), 1e-9)
		}

		for _, row := range out {
			assert.Equal(t, 0.0, row[2], "zero-variance column maps to zero")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		var s Scaler
		out, err := s.FitTransform(nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("ragged rows", func(t *testing.T) {
		var s Scaler
		assert.Error(t, s.Fit([][]float64{{1, 2}, {3}}))
	})

	t.Run("transform before fit", func(t *testing.T) {
		var s Scaler
		_, err := s.Transform([][]float64{{1}})
		assert.Error(t, err)
	})
}
