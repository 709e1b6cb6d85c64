package generator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/energyguard/pkg/errkind"
)

func options() Options {
	return Options{
		Points:           100,
		Start:            time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC),
		End:              time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		IncludeAnomalies: true,
		AnomalyFraction:  0.1,
		DatasetID:        7,
		Seed:             1,
	}
}

func TestGenerate(t *testing.T) {
	t.Run("shape", func(t *testing.T) {
		s, err := Generate(options())
		require.NoError(t, err)
		require.Len(t, s.Readings, 100)

		first := s.Readings[0]
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), first.Timestamp)
		assert.Equal(t, 72*time.Minute*6, s.Readings[1].Timestamp.Sub(first.Timestamp))

		for _, r := range s.Readings {
			assert.Equal(t, int64(7), r.DatasetID)
			assert.GreaterOrEqual(t, r.EnergyConsumption, 0.0)
			require.NotNil(t, r.Temperature)
			require.NotNil(t, r.Humidity)
			require.NotNil(t, r.Occupancy)
			assert.GreaterOrEqual(t, *r.Occupancy, 0)
		}
	})

	t.Run("injected anomalies", func(t *testing.T) {
		s, err := Generate(options())
		require.NoError(t, err)
		require.Len(t, s.Injected, 10)
		for i := 1; i < len(s.Injected); i++ {
			assert.Less(t, s.Injected[i-1], s.Injected[i])
		}

		opts := options()
		opts.IncludeAnomalies = false
		s, err = Generate(opts)
		require.NoError(t, err)
		assert.Empty(t, s.Injected)
	})

	t.Run("minimum interval", func(t *testing.T) {
		opts := options()
		opts.Points = 1000
		opts.End = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

		s, err := Generate(opts)
		require.NoError(t, err)
		require.Len(t, s.Readings, 96)
		assert.Equal(t, 30*time.Minute, s.Readings[1].Timestamp.Sub(s.Readings[0].Timestamp))
		assert.Len(t, s.Injected, 9)
	})

	t.Run("reproducible", func(t *testing.T) {
		a, err := Generate(options())
		require.NoError(t, err)
		b, err := Generate(options())
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("business hours are occupied", func(t *testing.T) {
		opts := options()
		opts.IncludeAnomalies = false
		opts.Points = 24 * 30
		s, err := Generate(opts)
		require.NoError(t, err)

		var busy, quiet, nBusy, nQuiet float64
		for _, r := range s.Readings {
			h := r.Timestamp.Hour()
			wd := r.Timestamp.Weekday()
			if h >= 8 && h <= 18 && wd != time.Saturday && wd != time.Sunday {
				busy += float64(*r.Occupancy)
				nBusy++
			} else {
				quiet += float64(*r.Occupancy)
				nQuiet++
			}
		}
		assert.Greater(t, busy/nBusy, 10.0)
		assert.Less(t, quiet/nQuiet, 1.0)
	})

	t.Run("invalid input", func(t *testing.T) {
		tests := []struct {
			name   string
			modify func(*Options)
			want   error
		}{
			{"end before start", func(o *Options) { o.End = o.Start.AddDate(0, 0, -1) }, ErrInvalidDateRange},
			{"same day", func(o *Options) { o.End = o.Start.Add(time.Hour) }, ErrInvalidDateRange},
			{"zero points", func(o *Options) { o.Points = 0 }, ErrInvalidPoints},
			{"negative points", func(o *Options) { o.Points = -5 }, ErrInvalidPoints},
			{"fraction", func(o *Options) { o.AnomalyFraction = 1.5 }, ErrInvalidFraction},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				opts := options()
				tt.modify(&opts)
				_, err := Generate(opts)
				assert.ErrorIs(t, err, tt.want)
				assert.ErrorIs(t, err, errkind.Input)
			})
		}
	})
}
