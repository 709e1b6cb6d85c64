package main

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/energyguard/pkg/analysis"
	"github.com/hed1ad/energyguard/pkg/detectors"
	"github.com/hed1ad/energyguard/pkg/detectors/iforest"
	"github.com/hed1ad/energyguard/pkg/models"
)

type staticRepo []models.Reading

func (r staticRepo) ListReadings(context.Context, int64) ([]models.Reading, error) {
	return r, nil
}

func init() {
	log = slog.New(slog.DiscardHandler)
}

func TestWriteScored(t *testing.T) {
	ts := time.Date(2024, 1, 10, 16, 0, 0, 0, time.UTC)
	results := []detectResult{
		{run: &models.Run{Points: []models.ScoredPoint{
			{Reading: models.Reading{Timestamp: ts, EnergyConsumption: 10}, Score: 0.1, Algorithm: "density"},
			{Reading: models.Reading{Timestamp: ts.Add(time.Hour), EnergyConsumption: 30}, Score: 0.9, IsAnomaly: true, Algorithm: "density"},
		}}},
		{run: &models.Run{Points: []models.ScoredPoint{
			{Reading: models.Reading{Timestamp: ts, EnergyConsumption: 10}, Score: 0.2, Algorithm: "cluster"},
		}}},
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, writeScored(path, results))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "timestamp", rows[0][0])
	assert.Equal(t, []string{"2024-01-10 17:00:00", "30", "", "", "", "0.900000", "true", "density"}, rows[2])
	assert.Equal(t, "cluster", rows[3][7])

	t.Run("unwritable path", func(t *testing.T) {
		err := writeScored(filepath.Join(t.TempDir(), "missing", "out.csv"), results)
		assert.Error(t, err)
	})
}

func TestSelectAlgorithms(t *testing.T) {
	reg := detectors.NewRegistry(detectors.Density)
	reg.Register(detectors.Strategy{
		Algorithm: detectors.Density,
		New:       func(seed int64) detectors.Detector { return iforest.New(iforest.WithSeed(seed)) },
	})
	reg.Register(detectors.Strategy{
		Algorithm: detectors.Reconstruction,
		New:       func(seed int64) detectors.Detector { return iforest.New(iforest.WithSeed(seed)) },
		Available: func() bool { return false },
	})
	svc := analysis.NewService(staticRepo{}, analysis.WithRegistry(reg))

	tests := []struct {
		name    string
		want    []detectors.Algorithm
		wantErr bool
	}{
		{"all", []detectors.Algorithm{detectors.Density}, false},
		{"ALL", []detectors.Algorithm{detectors.Density}, false},
		{"kmeans_clustering", []detectors.Algorithm{detectors.Cluster}, false},
		{"reconstruction", []detectors.Algorithm{detectors.Reconstruction}, false},
		{"bogus", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectAlgorithms(svc, tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, detectors.ErrUnknownAlgorithm)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectAll(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	readings := make(staticRepo, 60)
	for i := range readings {
		energy := 10.0 + float64(i%3)*0.1
		if i == 30 {
			energy = 40
		}
		readings[i] = models.Reading{
			ID:                int64(i + 1),
			DatasetID:         1,
			Timestamp:         start.Add(time.Duration(i) * time.Hour),
			EnergyConsumption: energy,
		}
	}
	svc := analysis.NewService(readings)

	algorithms := []detectors.Algorithm{detectors.Density, detectors.Cluster}
	results, err := detectAll(context.Background(), svc, 1, algorithms, 0.05)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, r := range results {
		assert.Equal(t, string(algorithms[i]), r.run.Algorithm)
		assert.Len(t, r.run.Points, 60)
		assert.NotEmpty(t, r.recs)
		assert.True(t, r.eval.Approximate)
	}

	_, err = detectAll(context.Background(), svc, 1, algorithms, 0.9)
	assert.ErrorIs(t, err, analysis.ErrInput)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "n/a", percent(nil))
	assert.Equal(t, "4.8%", percent(models.Float(0.048)))
	assert.Equal(t, "", savings(nil))
	assert.Equal(t, "", savings(models.Float(0)))
	assert.Equal(t, " (est. savings 12.5%)", savings(models.Float(0.125)))
	assert.Equal(t, "-", optional(nil))
	assert.Equal(t, "21.5", optional(models.Float(21.5)))
	assert.Equal(t, "-", optionalInt(nil))
	assert.Equal(t, "3", optionalInt(models.Int(3)))
}
