// Package generator produces synthetic energy readings with daily, weekly
// and annual cycles and optionally injected anomalies.
package generator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/hed1ad/energyguard/pkg/errkind"
	"github.com/hed1ad/energyguard/pkg/models"
)

var (
	// ErrInvalidDateRange is returned when the end date is not after the start date.
	ErrInvalidDateRange = errors.New("end date must be after start date")
	// ErrInvalidPoints is returned for a non-positive point count.
	ErrInvalidPoints = errors.New("number of points must be positive")
	// ErrInvalidFraction is returned for an anomaly fraction outside [0, 1].
	ErrInvalidFraction = errors.New("anomaly fraction must be in [0, 1]")
)

// minInterval is the smallest spacing between generated readings.
const minInterval = 30 * time.Minute

// Options controls generation. Start and End are calendar dates; their
// time of day is ignored.
type Options struct {
	Points           int
	Start            time.Time
	End              time.Time
	IncludeAnomalies bool
	AnomalyFraction  float64
	DatasetID        int64
	Seed             int64
}

// DefaultOptions returns 30 days of 1000 readings with 10% anomalies.
func DefaultOptions() Options {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	return Options{
		Points:           1000,
		Start:            end.AddDate(0, 0, -30),
		End:              end,
		IncludeAnomalies: true,
		AnomalyFraction:  0.1,
		Seed:             42,
	}
}

// Sample is a generated dataset and the indices of the readings that were
// altered to be anomalous.
type Sample struct {
	Readings []models.Reading
	Injected []int
}

// Generate builds a synthetic dataset.
func Generate(opts Options) (*Sample, error) {
	start := day(opts.Start)
	end := day(opts.End)
	days := int(end.Sub(start).Hours() / 24)

	if days <= 0 {
		return nil, inputError(opts.DatasetID, fmt.Errorf("%w: %s to %s", ErrInvalidDateRange,
			start.Format(time.DateOnly), end.Format(time.DateOnly)))
	}
	if opts.Points <= 0 {
		return nil, inputError(opts.DatasetID, fmt.Errorf("%w: got %d", ErrInvalidPoints, opts.Points))
	}
	if opts.AnomalyFraction < 0 || opts.AnomalyFraction > 1 {
		return nil, inputError(opts.DatasetID, fmt.Errorf("%w: got %v", ErrInvalidFraction, opts.AnomalyFraction))
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	interval := time.Duration(float64(days*24) / float64(opts.Points) * float64(time.Hour))
	interval = max(interval, minInterval)
	last := end.Add(24*time.Hour - time.Nanosecond)

	timestamps := make([]time.Time, 0, opts.Points)
	for ts := start; len(timestamps) < opts.Points && !ts.After(last); ts = ts.Add(interval) {
		timestamps = append(timestamps, ts)
	}

	readings := make([]models.Reading, len(timestamps))
	energy := make([]float64, len(timestamps))
	for i, ts := range timestamps {
		hour := float64(ts.Hour())
		weekend := ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday

		base := 10 + 2*math.Sin(hour/12*math.Pi)
		weekly := 1.0
		if weekend {
			weekly = 0.7
		}
		monthly := 1 + 0.2*math.Sin(float64(ts.Month()-1)/12*2*math.Pi)
		energy[i] = base*weekly*monthly + rng.NormFloat64()*0.5

		temperature := 20 + 10*math.Sin((hour-12)/24*2*math.Pi) + rng.NormFloat64()*2
		humidity := 50 + 10*math.Sin((hour-6)/24*2*math.Pi) + rng.NormFloat64()*5

		var occupancy int
		if ts.Hour() >= 8 && ts.Hour() <= 18 && !weekend {
			occupancy = max(0, int(15+rng.NormFloat64()*5))
		} else {
			occupancy = max(0, int(rng.NormFloat64()))
		}

		readings[i] = models.Reading{
			DatasetID:   opts.DatasetID,
			Timestamp:   ts,
			Temperature: models.Float(temperature),
			Humidity:    models.Float(humidity),
			Occupancy:   models.Int(occupancy),
		}
	}

	var injected []int
	if opts.IncludeAnomalies && opts.AnomalyFraction > 0 {
		injected = inject(rng, energy, int(float64(len(energy))*opts.AnomalyFraction))
	}

	for i := range readings {
		readings[i].EnergyConsumption = max(0, energy[i])
	}

	return &Sample{Readings: readings, Injected: injected}, nil
}

// inject alters count distinct readings with a spike, a drop or a
// sustained shift and returns their sorted indices.
func inject(rng *rand.Rand, energy []float64, count int) []int {
	indices := rng.Perm(len(energy))[:count]

	for _, idx := range indices {
		switch rng.Intn(3) {
		case 0: // spike
			energy[idx] *= 2 + rng.Float64()
		case 1: // drop
			energy[idx] *= 0.1 + rng.Float64()*0.3
		case 2: // shift
			length := min(int(rng.ExpFloat64()*3), len(energy)-idx)
			factor := 1.5 + rng.Float64()*0.5
			for i := idx; i < idx+length; i++ {
				energy[i] *= factor
			}
		}
	}

	slices.Sort(indices)
	return indices
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func inputError(datasetID int64, err error) error {
	return errkind.New(errkind.Input, "generate", datasetID, err)
}
