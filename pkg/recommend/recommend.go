// Package recommend turns a run's anomalies into prioritized efficiency
// recommendations.
package recommend

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/hed1ad/energyguard/pkg/models"
)

// Recommendation categories.
const (
	CategoryNone        = "none"
	CategoryNight       = "night"
	CategoryWeekend     = "weekend"
	CategoryTemperature = "temperature"
	CategoryOccupancy   = "occupancy"
	CategoryGeneric     = "generic"
	CategoryFallback    = "fallback"
)

const (
	// NoAnomaliesText is the single recommendation for a clean run.
	NoAnomaliesText = "No anomalies detected. Continue current energy management practices."
	// FallbackText replaces the recommendations when generation fails.
	FallbackText = "Error generating detailed recommendations. Consider manual review of anomalies."

	// MinPatternAnomalies is the joined anomaly count needed before
	// patterns are mined.
	MinPatternAnomalies = 3
	// Target is the minimum number of recommendations for a run with anomalies.
	Target = 3
)

// Template is a generic recommendation with its base savings rate.
type Template struct {
	Text    string
	Savings float64
}

// GenericTemplates top up pattern recommendations.
var GenericTemplates = []Template{
	{"High energy consumption during off-hours detected. Consider adjusting operational schedules or implementing automatic power-down systems.", 0.10},
	{"Unusual energy spikes detected. Investigate potential equipment malfunctions or unnecessary simultaneous operations.", 0.15},
	{"Consistent high energy usage pattern detected. Consider an energy audit to identify optimization opportunities.", 0.12},
	{"Seasonal anomaly pattern detected. Adjust HVAC settings based on outdoor temperature changes.", 0.08},
	{"Energy consumption does not correlate with occupancy levels. Implement occupancy-based control systems.", 0.10},
	{"Standby power consumption detected outside of business hours. Consider smart power strips or complete shutdowns.", 0.05},
}

// pattern classifies anomalous readings into one recommendation.
type pattern struct {
	category string
	base     float64
	match    func(models.Reading) bool
	text     func(count int) string
}

var patterns = []pattern{
	{
		category: CategoryNight,
		base:     0.08,
		match: func(r models.Reading) bool {
			h := r.Timestamp.Hour()
			return h >= 20 || h <= 5
		},
		text: func(n int) string {
			return fmt.Sprintf("Detected %d instances of high energy usage during night hours. "+
				"Implement timer controls to automatically shut down non-essential systems after hours.", n)
		},
	},
	{
		category: CategoryWeekend,
		base:     0.10,
		match: func(r models.Reading) bool {
			d := r.Timestamp.Weekday()
			return d == time.Saturday || d == time.Sunday
		},
		text: func(n int) string {
			return fmt.Sprintf("Observed %d anomalies during weekends. "+
				"Review weekend operations and create specific power-down protocols for non-working days.", n)
		},
	},
	{
		category: CategoryTemperature,
		base:     0.12,
		match: func(r models.Reading) bool {
			return r.Temperature != nil && (*r.Temperature > 30 || *r.Temperature < 10)
		},
		text: func(n int) string {
			return fmt.Sprintf("Energy consumption anomalies correlate with extreme temperatures in %d instances. "+
				"Optimize HVAC settings and consider building envelope improvements for better insulation.", n)
		},
	},
	{
		category: CategoryOccupancy,
		base:     0.15,
		match: func(r models.Reading) bool {
			return r.Occupancy != nil && *r.Occupancy == 0 && r.EnergyConsumption > 5
		},
		text: func(n int) string {
			return fmt.Sprintf("Detected %d instances of high energy usage during zero occupancy. "+
				"Install occupancy sensors and integrate with building systems to reduce energy waste.", n)
		},
	},
}

// Engine generates recommendations. It is not safe for concurrent use
// because it owns its random source.
type Engine struct {
	rng       *rand.Rand
	templates []Template
}

// New creates an engine drawing template order and savings jitter from rng.
func New(rng *rand.Rand) *Engine {
	return &Engine{rng: rng, templates: GenericTemplates}
}

// Generate mines the anomalies of one run. readings maps reading IDs to
// readings of the dataset. It always returns usable recommendations; when
// err is non-nil they are the single fallback recommendation.
func (e *Engine) Generate(datasetID int64, anomalies []models.Anomaly, readings map[int64]models.Reading) ([]models.Recommendation, error) {
	if len(anomalies) == 0 {
		return []models.Recommendation{{
			DatasetID:        datasetID,
			Category:         CategoryNone,
			Text:             NoAnomaliesText,
			PotentialSavings: models.Float(0),
		}}, nil
	}

	recs, err := e.generate(datasetID, anomalies, readings)
	if err != nil {
		return []models.Recommendation{Fallback(datasetID)}, err
	}
	return recs, nil
}

func (e *Engine) generate(datasetID int64, anomalies []models.Anomaly, readings map[int64]models.Reading) ([]models.Recommendation, error) {
	if e.rng == nil {
		return nil, errors.New("no random source")
	}

	joined := make([]models.Reading, 0, len(anomalies))
	for _, a := range anomalies {
		if a.DatasetID != datasetID {
			return nil, fmt.Errorf("anomaly %s belongs to dataset %d, not %d", a.ID, a.DatasetID, datasetID)
		}
		if r, ok := readings[a.ReadingID]; ok {
			joined = append(joined, r)
		}
	}
	slices.SortStableFunc(joined, func(a, b models.Reading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	representative := anomalies[0].ID
	var recs []models.Recommendation

	if len(joined) >= MinPatternAnomalies {
		for _, p := range patterns {
			count := 0
			for _, r := range joined {
				if p.match(r) {
					count++
				}
			}
			if count == 0 {
				continue
			}
			recs = append(recs, models.Recommendation{
				DatasetID:        datasetID,
				AnomalyID:        &representative,
				Category:         p.category,
				Text:             p.text(count),
				PotentialSavings: models.Float(p.base * float64(count) / float64(len(joined))),
			})
		}
	}

	if missing := Target - len(recs); missing > 0 {
		order := e.rng.Perm(len(e.templates))
		for _, i := range order[:min(missing, len(order))] {
			tpl := e.templates[i]
			recs = append(recs, models.Recommendation{
				DatasetID:        datasetID,
				AnomalyID:        &representative,
				Category:         CategoryGeneric,
				Text:             tpl.Text,
				PotentialSavings: models.Float(tpl.Savings * (0.8 + e.rng.Float64()*0.4)),
			})
		}
	}

	return recs, nil
}

// Fallback is the recommendation used when generation fails.
func Fallback(datasetID int64) models.Recommendation {
	return models.Recommendation{
		DatasetID: datasetID,
		Category:  CategoryFallback,
		Text:      FallbackText,
	}
}
