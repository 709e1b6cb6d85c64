// Package models holds the value records shared by the detection pipeline
// and its persistence layer.
package models

import "time"

// Dataset is a named collection of readings.
type Dataset struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsSample    bool      `json:"is_sample"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reading is a single energy measurement. Optional sensor channels are nil
// when the source did not supply them.
type Reading struct {
	ID                int64     `json:"id"`
	DatasetID         int64     `json:"dataset_id"`
	Timestamp         time.Time `json:"timestamp"`
	EnergyConsumption float64   `json:"energy_consumption"`
	Temperature       *float64  `json:"temperature,omitempty"`
	Humidity          *float64  `json:"humidity,omitempty"`
	Occupancy         *int      `json:"occupancy,omitempty"`
}

// ScoredPoint is the outcome of one detection run for one reading.
type ScoredPoint struct {
	Reading   Reading `json:"reading"`
	Score     float64 `json:"score"`
	IsAnomaly bool    `json:"is_anomaly"`
	Algorithm string  `json:"algorithm"`
}

// Anomaly is a flagged reading, materialized for storage.
type Anomaly struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	ReadingID  int64     `json:"reading_id"`
	DatasetID  int64     `json:"dataset_id"`
	Score      float64   `json:"score"`
	Algorithm  string    `json:"algorithm"`
	DetectedAt time.Time `json:"detected_at"`
}

// Evaluation holds approximate quality metrics for a detection run.
// A nil metric means it is undefined for the run.
type Evaluation struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id,omitempty"`
	DatasetID   int64     `json:"dataset_id"`
	Algorithm   string    `json:"algorithm"`
	Accuracy    *float64  `json:"accuracy"`
	Precision   *float64  `json:"precision"`
	Recall      *float64  `json:"recall"`
	F1          *float64  `json:"f1_score"`
	Approximate bool      `json:"approximate"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recommendation is an efficiency action derived from a run's anomalies.
type Recommendation struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id,omitempty"`
	DatasetID        int64     `json:"dataset_id"`
	AnomalyID        *string   `json:"anomaly_id,omitempty"`
	Category         string    `json:"category"`
	Text             string    `json:"text"`
	PotentialSavings *float64  `json:"potential_savings"`
	CreatedAt        time.Time `json:"created_at"`
}

// Run is one execution of one algorithm against one dataset.
type Run struct {
	ID            string        `json:"id"`
	DatasetID     int64         `json:"dataset_id"`
	Requested     string        `json:"requested_algorithm"`
	Algorithm     string        `json:"algorithm"`
	Contamination float64       `json:"contamination"`
	Fallback      bool          `json:"fallback"`
	Features      []string      `json:"features"`
	Points        []ScoredPoint `json:"-"`
	Anomalies     []Anomaly     `json:"anomalies"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}
