// Package detectors provides unsupervised anomaly detection algorithms.
package detectors

import (
	"errors"
	"fmt"
	"strings"
)

// Algorithm names a scoring strategy.
type Algorithm string

const (
	// Density isolates points with an ensemble of random trees.
	Density Algorithm = "density"
	// Cluster measures the distance of each point to its k-means centroid.
	Cluster Algorithm = "cluster"
	// Reconstruction measures how badly an autoencoder reproduces each point.
	Reconstruction Algorithm = "reconstruction"
)

// Algorithms lists every known algorithm in display order.
var Algorithms = []Algorithm{Density, Cluster, Reconstruction}

var (
	// ErrInvalidContamination is returned for a contamination outside (0, 0.5].
	ErrInvalidContamination = errors.New("contamination must be in (0, 0.5]")
	// ErrUnknownAlgorithm is returned when an algorithm name cannot be resolved.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrUnavailable is returned when a registered algorithm cannot run here.
	ErrUnavailable = errors.New("algorithm unavailable")
)

// ParseAlgorithm resolves a user supplied name. The legacy names
// isolation_forest, kmeans_clustering and auto_encoder are accepted.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "density", "isolation_forest", "iforest":
		return Density, nil
	case "cluster", "kmeans_clustering", "kmeans":
		return Cluster, nil
	case "reconstruction", "auto_encoder", "autoencoder":
		return Reconstruction, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// Detector is the common interface for all anomaly detection algorithms.
type Detector interface {
	// Detect fits the algorithm on data and scores every row.
	// data is a 2D slice where each row is a sample and each column is a feature.
	// Roughly a contamination fraction of rows is labeled anomalous.
	Detect(data [][]float64, contamination float64) ([]Score, error)
}

// Score represents an anomaly detection result for one row.
type Score struct {
	// Value is non-negative; higher values are more anomalous. Values are
	// only comparable within a single Detect call.
	Value float64
	// IsAnomaly indicates if the row was labeled an outlier.
	IsAnomaly bool
}

// Config holds common configuration for detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies in the data.
	Contamination float64
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.1,
		RandomSeed:    42,
	}
}

// ValidateContamination reports whether c is a usable contamination.
func ValidateContamination(c float64) error {
	if !(c > 0 && c <= 0.5) {
		return fmt.Errorf("%w: got %v", ErrInvalidContamination, c)
	}
	return nil
}
