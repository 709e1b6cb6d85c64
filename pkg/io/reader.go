// Package io provides input/output utilities for energy readings and
// detection results.
package io

import "github.com/hed1ad/energyguard/pkg/models"

// Reader is the interface for reading energy readings from various sources.
type Reader interface {
	// Read returns every reading in the source.
	Read() ([]models.Reading, error)

	// Close releases resources.
	Close() error
}

// Writer is the interface for writing detection results.
type Writer interface {
	// Write outputs a single scored reading.
	Write(point models.ScoredPoint) error

	// WriteAll outputs multiple scored readings.
	WriteAll(points []models.ScoredPoint) error

	// Close flushes and releases resources.
	Close() error
}
