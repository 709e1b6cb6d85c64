// Package csv reads energy readings from CSV files and writes detection
// results back out as CSV.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hed1ad/energyguard/pkg/models"
)

// TimestampLayout is the timestamp format of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Column names.
const (
	ColTimestamp   = "timestamp"
	ColEnergy      = "energy_consumption"
	ColTemperature = "temperature"
	ColHumidity    = "humidity"
	ColOccupancy   = "occupancy"
)

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("missing required column")

// Reader reads readings from a CSV file with a header row.
type Reader struct {
	closer   io.Closer
	reader   *csv.Reader
	columns  map[string]int
	location *time.Location
	lenient  bool
	onSkip   func(error)
	line     int
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithLocation sets the time zone timestamps are interpreted in. The
// default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(r *Reader) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithLenient makes Read skip malformed rows instead of failing.
func WithLenient(lenient bool) Option {
	return func(r *Reader) {
		r.lenient = lenient
	}
}

// OnSkip registers fn to be called with the error of every row skipped in
// lenient mode.
func OnSkip(fn func(error)) Option {
	return func(r *Reader) {
		r.onSkip = fn
	}
}

// Open opens filename and reads its header.
func Open(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}

	r, err := NewReader(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewReader reads the header from src.
func NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{
		reader:   csv.NewReader(src),
		location: time.UTC,
	}
	r.reader.FieldsPerRecord = -1
	r.reader.TrimLeadingSpace = true

	for _, opt := range opts {
		opt(r)
	}

	headers, err := r.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	r.line = 1

	r.columns = make(map[string]int, len(headers))
	for i, h := range headers {
		r.columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{ColTimestamp, ColEnergy} {
		if _, ok := r.columns[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	return r, nil
}

// Headers returns the recognized columns in file order.
func (r *Reader) Headers() []string {
	out := make([]string, 0, len(r.columns))
	for _, name := range []string{ColTimestamp, ColEnergy, ColTemperature, ColHumidity, ColOccupancy} {
		if _, ok := r.columns[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Read returns all readings.
func (r *Reader) Read() ([]models.Reading, error) {
	var readings []models.Reading

	for {
		reading, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !r.lenient {
				return nil, err
			}
			if r.onSkip != nil {
				r.onSkip(err)
			}
			continue
		}
		readings = append(readings, reading)
	}

	return readings, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Reader) next() (models.Reading, error) {
	record, err := r.reader.Read()
	r.line++
	if err == io.EOF {
		return models.Reading{}, io.EOF
	}
	if err != nil {
		return models.Reading{}, fmt.Errorf("line %d: %w", r.line, err)
	}

	reading, err := r.parseRow(record)
	if err != nil {
		return models.Reading{}, fmt.Errorf("line %d: %w", r.line, err)
	}
	return reading, nil
}

// parseRow converts one record into a reading. Empty optional cells are absent.
func (r *Reader) parseRow(record []string) (models.Reading, error) {
	var reading models.Reading

	ts, ok := r.cell(record, ColTimestamp)
	if !ok {
		return reading, errors.New("empty timestamp")
	}
	t, err := time.ParseInLocation(TimestampLayout, ts, r.location)
	if err != nil {
		return reading, fmt.Errorf("parse timestamp: %w", err)
	}
	reading.Timestamp = t

	energy, ok := r.cell(record, ColEnergy)
	if !ok {
		return reading, errors.New("empty energy_consumption")
	}
	if reading.EnergyConsumption, err = strconv.ParseFloat(energy, 64); err != nil {
		return reading, fmt.Errorf("parse energy_consumption: %w", err)
	}

	if v, ok := r.cell(record, ColTemperature); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return reading, fmt.Errorf("parse temperature: %w", err)
		}
		reading.Temperature = &f
	}
	if v, ok := r.cell(record, ColHumidity); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return reading, fmt.Errorf("parse humidity: %w", err)
		}
		reading.Humidity = &f
	}
	if v, ok := r.cell(record, ColOccupancy); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return reading, fmt.Errorf("parse occupancy: %w", err)
		}
		reading.Occupancy = &n
	}

	return reading, nil
}

func (r *Reader) cell(record []string, name string) (string, bool) {
	i, ok := r.columns[name]
	if !ok || i >= len(record) {
		return "", false
	}
	v := strings.TrimSpace(record[i])
	return v, v != ""
}
