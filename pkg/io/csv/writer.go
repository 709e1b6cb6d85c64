package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	energyio "github.com/hed1ad/energyguard/pkg/io"
	"github.com/hed1ad/energyguard/pkg/models"
)

var (
	_ energyio.Reader = (*Reader)(nil)
	_ energyio.Writer = (*Writer)(nil)
)

// ResultHeader is the header row written by Writer.
var ResultHeader = []string{
	ColTimestamp, ColEnergy, ColTemperature, ColHumidity, ColOccupancy,
	"score", "is_anomaly", "algorithm",
}

// Writer writes scored readings as CSV.
type Writer struct {
	w           *csv.Writer
	closer      io.Closer
	wroteHeader bool
}

// NewWriter creates a Writer on dst. If dst is an io.Closer, Close closes it.
func NewWriter(dst io.Writer) *Writer {
	w := &Writer{w: csv.NewWriter(dst)}
	if c, ok := dst.(io.Closer); ok {
		w.closer = c
	}
	return w
}

// Write outputs a single scored reading.
func (w *Writer) Write(p models.ScoredPoint) error {
	if !w.wroteHeader {
		if err := w.w.Write(ResultHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		w.wroteHeader = true
	}

	r := p.Reading
	record := []string{
		r.Timestamp.Format(TimestampLayout),
		strconv.FormatFloat(r.EnergyConsumption, 'f', -1, 64),
		optionalFloat(r.Temperature),
		optionalFloat(r.Humidity),
		"",
		strconv.FormatFloat(p.Score, 'f', 6, 64),
		strconv.FormatBool(p.IsAnomaly),
		p.Algorithm,
	}
	if r.Occupancy != nil {
		record[4] = strconv.Itoa(*r.Occupancy)
	}

	if err := w.w.Write(record); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// WriteAll outputs multiple scored readings and flushes.
func (w *Writer) WriteAll(points []models.ScoredPoint) error {
	for _, p := range points {
		if err := w.Write(p); err != nil {
			return err
		}
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes buffered output and closes the destination.
func (w *Writer) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
