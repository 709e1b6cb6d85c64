package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hed1ad/energyguard/pkg/models"
)

// SaveRun stores a run with its anomalies, evaluation and recommendations
// in one transaction. Nothing is stored if any insert fails.
func (db *DB) SaveRun(ctx context.Context, run *models.Run, eval models.Evaluation, recs []models.Recommendation) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, dataset_id, requested, algorithm, contamination, fallback, features,
		points, anomalies, started_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.DatasetID, run.Requested, run.Algorithm, run.Contamination, run.Fallback,
		strings.Join(run.Features, ","), len(run.Points), len(run.Anomalies),
		formatTime(run.StartedAt), run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, a := range run.Anomalies {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO anomalies (id, run_id, reading_id, dataset_id, score, algorithm, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`, a.ID, run.ID, a.ReadingID, a.DatasetID, a.Score, a.Algorithm, formatTime(a.DetectedAt))
		if err != nil {
			return fmt.Errorf("inserting anomaly: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO evaluations (id, run_id, dataset_id, algorithm, accuracy, precision, recall,
		f1_score, approximate, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eval.ID, run.ID, eval.DatasetID, eval.Algorithm, eval.Accuracy, eval.Precision, eval.Recall,
		eval.F1, eval.Approximate, formatTime(eval.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting evaluation: %w", err)
	}

	for _, r := range recs {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO recommendations (id, run_id, dataset_id, anomaly_id, category, text,
			potential_savings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, run.ID, r.DatasetID, r.AnomalyID, r.Category, r.Text, r.PotentialSavings,
			formatTime(r.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting recommendation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// RunSummary is a stored run without its scored points.
type RunSummary struct {
	ID            string        `json:"id"`
	DatasetID     int64         `json:"dataset_id"`
	Requested     string        `json:"requested_algorithm"`
	Algorithm     string        `json:"algorithm"`
	Contamination float64       `json:"contamination"`
	Fallback      bool          `json:"fallback"`
	Features      []string      `json:"features"`
	Points        int           `json:"points"`
	Anomalies     int           `json:"anomalies"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

const runColumns = `id, dataset_id, requested, algorithm, contamination, fallback, features,
	points, anomalies, started_at, duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunSummary, error) {
	var r RunSummary
	var features, started string
	var ms int64
	if err := s.Scan(&r.ID, &r.DatasetID, &r.Requested, &r.Algorithm, &r.Contamination, &r.Fallback,
		&features, &r.Points, &r.Anomalies, &started, &ms); err != nil {
		return r, err
	}
	if features != "" {
		r.Features = strings.Split(features, ",")
	}
	r.Duration = time.Duration(ms) * time.Millisecond

	var err error
	r.StartedAt, err = parseTime(started)
	return r, err
}

// ListRuns returns a dataset's runs, newest first.
func (db *DB) ListRuns(ctx context.Context, datasetID int64) ([]RunSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE dataset_id = ? ORDER BY started_at DESC, rowid DESC`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns a run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (*RunSummary, error) {
	r, err := scanRun(db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return &r, nil
}

// ListAnomalies returns a run's anomalies with their readings, in
// timestamp order.
func (db *DB) ListAnomalies(ctx context.Context, runID string) ([]AnomalyDetail, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT a.id, a.run_id, a.reading_id, a.dataset_id, a.score, a.algorithm, a.detected_at,
		r.timestamp, r.energy_consumption, r.temperature, r.humidity, r.occupancy
	FROM anomalies a
	JOIN readings r ON r.id = a.reading_id
	WHERE a.run_id = ?
	ORDER BY r.timestamp, a.reading_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying anomalies: %w", err)
	}
	defer rows.Close()

	var out []AnomalyDetail
	for rows.Next() {
		var d AnomalyDetail
		var detected, ts string
		var temperature, humidity sql.NullFloat64
		var occupancy sql.NullInt64
		if err := rows.Scan(&d.ID, &d.RunID, &d.ReadingID, &d.DatasetID, &d.Score, &d.Algorithm, &detected,
			&ts, &d.Reading.EnergyConsumption, &temperature, &humidity, &occupancy); err != nil {
			return nil, fmt.Errorf("scanning anomaly: %w", err)
		}
		if d.DetectedAt, err = parseTime(detected); err != nil {
			return nil, err
		}
		if d.Reading.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		d.Reading.ID = d.ReadingID
		d.Reading.DatasetID = d.DatasetID
		if temperature.Valid {
			d.Reading.Temperature = models.Float(temperature.Float64)
		}
		if humidity.Valid {
			d.Reading.Humidity = models.Float(humidity.Float64)
		}
		if occupancy.Valid {
			d.Reading.Occupancy = models.Int(int(occupancy.Int64))
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AnomalyDetail is a stored anomaly joined with its reading.
type AnomalyDetail struct {
	models.Anomaly
	Reading models.Reading `json:"reading"`
}

// GetEvaluation returns the evaluation of a run.
func (db *DB) GetEvaluation(ctx context.Context, runID string) (*models.Evaluation, error) {
	var e models.Evaluation
	var created string
	var accuracy, precision, recall, f1 sql.NullFloat64

	err := db.conn.QueryRowContext(ctx, `
	SELECT id, run_id, dataset_id, algorithm, accuracy, precision, recall, f1_score, approximate, created_at
	FROM evaluations WHERE run_id = ?
	`, runID).Scan(&e.ID, &e.RunID, &e.DatasetID, &e.Algorithm, &accuracy, &precision, &recall, &f1,
		&e.Approximate, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evaluation for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying evaluation: %w", err)
	}

	e.Accuracy = nullFloat(accuracy)
	e.Precision = nullFloat(precision)
	e.Recall = nullFloat(recall)
	e.F1 = nullFloat(f1)
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListRecommendations returns a run's recommendations in insertion order.
func (db *DB) ListRecommendations(ctx context.Context, runID string) ([]models.Recommendation, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, run_id, dataset_id, anomaly_id, category, text, potential_savings, created_at
	FROM recommendations WHERE run_id = ? ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer rows.Close()

	var out []models.Recommendation
	for rows.Next() {
		var r models.Recommendation
		var anomalyID sql.NullString
		var savings sql.NullFloat64
		var created string
		if err := rows.Scan(&r.ID, &r.RunID, &r.DatasetID, &anomalyID, &r.Category, &r.Text, &savings, &created); err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		if anomalyID.Valid {
			r.AnomalyID = &anomalyID.String
		}
		r.PotentialSavings = nullFloat(savings)
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChartData is a dataset's series shaped for plotting. All slices are
// aligned by reading; absent sensor values are nil.
type ChartData struct {
	Timestamps        []string   `json:"timestamps"`
	EnergyConsumption []float64  `json:"energy_consumption"`
	Temperature       []*float64 `json:"temperature"`
	Humidity          []*float64 `json:"humidity"`
	IsAnomaly         []int      `json:"is_anomaly"`
}

// ChartData returns a dataset's series. A reading is flagged when the given
// run marked it anomalous, or any run did when runID is empty.
func (db *DB) ChartData(ctx context.Context, datasetID int64, runID string) (*ChartData, error) {
	readings, err := db.ListReadings(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	query := `SELECT DISTINCT reading_id FROM anomalies WHERE dataset_id = ?`
	args := []any{datasetID}
	if runID != "" {
		query += ` AND run_id = ?`
		args = append(args, runID)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying anomalies: %w", err)
	}
	defer rows.Close()

	flagged := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning anomaly: %w", err)
		}
		flagged[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	c := &ChartData{
		Timestamps:        make([]string, len(readings)),
		EnergyConsumption: make([]float64, len(readings)),
		Temperature:       make([]*float64, len(readings)),
		Humidity:          make([]*float64, len(readings)),
		IsAnomaly:         make([]int, len(readings)),
	}
	for i, r := range readings {
		c.Timestamps[i] = r.Timestamp.Format(timeLayout)
		c.EnergyConsumption[i] = r.EnergyConsumption
		c.Temperature[i] = r.Temperature
		c.Humidity[i] = r.Humidity
		if flagged[r.ID] {
			c.IsAnomaly[i] = 1
		}
	}
	return c, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float(v.Float64)
}
