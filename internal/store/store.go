// Package store persists datasets, readings and detection runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hed1ad/energyguard/pkg/models"
)

// timeLayout is the stored timestamp format. Event times (creation,
// detection, run start) are stored in UTC; reading timestamps keep the wall
// clock of the zone they were recorded in and read back with that wall
// clock in UTC, so hour and weekday stay those of the site.
const timeLayout = "2006-01-02 15:04:05"

// ErrNotFound is returned when a dataset or run does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; serialize access through a single connection.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, now: time.Now}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_sample INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset_id INTEGER NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
		timestamp TEXT NOT NULL,
		energy_consumption REAL NOT NULL,
		temperature REAL,
		humidity REAL,
		occupancy INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_readings_dataset ON readings(dataset_id, timestamp);
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		dataset_id INTEGER NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
		requested TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		contamination REAL NOT NULL,
		fallback INTEGER NOT NULL DEFAULT 0,
		features TEXT NOT NULL,
		points INTEGER NOT NULL,
		anomalies INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset_id, started_at);
	CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		reading_id INTEGER NOT NULL REFERENCES readings(id) ON DELETE CASCADE,
		dataset_id INTEGER NOT NULL,
		score REAL NOT NULL,
		algorithm TEXT NOT NULL,
		detected_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_anomalies_run ON anomalies(run_id);
	CREATE INDEX IF NOT EXISTS idx_anomalies_dataset ON anomalies(dataset_id);
	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		dataset_id INTEGER NOT NULL,
		algorithm TEXT NOT NULL,
		accuracy REAL,
		precision REAL,
		recall REAL,
		f1_score REAL,
		approximate INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		dataset_id INTEGER NOT NULL,
		anomaly_id TEXT,
		category TEXT NOT NULL,
		text TEXT NOT NULL,
		potential_savings REAL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recommendations_run ON recommendations(run_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// CreateDataset inserts a dataset and sets its ID and creation time.
func (db *DB) CreateDataset(ctx context.Context, d *models.Dataset) error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("dataset name is required")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = db.now().UTC().Truncate(time.Second)
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO datasets (name, description, is_sample, created_at) VALUES (?, ?, ?, ?)`,
		d.Name, d.Description, d.IsSample, formatTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting dataset: %w", err)
	}

	d.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading dataset id: %w", err)
	}
	return nil
}

// GetDataset returns a dataset by ID.
func (db *DB) GetDataset(ctx context.Context, id int64) (*models.Dataset, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, description, is_sample, created_at FROM datasets WHERE id = ?`, id)

	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying dataset: %w", err)
	}
	return d, nil
}

// DatasetSummary is a dataset with its reading count.
type DatasetSummary struct {
	models.Dataset
	Readings int `json:"readings"`
	Runs     int `json:"runs"`
}

// ListDatasets returns every dataset, newest first.
func (db *DB) ListDatasets(ctx context.Context) ([]DatasetSummary, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT d.id, d.name, d.description, d.is_sample, d.created_at,
		(SELECT COUNT(*) FROM readings r WHERE r.dataset_id = d.id),
		(SELECT COUNT(*) FROM runs u WHERE u.dataset_id = d.id)
	FROM datasets d
	ORDER BY d.created_at DESC, d.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying datasets: %w", err)
	}
	defer rows.Close()

	var out []DatasetSummary
	for rows.Next() {
		var s DatasetSummary
		var created string
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.IsSample, &created, &s.Readings, &s.Runs); err != nil {
			return nil, fmt.Errorf("scanning dataset: %w", err)
		}
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteDataset removes a dataset with its readings and runs.
func (db *DB) DeleteDataset(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting dataset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dataset %d: %w", id, ErrNotFound)
	}
	return nil
}

// InsertReadings stores readings for a dataset in one transaction and sets
// their IDs.
func (db *DB) InsertReadings(ctx context.Context, datasetID int64, readings []models.Reading) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO readings (dataset_id, timestamp, energy_consumption, temperature, humidity, occupancy)
	VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range readings {
		r := &readings[i]
		res, err := stmt.ExecContext(ctx, datasetID, formatWallClock(r.Timestamp), r.EnergyConsumption,
			r.Temperature, r.Humidity, r.Occupancy)
		if err != nil {
			return fmt.Errorf("inserting reading %d: %w", i, err)
		}
		if r.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading id: %w", err)
		}
		r.DatasetID = datasetID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing readings: %w", err)
	}
	return nil
}

// ListReadings returns a dataset's readings ordered by timestamp.
func (db *DB) ListReadings(ctx context.Context, datasetID int64) ([]models.Reading, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, dataset_id, timestamp, energy_consumption, temperature, humidity, occupancy
	FROM readings
	WHERE dataset_id = ?
	ORDER BY timestamp, id
	`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var out []models.Reading
	for rows.Next() {
		var r models.Reading
		var ts string
		var temperature, humidity sql.NullFloat64
		var occupancy sql.NullInt64
		if err := rows.Scan(&r.ID, &r.DatasetID, &ts, &r.EnergyConsumption, &temperature, &humidity, &occupancy); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if r.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if temperature.Valid {
			r.Temperature = models.Float(temperature.Float64)
		}
		if humidity.Valid {
			r.Humidity = models.Float(humidity.Float64)
		}
		if occupancy.Valid {
			r.Occupancy = models.Int(int(occupancy.Int64))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanDataset(row *sql.Row) (*models.Dataset, error) {
	var d models.Dataset
	var created string
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.IsSample, &created); err != nil {
		return nil, err
	}
	var err error
	if d.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatWallClock(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}
