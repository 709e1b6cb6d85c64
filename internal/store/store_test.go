package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/energyguard/pkg/analysis"
	"github.com/hed1ad/energyguard/pkg/models"
)

var _ analysis.ReadingRepository = (*DB)(nil)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *DB, n int) (*models.Dataset, []models.Reading) {
	t.Helper()
	ctx := context.Background()

	d := &models.Dataset{Name: "office", Description: "floor 2", IsSample: true}
	require.NoError(t, db.CreateDataset(ctx, d))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	readings := make([]models.Reading, n)
	for i := range readings {
		// inserted newest first to check ordering on read
		readings[i] = models.Reading{
			Timestamp:         start.Add(time.Duration(n-1-i) * time.Hour),
			EnergyConsumption: float64(10 + i),
		}
		if i%2 == 0 {
			readings[i].Temperature = models.Float(20.5)
			readings[i].Occupancy = models.Int(i)
		}
	}
	require.NoError(t, db.InsertReadings(ctx, d.ID, readings))
	return d, readings
}

func TestDatasets(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	d, _ := seed(t, db, 5)
	assert.NotZero(t, d.ID)
	assert.False(t, d.CreatedAt.IsZero())

	got, err := db.GetDataset(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Name, got.Name)
	assert.Equal(t, "floor 2", got.Description)
	assert.True(t, got.IsSample)

	list, err := db.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].Readings)
	assert.Equal(t, 0, list[0].Runs)

	_, err = db.GetDataset(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, db.CreateDataset(ctx, &models.Dataset{Name: " "}))

	require.NoError(t, db.DeleteDataset(ctx, d.ID))
	assert.ErrorIs(t, db.DeleteDataset(ctx, d.ID), ErrNotFound)
	readings, err := db.ListReadings(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestReadings(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d, inserted := seed(t, db, 4)

	for _, r := range inserted {
		assert.NotZero(t, r.ID)
		assert.Equal(t, d.ID, r.DatasetID)
	}

	readings, err := db.ListReadings(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, readings, 4)

	for i := 1; i < len(readings); i++ {
		assert.True(t, readings[i].Timestamp.After(readings[i-1].Timestamp))
	}

	// the earliest reading was inserted last, with an odd index
	first := readings[0]
	assert.Equal(t, 13.0, first.EnergyConsumption)
	assert.Nil(t, first.Temperature)
	assert.Nil(t, first.Occupancy)

	second := readings[1]
	assert.Equal(t, 20.5, *second.Temperature)
	assert.Equal(t, 2, *second.Occupancy)
	assert.Nil(t, second.Humidity)
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d, _ := seed(t, db, 6)
	spike := []models.Reading{{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), EnergyConsumption: 100}}
	require.NoError(t, db.InsertReadings(ctx, d.ID, spike))

	readings, err := db.ListReadings(ctx, d.ID)
	require.NoError(t, err)

	svc := analysis.NewService(db, analysis.WithSeed(1))
	run, err := svc.Detect(ctx, d.ID, "density", 0.2)
	require.NoError(t, err)
	require.NotEmpty(t, run.Anomalies)

	eval := svc.EvaluateRun(run)
	recs := svc.RecommendRun(run)
	require.NoError(t, db.SaveRun(ctx, run, eval, recs))

	runs, err := db.ListRuns(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, "density", runs[0].Algorithm)
	assert.Equal(t, len(readings), runs[0].Points)
	assert.Equal(t, len(run.Anomalies), runs[0].Anomalies)
	assert.Equal(t, run.Features, runs[0].Features)

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Contamination, got.Contamination)

	anomalies, err := db.ListAnomalies(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, anomalies, len(run.Anomalies))
	for _, a := range anomalies {
		assert.Equal(t, a.ReadingID, a.Reading.ID)
		assert.Equal(t, "density", a.Algorithm)
	}

	storedEval, err := db.GetEvaluation(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, *eval.Accuracy, *storedEval.Accuracy)
	assert.Equal(t, *eval.Recall, *storedEval.Recall)
	assert.True(t, storedEval.Approximate)

	storedRecs, err := db.ListRecommendations(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, storedRecs, len(recs))
	for i := range recs {
		assert.Equal(t, recs[i].Text, storedRecs[i].Text)
		assert.Equal(t, *recs[i].AnomalyID, *storedRecs[i].AnomalyID)
	}

	list, err := db.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, list[0].Runs)

	_, err = db.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetEvaluation(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRunIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d, inserted := seed(t, db, 3)

	run := &models.Run{
		ID:        uuid.NewString(),
		DatasetID: d.ID,
		Requested: "density",
		Algorithm: "density",
		StartedAt: time.Now(),
		Anomalies: []models.Anomaly{
			{ID: "a1", ReadingID: inserted[0].ID, DatasetID: d.ID, Algorithm: "density"},
			// unknown reading violates the foreign key
			{ID: "a2", ReadingID: 9999, DatasetID: d.ID, Algorithm: "density"},
		},
	}
	err := db.SaveRun(ctx, run, models.Evaluation{ID: "e1", DatasetID: d.ID}, nil)
	require.Error(t, err)

	runs, err := db.ListRuns(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)
	anomalies, err := db.ListAnomalies(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestChartData(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	d, inserted := seed(t, db, 3)

	run := &models.Run{
		ID:        "run-1",
		DatasetID: d.ID,
		Requested: "density",
		Algorithm: "density",
		StartedAt: time.Now(),
		Anomalies: []models.Anomaly{
			{ID: "a1", ReadingID: inserted[0].ID, DatasetID: d.ID, Score: 0.9, Algorithm: "density"},
		},
	}
	require.NoError(t, db.SaveRun(ctx, run, models.Evaluation{ID: "e1", DatasetID: d.ID}, nil))

	c, err := db.ChartData(ctx, d.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01 00:00:00", "2024-01-01 01:00:00", "2024-01-01 02:00:00"}, c.Timestamps)
	assert.Equal(t, []float64{12, 11, 10}, c.EnergyConsumption)
	// inserted[0] is the latest reading
	assert.Equal(t, []int{0, 0, 1}, c.IsAnomaly)
	assert.NotNil(t, c.Temperature[0])
	assert.Nil(t, c.Temperature[1])

	c, err = db.ChartData(ctx, d.ID, "other-run")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, c.IsAnomaly)
}

func TestReadingsKeepWallClock(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	d := &models.Dataset{Name: "east office"}
	require.NoError(t, db.CreateDataset(ctx, d))

	est := time.FixedZone("EST", -5*60*60)
	readings := make([]models.Reading, 3)
	for i := range readings {
		readings[i] = models.Reading{
			Timestamp:         time.Date(2024, 1, 10, 16+i, 0, 0, 0, est),
			EnergyConsumption: 30,
		}
	}
	require.NoError(t, db.InsertReadings(ctx, d.ID, readings))

	got, err := db.ListReadings(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, 16+i, r.Timestamp.Hour())
		assert.Equal(t, time.Wednesday, r.Timestamp.Weekday())
	}

	anomalies := make([]models.Anomaly, len(got))
	for i, r := range got {
		anomalies[i] = models.Anomaly{ID: uuid.NewString(), ReadingID: r.ID, DatasetID: d.ID, Score: 1}
	}
	recs := analysis.NewService(db).Recommend(ctx, d.ID, anomalies)
	require.NotEmpty(t, recs)
	for _, r := range recs {
		assert.NotEqual(t, "night", r.Category, r.Text)
		assert.NotEqual(t, "weekend", r.Category, r.Text)
	}
}
