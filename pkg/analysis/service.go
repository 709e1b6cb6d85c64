// Package analysis orchestrates a detection run: it loads a dataset's
// readings, builds and scales the feature matrix, runs the selected
// detector and derives anomalies, an evaluation and recommendations.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hed1ad/energyguard/pkg/detectors"
	"github.com/hed1ad/energyguard/pkg/evaluation"
	"github.com/hed1ad/energyguard/pkg/features"
	"github.com/hed1ad/energyguard/pkg/models"
	"github.com/hed1ad/energyguard/pkg/recommend"
)

// ReadingRepository supplies the readings of a dataset. Order is not
// guaranteed.
type ReadingRepository interface {
	ListReadings(ctx context.Context, datasetID int64) ([]models.Reading, error)
}

// Recorder observes finished detection runs. err is nil for successful runs.
type Recorder interface {
	RecordRun(run *models.Run, err error)
}

// Service runs detections against a repository. It is safe for concurrent
// use; every run owns its matrix, scaler, model and random source.
type Service struct {
	repo     ReadingRepository
	registry *detectors.Registry
	seed     int64
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSeed sets the seed of every run's random source.
func WithSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry replaces the algorithm registry.
func WithRegistry(r *detectors.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithRecorder sets the run observer.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service reading from repo.
func NewService(repo ReadingRepository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		registry: DefaultRegistry(),
		seed:     detectors.DefaultConfig().RandomSeed,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("module", "analysis")
	return s
}

// Registry returns the service's algorithm registry.
func (s *Service) Registry() *detectors.Registry {
	return s.registry
}

func (s *Service) rng() *rand.Rand {
	return rand.New(rand.NewSource(s.seed))
}

// RunDetection runs one algorithm over a dataset and returns the flagged
// readings as anomalies.
func (s *Service) RunDetection(ctx context.Context, datasetID int64, algorithm detectors.Algorithm, contamination float64) ([]models.Anomaly, error) {
	run, err := s.Detect(ctx, datasetID, algorithm, contamination)
	if err != nil {
		return nil, err
	}
	return run.Anomalies, nil
}

// Detect runs one algorithm over a dataset and returns the whole run,
// including every scored reading in timestamp order.
func (s *Service) Detect(ctx context.Context, datasetID int64, algorithm detectors.Algorithm, contamination float64) (*models.Run, error) {
	started := s.now()
	run := &models.Run{
		ID:            uuid.NewString(),
		DatasetID:     datasetID,
		Requested:     string(algorithm),
		Algorithm:     string(algorithm),
		Contamination: contamination,
		StartedAt:     started,
		Anomalies:     []models.Anomaly{},
	}

	err := s.detect(ctx, run)
	run.Duration = s.now().Sub(started)
	if s.recorder != nil {
		s.recorder.RecordRun(run, err)
	}
	if err != nil {
		s.logger.Error("detection failed",
			"dataset_id", datasetID,
			"algorithm", run.Algorithm,
			"error", err)
		return nil, err
	}

	s.logger.Info("detection finished",
		"run_id", run.ID,
		"dataset_id", datasetID,
		"algorithm", run.Algorithm,
		"fallback", run.Fallback,
		"points", len(run.Points),
		"anomalies", len(run.Anomalies),
		"duration", run.Duration)
	return run, nil
}

func (s *Service) detect(ctx context.Context, run *models.Run) error {
	const op = "detect"
	id := run.DatasetID

	if err := detectors.ValidateContamination(run.Contamination); err != nil {
		return newError(ErrInput, op, id, err)
	}

	strategy, fellBack, err := s.registry.Resolve(detectors.Algorithm(run.Requested))
	switch {
	case errors.Is(err, detectors.ErrUnknownAlgorithm):
		return newError(ErrInput, op, id, err)
	case err != nil:
		return newError(ErrAlgorithmUnavailable, op, id, err)
	}
	if fellBack {
		s.logger.Warn("algorithm unavailable, falling back",
			"dataset_id", id,
			"requested", run.Requested,
			"fallback", strategy.Algorithm)
	}
	run.Algorithm = string(strategy.Algorithm)
	run.Fallback = fellBack

	readings, err := s.repo.ListReadings(ctx, id)
	if err != nil {
		return fmt.Errorf("list readings: %w", err)
	}
	readings = slices.Clone(readings)
	slices.SortStableFunc(readings, func(a, b models.Reading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	matrix, err := features.Build(readings)
	if err != nil {
		return newError(ErrInput, op, id, err)
	}
	run.Features = matrix.Columns

	run.Points = make([]models.ScoredPoint, len(readings))
	for i, r := range readings {
		run.Points[i] = models.ScoredPoint{Reading: r, Algorithm: run.Algorithm}
	}
	if matrix.Len() < 2 {
		return nil
	}

	var scaler features.Scaler
	scaled, err := scaler.FitTransform(matrix.Rows)
	if err != nil {
		return newError(ErrComputation, op, id, err)
	}

	scores, err := strategy.New(s.seed).Detect(scaled, run.Contamination)
	if err != nil {
		if errors.Is(err, detectors.ErrInvalidContamination) {
			return newError(ErrInput, op, id, err)
		}
		return newError(ErrComputation, op, id, err)
	}
	if len(scores) != len(readings) {
		return newError(ErrComputation, op, id,
			fmt.Errorf("detector returned %d scores for %d readings", len(scores), len(readings)))
	}

	detectedAt := s.now()
	for i, sc := range scores {
		run.Points[i].Score = sc.Value
		run.Points[i].IsAnomaly = sc.IsAnomaly
		if !sc.IsAnomaly {
			continue
		}
		run.Anomalies = append(run.Anomalies, models.Anomaly{
			ID:         uuid.NewString(),
			RunID:      run.ID,
			ReadingID:  readings[i].ID,
			DatasetID:  id,
			Score:      sc.Value,
			Algorithm:  run.Algorithm,
			DetectedAt: detectedAt,
		})
	}
	return nil
}

// Evaluate computes approximate metrics for a run's anomalies. Failures are
// logged and yield an evaluation with nil metrics.
func (s *Service) Evaluate(ctx context.Context, datasetID int64, algorithm detectors.Algorithm, anomalies []models.Anomaly) models.Evaluation {
	readings, err := s.repo.ListReadings(ctx, datasetID)
	if err != nil {
		s.logEvaluationFailure(datasetID, fmt.Errorf("list readings: %w", err))
		return s.stampEvaluation(models.Evaluation{
			DatasetID:   datasetID,
			Algorithm:   string(algorithm),
			Approximate: true,
		}, anomalies)
	}
	return s.evaluate(datasetID, string(algorithm), len(readings), anomalies)
}

// EvaluateRun evaluates a finished run without reloading its readings.
func (s *Service) EvaluateRun(run *models.Run) models.Evaluation {
	e := s.evaluate(run.DatasetID, run.Algorithm, len(run.Points), run.Anomalies)
	e.RunID = run.ID
	return e
}

func (s *Service) evaluate(datasetID int64, algorithm string, total int, anomalies []models.Anomaly) models.Evaluation {
	e, err := evaluation.Evaluate(datasetID, algorithm, total, len(anomalies), s.rng())
	if err != nil {
		s.logEvaluationFailure(datasetID, err)
	}
	return s.stampEvaluation(e, anomalies)
}

func (s *Service) stampEvaluation(e models.Evaluation, anomalies []models.Anomaly) models.Evaluation {
	e.ID = uuid.NewString()
	e.CreatedAt = s.now()
	if len(anomalies) > 0 {
		e.RunID = anomalies[0].RunID
	}
	return e
}

func (s *Service) logEvaluationFailure(datasetID int64, err error) {
	s.logger.Warn("evaluation degraded",
		"dataset_id", datasetID,
		"error", newError(ErrEvaluation, "evaluate", datasetID, err))
}

// Recommend derives efficiency recommendations from a run's anomalies.
// Failures are logged and yield the single fallback recommendation.
func (s *Service) Recommend(ctx context.Context, datasetID int64, anomalies []models.Anomaly) []models.Recommendation {
	byID := map[int64]models.Reading{}
	if len(anomalies) > 0 {
		readings, err := s.repo.ListReadings(ctx, datasetID)
		if err != nil {
			s.logRecommendationFailure(datasetID, fmt.Errorf("list readings: %w", err))
			return s.stampRecommendations([]models.Recommendation{recommend.Fallback(datasetID)}, anomalies)
		}
		for _, r := range readings {
			byID[r.ID] = r
		}
	}
	return s.recommend(datasetID, anomalies, byID)
}

// RecommendRun derives recommendations for a finished run without
// reloading its readings.
func (s *Service) RecommendRun(run *models.Run) []models.Recommendation {
	byID := make(map[int64]models.Reading, len(run.Points))
	for _, p := range run.Points {
		byID[p.Reading.ID] = p.Reading
	}
	recs := s.recommend(run.DatasetID, run.Anomalies, byID)
	for i := range recs {
		recs[i].RunID = run.ID
	}
	return recs
}

func (s *Service) recommend(datasetID int64, anomalies []models.Anomaly, readings map[int64]models.Reading) (recs []models.Recommendation) {
	defer func() {
		if r := recover(); r != nil {
			s.logRecommendationFailure(datasetID, fmt.Errorf("panic: %v", r))
			recs = s.stampRecommendations([]models.Recommendation{recommend.Fallback(datasetID)}, anomalies)
		}
	}()

	recs, err := recommend.New(s.rng()).Generate(datasetID, anomalies, readings)
	if err != nil {
		s.logRecommendationFailure(datasetID, err)
	}
	return s.stampRecommendations(recs, anomalies)
}

func (s *Service) stampRecommendations(recs []models.Recommendation, anomalies []models.Anomaly) []models.Recommendation {
	now := s.now()
	var runID string
	if len(anomalies) > 0 {
		runID = anomalies[0].RunID
	}
	for i := range recs {
		recs[i].ID = uuid.NewString()
		recs[i].RunID = runID
		recs[i].CreatedAt = now
	}
	return recs
}

func (s *Service) logRecommendationFailure(datasetID int64, err error) {
	s.logger.Warn("recommendations degraded",
		"dataset_id", datasetID,
		"error", newError(ErrRecommendation, "recommend", datasetID, err))
}
