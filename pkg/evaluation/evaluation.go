// Package evaluation scores a detection run without ground truth.
//
// The metrics are approximations and are always marked as such:
//
//   - accuracy assumes every unflagged reading is normal: 1 - anomalies/total.
//   - precision assumes every flagged reading is a true positive, so it is
//     1.0 whenever anything was flagged. This is a known limitation.
//   - recall is a placeholder drawn uniformly from [0.8, 1.0]. It is random,
//     not measured, and must not be read as authoritative.
//   - f1 is the harmonic mean of precision and recall when both exist.
package evaluation

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/hed1ad/energyguard/pkg/models"
)

// Metrics holds the approximate metrics; nil means undefined.
type Metrics struct {
	Accuracy  *float64
	Precision *float64
	Recall    *float64
	F1        *float64
}

// Compute derives metrics from the reading and anomaly counts. rng drives
// the recall placeholder.
func Compute(total, anomalies int, rng *rand.Rand) (Metrics, error) {
	if total < 0 || anomalies < 0 {
		return Metrics{}, fmt.Errorf("negative count: total=%d anomalies=%d", total, anomalies)
	}
	if anomalies > total {
		return Metrics{}, fmt.Errorf("anomaly count %d exceeds reading count %d", anomalies, total)
	}
	if total == 0 {
		return Metrics{}, nil
	}

	m := Metrics{
		Accuracy: models.Float(1 - float64(anomalies)/float64(total)),
	}
	if anomalies == 0 {
		return m, nil
	}
	if rng == nil {
		return Metrics{}, errors.New("no random source")
	}

	precision := 1.0
	recall := min(0.8+rng.Float64()*0.2, 1.0)
	m.Precision = models.Float(precision)
	m.Recall = models.Float(recall)
	m.F1 = models.Float(2 * precision * recall / (precision + recall))
	return m, nil
}

// Evaluate builds the Evaluation record for a run. It always returns a
// usable record; when err is non-nil the metrics are all nil.
func Evaluate(datasetID int64, algorithm string, total, anomalies int, rng *rand.Rand) (models.Evaluation, error) {
	e := models.Evaluation{
		DatasetID:   datasetID,
		Algorithm:   algorithm,
		Approximate: true,
	}

	m, err := Compute(total, anomalies, rng)
	if err != nil {
		return e, err
	}

	e.Accuracy, e.Precision, e.Recall, e.F1 = m.Accuracy, m.Precision, m.Recall, m.F1
	return e, nil
}
