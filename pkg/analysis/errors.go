package analysis

import "github.com/hed1ad/energyguard/pkg/errkind"

// Error kinds. Match them with errors.Is.
var (
	ErrInput                = errkind.Input
	ErrAlgorithmUnavailable = errkind.AlgorithmUnavailable
	ErrComputation          = errkind.Computation
	ErrEvaluation           = errkind.Evaluation
	ErrRecommendation       = errkind.Recommendation
)

// Error is a categorized failure of one pipeline stage for one dataset.
type Error = errkind.Error

func newError(kind error, op string, datasetID int64, err error) *Error {
	return errkind.New(kind, op, datasetID, err)
}
