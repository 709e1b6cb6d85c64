// Package errkind holds the failure categories shared by the detection
// pipeline and the packages that feed it.
package errkind

import (
	"errors"
	"fmt"
)

// Kinds. Match them with errors.Is.
var (
	// Input covers empty or invalid reading sets, invalid date ranges and
	// invalid contamination. The run produces no output.
	Input = errors.New("invalid input")
	// AlgorithmUnavailable is recovered by falling back to density.
	AlgorithmUnavailable = errors.New("algorithm unavailable")
	// Computation is a numerical failure inside an algorithm. The run fails.
	Computation = errors.New("computation failed")
	// Evaluation is logged and degrades to nil metrics.
	Evaluation = errors.New("evaluation failed")
	// Recommendation is logged and degrades to the fallback recommendation.
	Recommendation = errors.New("recommendation failed")
)

// Error is a categorized failure of one pipeline stage for one dataset.
type Error struct {
	Kind      error
	Op        string
	DatasetID int64
	Err       error
}

// New returns an Error of the given kind.
func New(kind error, op string, datasetID int64, err error) *Error {
	return &Error{Kind: kind, Op: op, DatasetID: datasetID, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s dataset %d: %v", e.Op, e.DatasetID, e.Kind)
	}
	return fmt.Sprintf("%s dataset %d: %v: %v", e.Op, e.DatasetID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}
